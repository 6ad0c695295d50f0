package brokerage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/agentbot/gotrade/internal/domain"
)

// RESTClient talks to an Alpaca-compatible brokerage REST API.
// Monetary fields arrive as decimal strings on the wire; they are parsed
// here so the core only ever sees float64.
type RESTClient struct {
	http *resty.Client
}

// RESTOptions configures the client. Key/secret go into headers, never logs.
type RESTOptions struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	RetryCount int
}

// NewRESTClient builds a client with retry/backoff and 429 Retry-After handling.
func NewRESTClient(opts RESTOptions) *RESTClient {
	base := strings.TrimSuffix(opts.BaseURL, "/")
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = 3
	}

	client := resty.New().
		SetBaseURL(base).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetHeader("APCA-API-KEY-ID", opts.APIKey).
		SetHeader("APCA-API-SECRET-KEY", opts.APISecret).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			if resp.StatusCode() == 429 {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &RESTClient{http: client}
}

// moneyString is a decimal-string field ("12345.67") on the wire.
type moneyString string

func (m moneyString) Float() float64 {
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(string(m), 64)
	if err != nil {
		return 0
	}
	return f
}

type accountPayload struct {
	Equity      moneyString `json:"equity"`
	Cash        moneyString `json:"cash"`
	BuyingPower moneyString `json:"buying_power"`
}

type positionPayload struct {
	Symbol        string      `json:"symbol"`
	AssetClass    string      `json:"asset_class"`
	Qty           moneyString `json:"qty"`
	AvgEntryPrice moneyString `json:"avg_entry_price"`
	MarketValue   moneyString `json:"market_value"`
	UnrealizedPL  moneyString `json:"unrealized_pl"`
	CurrentPrice  moneyString `json:"current_price"`
}

type clockPayload struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
	Timestamp time.Time `json:"timestamp"`
}

type assetPayload struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

type orderPayload struct {
	ID             string      `json:"id"`
	Status         string      `json:"status"`
	FilledQty      moneyString `json:"filled_qty"`
	FilledAvgPrice moneyString `json:"filled_avg_price"`
	FilledAt       *time.Time  `json:"filled_at"`
}

func (p orderPayload) toDomain() *domain.BrokerOrder {
	return &domain.BrokerOrder{
		ID:             p.ID,
		Status:         domain.BrokerOrderStatus(p.Status),
		FilledQty:      p.FilledQty.Float(),
		FilledAvgPrice: p.FilledAvgPrice.Float(),
		FilledAt:       p.FilledAt,
	}
}

func (c *RESTClient) get(ctx context.Context, path string, out any) error {
	resp, err := c.http.R().SetContext(ctx).SetResult(out).Get(path)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	if resp.IsError() {
		return errors.Errorf("GET %s: http %d: %s", path, resp.StatusCode(), resp.String())
	}
	return nil
}

// GetAccount fetches the account snapshot.
func (c *RESTClient) GetAccount(ctx context.Context) (*domain.AccountSnapshot, error) {
	var p accountPayload
	if err := c.get(ctx, "/v2/account", &p); err != nil {
		return nil, err
	}
	return &domain.AccountSnapshot{
		Equity:      p.Equity.Float(),
		Cash:        p.Cash.Float(),
		BuyingPower: p.BuyingPower.Float(),
	}, nil
}

// GetPositions fetches all open positions.
func (c *RESTClient) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	var payload []positionPayload
	if err := c.get(ctx, "/v2/positions", &payload); err != nil {
		return nil, err
	}
	out := make([]domain.BrokerPosition, 0, len(payload))
	for _, p := range payload {
		out = append(out, domain.BrokerPosition{
			Symbol:        p.Symbol,
			AssetClass:    domain.AssetClass(p.AssetClass),
			Qty:           p.Qty.Float(),
			AvgEntryPrice: p.AvgEntryPrice.Float(),
			MarketValue:   p.MarketValue.Float(),
			UnrealizedPL:  p.UnrealizedPL.Float(),
			CurrentPrice:  p.CurrentPrice.Float(),
		})
	}
	return out, nil
}

// GetClock fetches the market clock.
func (c *RESTClient) GetClock(ctx context.Context) (*domain.MarketClock, error) {
	var p clockPayload
	if err := c.get(ctx, "/v2/clock", &p); err != nil {
		return nil, err
	}
	return &domain.MarketClock{
		IsOpen:    p.IsOpen,
		NextOpen:  p.NextOpen,
		NextClose: p.NextClose,
		Timestamp: p.Timestamp,
	}, nil
}

// GetAsset looks up asset metadata for exchange allowlist checks.
func (c *RESTClient) GetAsset(ctx context.Context, symbol string) (*domain.AssetInfo, error) {
	var p assetPayload
	if err := c.get(ctx, "/v2/assets/"+symbol, &p); err != nil {
		return nil, err
	}
	return &domain.AssetInfo{Symbol: p.Symbol, Exchange: p.Exchange}, nil
}

// CreateOrder submits an order and returns the broker's view of it.
func (c *RESTClient) CreateOrder(ctx context.Context, spec OrderSpec) (*domain.BrokerOrder, error) {
	body := map[string]any{
		"symbol":        spec.Symbol,
		"side":          string(spec.Side),
		"type":          string(spec.Type),
		"time_in_force": string(spec.TimeInForce),
	}
	if contract := spec.OptionContract(); contract != "" {
		body["symbol"] = contract
	}
	if spec.Notional > 0 {
		body["notional"] = fmt.Sprintf("%.2f", spec.Notional)
	} else if spec.Qty > 0 {
		body["qty"] = strconv.FormatFloat(spec.Qty, 'f', -1, 64)
	}
	if spec.ClientOrderID != "" {
		body["client_order_id"] = spec.ClientOrderID
	}

	var p orderPayload
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&p).Post("/v2/orders")
	if err != nil {
		return nil, errors.Wrap(err, "POST /v2/orders")
	}
	if resp.IsError() {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(resp.Body(), &apiErr)
		return nil, errors.Errorf("POST /v2/orders: http %d: %s", resp.StatusCode(), apiErr.Message)
	}
	return p.toDomain(), nil
}

// GetOrder polls an order by id. Read-only, safe to repeat.
func (c *RESTClient) GetOrder(ctx context.Context, orderID string) (*domain.BrokerOrder, error) {
	var p orderPayload
	if err := c.get(ctx, "/v2/orders/"+orderID, &p); err != nil {
		return nil, err
	}
	return p.toDomain(), nil
}

// ClosePosition liquidates the whole position for a symbol.
func (c *RESTClient) ClosePosition(ctx context.Context, symbol string) (*domain.BrokerOrder, error) {
	var p orderPayload
	resp, err := c.http.R().SetContext(ctx).SetResult(&p).Delete("/v2/positions/" + symbol)
	if err != nil {
		return nil, errors.Wrapf(err, "DELETE /v2/positions/%s", symbol)
	}
	if resp.IsError() {
		return nil, errors.Errorf("DELETE /v2/positions/%s: http %d: %s", symbol, resp.StatusCode(), resp.String())
	}
	return p.toDomain(), nil
}
