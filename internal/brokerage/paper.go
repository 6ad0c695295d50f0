package brokerage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentbot/gotrade/internal/domain"
)

// PaperClient is an in-memory brokerage used by tests and dry runs.
// Orders rest as accepted until FillNext/FillOrder is called, which makes
// the async fill path deterministic to exercise.
type PaperClient struct {
	mu sync.Mutex

	account   domain.AccountSnapshot
	clock     domain.MarketClock
	positions map[string]*domain.BrokerPosition
	orders    map[string]*domain.BrokerOrder
	orderSpec map[string]OrderSpec
	prices    map[string]float64
	seq       int

	// FailGetOrder makes GetOrder return an error while > 0 (poll-failure tests)
	FailGetOrder int
}

// NewPaperClient starts with a flat account.
func NewPaperClient(equity, cash float64) *PaperClient {
	return &PaperClient{
		account:   domain.AccountSnapshot{Equity: equity, Cash: cash, BuyingPower: cash},
		clock:     domain.MarketClock{IsOpen: true, Timestamp: time.Now()},
		positions: make(map[string]*domain.BrokerPosition),
		orders:    make(map[string]*domain.BrokerOrder),
		orderSpec: make(map[string]OrderSpec),
		prices:    make(map[string]float64),
	}
}

// SetClock overrides the market clock.
func (c *PaperClient) SetClock(clock domain.MarketClock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// SetPrice sets the mark price used for fills and position updates.
func (c *PaperClient) SetPrice(symbol string, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
	if p, ok := c.positions[symbol]; ok {
		p.CurrentPrice = price
		p.MarketValue = p.Qty * price
		p.UnrealizedPL = (price - p.AvgEntryPrice) * p.Qty
	}
}

// SeedPosition installs an existing position.
func (c *PaperClient) SeedPosition(p domain.BrokerPosition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := p
	c.positions[p.Symbol] = &cp
}

func (c *PaperClient) GetAccount(ctx context.Context) (*domain.AccountSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	acct := c.account
	return &acct, nil
}

func (c *PaperClient) GetPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.BrokerPosition, 0, len(c.positions))
	for _, p := range c.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (c *PaperClient) GetClock(ctx context.Context) (*domain.MarketClock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clock := c.clock
	return &clock, nil
}

func (c *PaperClient) GetAsset(ctx context.Context, symbol string) (*domain.AssetInfo, error) {
	return &domain.AssetInfo{Symbol: symbol, Exchange: "NASDAQ"}, nil
}

func (c *PaperClient) CreateOrder(ctx context.Context, spec OrderSpec) (*domain.BrokerOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	order := &domain.BrokerOrder{
		ID:     fmt.Sprintf("paper-%d", c.seq),
		Status: domain.BrokerOrderAccepted,
	}
	c.orders[order.ID] = order
	c.orderSpec[order.ID] = spec
	return order, nil
}

func (c *PaperClient) GetOrder(ctx context.Context, orderID string) (*domain.BrokerOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailGetOrder > 0 {
		c.FailGetOrder--
		return nil, fmt.Errorf("paper: simulated poll failure")
	}
	order, ok := c.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("paper: order %s not found", orderID)
	}
	cp := *order
	return &cp, nil
}

func (c *PaperClient) ClosePosition(ctx context.Context, symbol string) (*domain.BrokerOrder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("paper: no position in %s", symbol)
	}
	c.seq++
	order := &domain.BrokerOrder{
		ID:     fmt.Sprintf("paper-%d", c.seq),
		Status: domain.BrokerOrderAccepted,
	}
	c.orders[order.ID] = order
	c.orderSpec[order.ID] = OrderSpec{
		Symbol: symbol,
		Side:   domain.SideSell,
		Qty:    pos.Qty,
	}
	return order, nil
}

// FillOrder marks an order filled at the given price and applies the
// position/account effect.
func (c *PaperClient) FillOrder(orderID string, price float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	order, ok := c.orders[orderID]
	if !ok {
		return fmt.Errorf("paper: order %s not found", orderID)
	}
	spec := c.orderSpec[orderID]
	if order.Status.IsTerminal() {
		return fmt.Errorf("paper: order %s already terminal", orderID)
	}

	qty := spec.Qty
	if qty == 0 && price > 0 {
		qty = spec.Notional / price
	}
	now := time.Now()
	order.Status = domain.BrokerOrderFilled
	order.FilledQty = qty
	order.FilledAvgPrice = price
	order.FilledAt = &now

	symbol := spec.Symbol
	if spec.Side == domain.SideBuy {
		pos, ok := c.positions[symbol]
		if !ok {
			c.positions[symbol] = &domain.BrokerPosition{
				Symbol:        symbol,
				AssetClass:    assetClassOf(symbol),
				Qty:           qty,
				AvgEntryPrice: price,
				MarketValue:   qty * price,
				CurrentPrice:  price,
			}
		} else {
			total := pos.Qty + qty
			pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Qty + price*qty) / total
			pos.Qty = total
			pos.MarketValue = total * price
		}
		c.account.Cash -= qty * price
	} else {
		delete(c.positions, symbol)
		c.account.Cash += qty * price
	}
	c.account.BuyingPower = c.account.Cash
	return nil
}

// CancelOrder moves an order to canceled (terminal, no side effect).
func (c *PaperClient) CancelOrder(orderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if order, ok := c.orders[orderID]; ok && !order.Status.IsTerminal() {
		order.Status = domain.BrokerOrderCanceled
	}
}

// LastOrderID returns the most recently created order id.
func (c *PaperClient) LastOrderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("paper-%d", c.seq)
}

func assetClassOf(symbol string) domain.AssetClass {
	if strings.Contains(symbol, "/") {
		return domain.AssetClassCrypto
	}
	return domain.AssetClassEquity
}
