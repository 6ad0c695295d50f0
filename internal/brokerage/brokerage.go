package brokerage

import (
	"context"

	"github.com/agentbot/gotrade/internal/domain"
)

// OrderSpec is the wire-level order request handed to the broker.
// It is produced exclusively by internal/execution; the unexported
// options marker keeps options submissions from bypassing that facade.
type OrderSpec struct {
	Symbol        string             `json:"symbol"`
	Side          domain.OrderSide   `json:"side"`
	Type          domain.OrderType   `json:"type"`
	TimeInForce   domain.TimeInForce `json:"time_in_force"`
	Notional      float64            `json:"notional,omitempty"`
	Qty           float64            `json:"qty,omitempty"`
	ClientOrderID string             `json:"client_order_id,omitempty"`

	optionContract string
}

// WithOptionContract returns a copy of the spec carrying an OCC option
// contract symbol. Only callable from Go code holding an OrderSpec value;
// the field itself stays unexported so it cannot be set via struct literal
// outside this package's callers' control path.
func (s OrderSpec) WithOptionContract(contract string) OrderSpec {
	s.optionContract = contract
	return s
}

// OptionContract reports the OCC contract symbol, empty for non-options.
func (s OrderSpec) OptionContract() string { return s.optionContract }

// Client is the narrow brokerage surface the core consumes.
// Every call takes a context and must respect its deadline so a slow
// broker can never stall the tick-reschedule guarantee.
type Client interface {
	GetAccount(ctx context.Context) (*domain.AccountSnapshot, error)
	GetPositions(ctx context.Context) ([]domain.BrokerPosition, error)
	GetClock(ctx context.Context) (*domain.MarketClock, error)
	GetAsset(ctx context.Context, symbol string) (*domain.AssetInfo, error)
	CreateOrder(ctx context.Context, spec OrderSpec) (*domain.BrokerOrder, error)
	GetOrder(ctx context.Context, orderID string) (*domain.BrokerOrder, error)
	ClosePosition(ctx context.Context, symbol string) (*domain.BrokerOrder, error)
}
