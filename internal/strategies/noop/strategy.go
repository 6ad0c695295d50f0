package noop

import (
	"context"

	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/internal/strategies"
)

const ID = "noop"

func init() { strategies.Register(&Strategy{}) }

// Strategy 空策略：不开仓不平仓。默认策略，让调度/风控/对账链路
// 可以在没有真实信号源的情况下完整跑通。
type Strategy struct{}

func (s *Strategy) ID() string { return ID }

func (s *Strategy) SelectEntries(_ context.Context, _ map[string]domain.Signal,
	_ []domain.BrokerPosition, _ *domain.AccountSnapshot) []domain.BuyCandidate {
	return nil
}

func (s *Strategy) SelectExits(_ context.Context, _ []domain.BrokerPosition,
	_ map[string]*domain.PositionEntry, _ *domain.AccountSnapshot) []domain.SellCandidate {
	return nil
}
