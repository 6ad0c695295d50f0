package strategies

import (
	"context"

	"github.com/agentbot/gotrade/internal/domain"
)

// Strategy 策略接口：调度器把研究信号和当前持仓交给它，拿回
// 开仓/平仓候选。候选只是建议——一律回流执行门面做策略引擎评估，
// 策略层拿不到直接下单的通道。
type Strategy interface {
	// ID 注册表键
	ID() string

	// SelectEntries 从信号中挑选开仓候选
	SelectEntries(ctx context.Context, signals map[string]domain.Signal,
		positions []domain.BrokerPosition, account *domain.AccountSnapshot) []domain.BuyCandidate

	// SelectExits 从持仓中挑选平仓候选
	SelectExits(ctx context.Context, positions []domain.BrokerPosition,
		entries map[string]*domain.PositionEntry, account *domain.AccountSnapshot) []domain.SellCandidate
}
