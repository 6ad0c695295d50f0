package services

import (
	"context"
	"time"

	"github.com/agentbot/gotrade/internal/domain"
)

// DataGatherer 数据采集协作方：定期拉取外部信号源。
// 只读且互相独立，结果只在 tick goroutine 上合并进共享状态。
type DataGatherer interface {
	Gather(ctx context.Context) ([]domain.Signal, error)
}

// Researcher 研究协作方：精炼信号、定期复查持仓。
type Researcher interface {
	ResearchSignals(ctx context.Context, signals map[string]domain.Signal) (map[string]domain.Signal, error)
	ResearchPositions(ctx context.Context, positions []domain.BrokerPosition, entries map[string]*domain.PositionEntry) error
}

// RiskControl 风控状态的读写入口（riskstore 实现）
type RiskControl interface {
	Snapshot() (domain.RiskState, error)
	EnableKillSwitch(reason string) error
	DisableKillSwitch() error
	RecordLoss(amountUSD float64) error
	ResetDailyLoss() error
	SetCooldown(d time.Duration)
}

// NopGatherer 空采集器（没配外部信号源时的默认值）
type NopGatherer struct{}

func (NopGatherer) Gather(context.Context) ([]domain.Signal, error) { return nil, nil }

// NopResearcher 空研究器
type NopResearcher struct{}

func (NopResearcher) ResearchSignals(_ context.Context, signals map[string]domain.Signal) (map[string]domain.Signal, error) {
	return signals, nil
}

func (NopResearcher) ResearchPositions(context.Context, []domain.BrokerPosition, map[string]*domain.PositionEntry) error {
	return nil
}
