package services

import (
	"time"

	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/internal/execution"
	"github.com/agentbot/gotrade/pkg/config"
)

// PendingOrderView 挂单的只读视图
type PendingOrderView struct {
	Kind        string    `json:"kind"`
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Reason      string    `json:"reason"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// StatusSnapshot 控制面读到的状态快照。每个 tick 结束后整体重建，
// 与活状态零共享：并发 HTTP 读取不会碰到 tick goroutine 拥有的数据。
type StatusSnapshot struct {
	Enabled    bool      `json:"enabled"`
	Killed     bool      `json:"killed"`
	LastTickAt time.Time `json:"last_tick_at"`

	Account       *domain.AccountSnapshot  `json:"account,omitempty"`
	Positions     []domain.BrokerPosition  `json:"positions,omitempty"`
	PendingOrders []PendingOrderView       `json:"pending_orders"`
	Entries       map[string]domain.PositionEntry `json:"position_entries,omitempty"`
	Risk          domain.RiskState         `json:"risk"`
	Plan          *domain.PreMarketPlan    `json:"plan,omitempty"`
	SignalCount   int                      `json:"signal_count"`
	Config        *config.Config           `json:"config,omitempty"`
}

// publishStatus 在 tick 末尾重建快照。cache 为 nil（停用路径）时
// 不带账户/持仓，其余字段照常。
func (s *Scheduler) publishStatus(cache *execution.CycleCache, cfg *config.Config) {
	state := s.state
	snap := StatusSnapshot{
		Enabled:     s.enabled.Load(),
		Killed:      s.killed.Load(),
		LastTickAt:  state.LastTickAt,
		SignalCount: len(state.SignalCache),
		Config:      cfg.Clone(),
	}

	if risk, err := s.risk.Snapshot(); err == nil {
		snap.Risk = risk
	}

	if cache != nil {
		// 只复用 tick 内已拉取的数据，这里不触发新的网络调用
		if account := cache.CachedAccount(); account != nil {
			copied := *account
			snap.Account = &copied
		}
		if positions, ok := cache.CachedPositions(); ok {
			snap.Positions = append([]domain.BrokerPosition(nil), positions...)
		}
	}

	snap.PendingOrders = make([]PendingOrderView, 0, len(state.PendingOrders))
	for _, po := range state.PendingOrders {
		view := PendingOrderView{OrderID: po.ID(), Symbol: po.PendingSymbol()}
		switch v := po.(type) {
		case *domain.PendingBuyOrder:
			view.Kind = "buy"
			view.Reason = v.Reason
			view.SubmittedAt = v.SubmittedAt
		case *domain.PendingSellOrder:
			view.Kind = "sell"
			view.Reason = v.Reason
			view.SubmittedAt = v.SubmittedAt
		}
		snap.PendingOrders = append(snap.PendingOrders, view)
	}

	snap.Entries = make(map[string]domain.PositionEntry, len(state.PositionEntries))
	for sym, entry := range state.PositionEntries {
		snap.Entries[sym] = *entry
	}
	if state.Plan != nil {
		plan := *state.Plan
		plan.Entries = append([]domain.BuyCandidate(nil), state.Plan.Entries...)
		snap.Plan = &plan
	}

	s.statusMu.Lock()
	s.status = snap
	s.statusMu.Unlock()
}

// Status 返回最近一次 tick 发布的快照
func (s *Scheduler) Status() StatusSnapshot {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}
