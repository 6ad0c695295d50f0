package domain

import (
	"time"
)

// PreMarketPlan 盘前计划：闭市窗口内构建，开盘后短窗口内执行一次。
type PreMarketPlan struct {
	PlanDate string         `json:"plan_date"` // YYYY-MM-DD
	BuiltAt  time.Time      `json:"built_at"`
	Entries  []BuyCandidate `json:"entries"`
	Executed bool           `json:"executed"`
}

// AgentState 聚合根：信号缓存、持仓账本、挂单、成本与调度时间戳。
// 单写者：只有调度器的 tick goroutine 变更它；控制面通过只读快照观察。
// 每个 tick 结束后整体落盘，进程启动时加载一次。
type AgentState struct {
	Enabled bool `json:"enabled"`

	SignalCache     map[string]Signal         `json:"signal_cache"`
	PositionEntries map[string]*PositionEntry `json:"position_entries"`
	PendingOrders   PendingOrders             `json:"pending_orders"`

	// ResearchCostUSD 研究调用的累计开销（外部研究层上报）
	ResearchCostUSD float64 `json:"research_cost_usd"`

	LastDataGatherRun       time.Time      `json:"last_data_gather_run"`
	LastAnalystRun          time.Time      `json:"last_analyst_run"`
	LastPositionResearchRun time.Time      `json:"last_position_research_run"`
	LastTickAt              time.Time      `json:"last_tick_at"`
	LastClockOpen           bool           `json:"last_clock_open"`
	LastDailyResetDay       string         `json:"last_daily_reset_day"` // YYYY-MM-DD
	Plan                    *PreMarketPlan `json:"plan,omitempty"`
}

// NewAgentState 创建空状态
func NewAgentState() *AgentState {
	return &AgentState{
		Enabled:         true,
		SignalCache:     make(map[string]Signal),
		PositionEntries: make(map[string]*PositionEntry),
		PendingOrders:   make(PendingOrders, 0),
	}
}

// Normalize 修复反序列化后可能为 nil 的容器字段
func (s *AgentState) Normalize() {
	if s.SignalCache == nil {
		s.SignalCache = make(map[string]Signal)
	}
	if s.PositionEntries == nil {
		s.PositionEntries = make(map[string]*PositionEntry)
	}
	if s.PendingOrders == nil {
		s.PendingOrders = make(PendingOrders, 0)
	}
}
