package domain

import (
	"time"
)

// RiskState 风控状态单例。
// 不变式：daily_loss_usd 在一个自然日内只增不减，由每日边界任务清零；
// cooldown_until 一旦设置，在时间点过去之前阻断新开仓（不阻断平仓）。
// 只能通过 riskstore 的访问器变更，策略引擎每次评估前读取完整快照。
type RiskState struct {
	KillSwitchActive bool       `json:"kill_switch_active"`
	KillSwitchReason string     `json:"kill_switch_reason"`
	DailyLossUSD     float64    `json:"daily_loss_usd"`
	DailyLossResetAt time.Time  `json:"daily_loss_reset_at"`
	CooldownUntil    *time.Time `json:"cooldown_until,omitempty"`
	LastLossAt       *time.Time `json:"last_loss_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// InCooldown 当前是否处于冷却期
func (r *RiskState) InCooldown(now time.Time) bool {
	return r.CooldownUntil != nil && now.Before(*r.CooldownUntil)
}
