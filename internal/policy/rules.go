package policy

import (
	"time"

	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/pkg/config"
)

// 规则标识符：稳定字符串，调用方按此分支，禁止改名。
const (
	RuleKillSwitch          = "kill_switch"
	RuleCooldownActive      = "cooldown_active"
	RuleDailyLossLimit      = "daily_loss_limit"
	RuleMarketClosed        = "market_closed"
	RuleSymbolNotAllowed    = "symbol_not_allowed"
	RuleOrderTypeNotAllowed = "order_type_not_allowed"
	RuleMaxTradeNotional    = "max_trade_notional"
	RuleMaxPositionPct      = "max_position_pct"
	RuleMaxOpenPositions    = "max_open_positions"
	RuleShortSellingBlocked = "short_selling_blocked"
	RuleInsufficientFunds   = "insufficient_funds"

	RuleOptionsDisabled          = "options_disabled"
	RuleOptionsMinDTE            = "options_min_dte"
	RuleOptionsMaxDTE            = "options_max_dte"
	RuleOptionsDeltaRange        = "options_delta_range"
	RuleOptionsStrategyBlocked   = "options_strategy_not_allowed"
	RuleOptionsMaxTradePct       = "options_max_trade_pct"
	RuleOptionsMaxExposurePct    = "options_max_exposure_pct"
	RuleOptionsMaxPositions      = "options_max_positions"
	RuleOptionsNoAveragingDown   = "options_no_averaging_down"
	RuleOptionsBuyingPower       = "options_buying_power"
)

// 告警标识符
const (
	WarnExtendedHours       = "extended_hours"
	WarnPositionNearCap     = "position_near_cap"
	WarnOptionsDeltaUnknown = "options_delta_unknown"
	WarnOptionsTradeNearCap = "options_trade_near_cap"
	WarnOptionsExposureNear = "options_exposure_near_cap"
)

// Input 一次评估的全部输入。引擎本身无状态：
// 相同输入必然产出相同决策。
type Input struct {
	Proposal  *domain.OrderProposal
	Account   *domain.AccountSnapshot
	Positions []domain.BrokerPosition
	Clock     *domain.MarketClock
	Risk      *domain.RiskState
	Now       time.Time
}

// ruleCtx 规则执行上下文：输入 + 配置 + 决策累加器
type ruleCtx struct {
	cfg  *config.PolicyConfig
	opts *config.OptionsConfig
	in   *Input
	dec  *domain.PolicyDecision
}

// rule 独立的检查函数 + 稳定标识。所有规则无条件执行、
// 从不短路，调用方一次看到全部违规。
type rule struct {
	id    string
	check func(rc *ruleCtx)
}

// heldPosition 查找 symbol 当前持仓（无则返回 nil）
func (rc *ruleCtx) heldPosition(symbol string) *domain.BrokerPosition {
	for i := range rc.in.Positions {
		if rc.in.Positions[i].Symbol == symbol {
			return &rc.in.Positions[i]
		}
	}
	return nil
}

// proposalValue 提案的美元价值估计：Notional 优先，
// 数量下单时用持仓现价折算（无持仓则无法定价，返回 0）。
func (rc *ruleCtx) proposalValue() float64 {
	p := rc.in.Proposal
	if p.Notional > 0 {
		return p.Notional
	}
	if p.Qty > 0 {
		if pos := rc.heldPosition(p.Symbol); pos != nil && pos.CurrentPrice > 0 {
			return p.Qty * pos.CurrentPrice
		}
	}
	return 0
}

// optionsPositions 过滤出期权持仓
func (rc *ruleCtx) optionsPositions() []domain.BrokerPosition {
	var out []domain.BrokerPosition
	for _, pos := range rc.in.Positions {
		if pos.AssetClass == domain.AssetClassOption {
			out = append(out, pos)
		}
	}
	return out
}
