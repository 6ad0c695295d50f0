package policy

import (
	"fmt"
	"math"

	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/pkg/config"
)

// optionsRules 期权订单的平行规则列表。前四条与股票规则共用，
// 之后是期权专属约束。同样逐条执行、不短路。
var optionsRules = []rule{
	{RuleKillSwitch, checkKillSwitch},
	{RuleCooldownActive, checkCooldown},
	{RuleDailyLossLimit, checkDailyLoss},
	{RuleMarketClosed, checkMarketHours},
	{RuleOptionsDisabled, checkOptionsEnabled},
	{RuleOptionsMinDTE, checkDTE},
	{RuleOptionsDeltaRange, checkDelta},
	{RuleOptionsStrategyBlocked, checkOptionsStrategy},
	{RuleOptionsMaxTradePct, checkOptionsTradePct},
	{RuleOptionsMaxExposurePct, checkOptionsExposure},
	{RuleOptionsMaxPositions, checkOptionsPositions},
	{RuleOptionsNoAveragingDown, checkNoAveragingDown},
	{RuleOptionsBuyingPower, checkOptionsBuyingPower},
}

// EvaluateOptionsOrder 对期权订单提案做完整评估。
// 提案必须携带期权腿，否则直接以策略限制拒绝。
func EvaluateOptionsOrder(cfg *config.PolicyConfig, opts *config.OptionsConfig, in Input) domain.PolicyDecision {
	dec := domain.PolicyDecision{Allowed: true}
	rc := &ruleCtx{cfg: cfg, opts: opts, in: &in, dec: &dec}
	if !in.Proposal.IsOption() {
		dec.Deny(domain.Violation{
			Rule:    RuleOptionsStrategyBlocked,
			Message: "proposal does not carry an option leg",
		})
		return dec
	}
	for _, r := range optionsRules {
		r.check(rc)
	}
	return dec
}

func checkOptionsEnabled(rc *ruleCtx) {
	if rc.opts.Enabled {
		return
	}
	rc.dec.Deny(domain.Violation{
		Rule:    RuleOptionsDisabled,
		Message: "options trading is disabled",
	})
}

func checkDTE(rc *ruleCtx) {
	dte := rc.in.Proposal.Option.DaysToExpiration(rc.in.Now)
	// 闭区间：dte == MinDTE 允许，dte == MaxDTE 允许
	if dte < rc.opts.MinDTE {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleOptionsMinDTE,
			Message:      fmt.Sprintf("dte %d below minimum %d", dte, rc.opts.MinDTE),
			CurrentValue: float64(dte),
			LimitValue:   float64(rc.opts.MinDTE),
		})
		return
	}
	if dte > rc.opts.MaxDTE {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleOptionsMaxDTE,
			Message:      fmt.Sprintf("dte %d above maximum %d", dte, rc.opts.MaxDTE),
			CurrentValue: float64(dte),
			LimitValue:   float64(rc.opts.MaxDTE),
		})
	}
}

func checkDelta(rc *ruleCtx) {
	leg := rc.in.Proposal.Option
	if leg.Delta == nil {
		// 上游并不总能给出 delta：缺失降级为告警，不拒单
		rc.dec.Warn(domain.Warning{
			Rule:    WarnOptionsDeltaUnknown,
			Message: "delta unavailable for contract, range check skipped",
		})
		return
	}
	absDelta := math.Abs(*leg.Delta)
	if absDelta < rc.opts.MinAbsDelta || absDelta > rc.opts.MaxAbsDelta {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleOptionsDeltaRange,
			Message:      fmt.Sprintf("abs delta %.2f outside [%.2f, %.2f]", absDelta, rc.opts.MinAbsDelta, rc.opts.MaxAbsDelta),
			CurrentValue: absDelta,
			LimitValue:   rc.opts.MaxAbsDelta,
		})
	}
}

func checkOptionsStrategy(rc *ruleCtx) {
	// 只允许 long call / long put：买方向 + call/put 类型
	p := rc.in.Proposal
	if p.Side != domain.SideBuy {
		rc.dec.Deny(domain.Violation{
			Rule:    RuleOptionsStrategyBlocked,
			Message: "only long call / long put strategies are permitted",
		})
		return
	}
	switch p.Option.Type {
	case domain.OptionCall, domain.OptionPut:
	default:
		rc.dec.Deny(domain.Violation{
			Rule:    RuleOptionsStrategyBlocked,
			Message: fmt.Sprintf("unknown option type %q", p.Option.Type),
		})
	}
}

func checkOptionsTradePct(rc *ruleCtx) {
	if rc.in.Account == nil || rc.in.Account.Equity <= 0 {
		return
	}
	ratio := rc.in.Proposal.Notional / rc.in.Account.Equity
	cap := rc.opts.MaxTradePctEquity
	if ratio > cap {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleOptionsMaxTradePct,
			Message:      fmt.Sprintf("options trade %.2f%% of equity exceeds cap %.2f%%", ratio*100, cap*100),
			CurrentValue: ratio,
			LimitValue:   cap,
		})
		return
	}
	if ratio >= cap*0.8 {
		rc.dec.Warn(domain.Warning{
			Rule:    WarnOptionsTradeNearCap,
			Message: fmt.Sprintf("options trade at %.2f%% of equity, over 80%% of the %.2f%% cap", ratio*100, cap*100),
		})
	}
}

func checkOptionsExposure(rc *ruleCtx) {
	if rc.in.Account == nil || rc.in.Account.Equity <= 0 {
		return
	}
	exposure := rc.in.Proposal.Notional
	for _, pos := range rc.optionsPositions() {
		exposure += pos.MarketValue
	}
	ratio := exposure / rc.in.Account.Equity
	cap := rc.opts.MaxExposurePctEquity
	if ratio > cap {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleOptionsMaxExposurePct,
			Message:      fmt.Sprintf("aggregate options exposure %.2f%% of equity exceeds cap %.2f%%", ratio*100, cap*100),
			CurrentValue: ratio,
			LimitValue:   cap,
		})
		return
	}
	if ratio >= cap*0.8 {
		rc.dec.Warn(domain.Warning{
			Rule:    WarnOptionsExposureNear,
			Message: fmt.Sprintf("aggregate options exposure at %.2f%% of equity, over 80%% of the %.2f%% cap", ratio*100, cap*100),
		})
	}
}

func checkOptionsPositions(rc *ruleCtx) {
	held := rc.optionsPositions()
	// 已持有的合约允许继续评估（受 no-averaging-down 约束），只拦新合约
	for _, pos := range held {
		if pos.Symbol == rc.in.Proposal.Symbol {
			return
		}
	}
	if len(held) >= rc.opts.MaxOpenPositions {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleOptionsMaxPositions,
			Message:      fmt.Sprintf("options positions %d at configured maximum %d", len(held), rc.opts.MaxOpenPositions),
			CurrentValue: float64(len(held)),
			LimitValue:   float64(rc.opts.MaxOpenPositions),
		})
	}
}

func checkNoAveragingDown(rc *ruleCtx) {
	// 禁止对浮亏期权加仓：无条件拒绝，没有任何覆盖开关
	for _, pos := range rc.optionsPositions() {
		if pos.Symbol == rc.in.Proposal.Symbol && pos.UnrealizedPL < 0 {
			rc.dec.Deny(domain.Violation{
				Rule:         RuleOptionsNoAveragingDown,
				Message:      fmt.Sprintf("position %s has unrealized loss $%.2f, averaging down is never allowed", pos.Symbol, pos.UnrealizedPL),
				CurrentValue: pos.UnrealizedPL,
			})
			return
		}
	}
}

func checkOptionsBuyingPower(rc *ruleCtx) {
	if rc.in.Account == nil {
		return
	}
	available := rc.in.Account.BuyingPower
	if rc.cfg.CashOnly {
		available = rc.in.Account.Cash
	}
	if rc.in.Proposal.Notional > available {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleOptionsBuyingPower,
			Message:      fmt.Sprintf("options notional $%.2f exceeds available funds $%.2f", rc.in.Proposal.Notional, available),
			CurrentValue: rc.in.Proposal.Notional,
			LimitValue:   available,
		})
	}
}
