package policy

import (
	"fmt"
	"strings"

	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/pkg/config"
)

// equityRules 股票/加密货币订单的规则列表。顺序固定，逐条执行，
// 失败不短路：调用方一次拿到全部违规，而不是只看到第一条。
// 新增规则 = 追加一项，不改调用链。
var equityRules = []rule{
	{RuleKillSwitch, checkKillSwitch},
	{RuleCooldownActive, checkCooldown},
	{RuleDailyLossLimit, checkDailyLoss},
	{RuleMarketClosed, checkMarketHours},
	{RuleSymbolNotAllowed, checkSymbolList},
	{RuleOrderTypeNotAllowed, checkOrderType},
	{RuleMaxTradeNotional, checkTradeNotional},
	{RuleMaxPositionPct, checkPositionPct},
	{RuleMaxOpenPositions, checkOpenPositions},
	{RuleShortSellingBlocked, checkShortSelling},
	{RuleInsufficientFunds, checkFunds},
}

// Evaluate 对股票/加密货币订单提案做完整评估。
// 纯函数：不缓存、不落状态，相同输入产出相同决策。
func Evaluate(cfg *config.PolicyConfig, in Input) domain.PolicyDecision {
	dec := domain.PolicyDecision{Allowed: true}
	rc := &ruleCtx{cfg: cfg, in: &in, dec: &dec}
	for _, r := range equityRules {
		r.check(rc)
	}
	return dec
}

// ---- 共用检查（股票与期权两套规则的 1-4 条）----

func checkKillSwitch(rc *ruleCtx) {
	if rc.in.Risk == nil || !rc.in.Risk.KillSwitchActive {
		return
	}
	rc.dec.Deny(domain.Violation{
		Rule:    RuleKillSwitch,
		Message: fmt.Sprintf("kill switch active: %s", rc.in.Risk.KillSwitchReason),
	})
}

func checkCooldown(rc *ruleCtx) {
	if rc.in.Risk == nil || !rc.in.Risk.InCooldown(rc.in.Now) {
		return
	}
	remaining := rc.in.Risk.CooldownUntil.Sub(rc.in.Now)
	rc.dec.Deny(domain.Violation{
		Rule:         RuleCooldownActive,
		Message:      fmt.Sprintf("cooldown active for another %s", remaining.Round(1e9)),
		CurrentValue: remaining.Seconds(),
	})
}

func checkDailyLoss(rc *ruleCtx) {
	if rc.in.Risk == nil || rc.in.Account == nil || rc.in.Account.Equity <= 0 {
		return
	}
	ratio := rc.in.Risk.DailyLossUSD / rc.in.Account.Equity
	// 比例达到上限即违规：等于也算（保守偏置）
	if ratio >= rc.cfg.MaxDailyLossPct {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleDailyLossLimit,
			Message:      fmt.Sprintf("daily loss %.2f%% of equity reached limit %.2f%%", ratio*100, rc.cfg.MaxDailyLossPct*100),
			CurrentValue: ratio,
			LimitValue:   rc.cfg.MaxDailyLossPct,
		})
	}
}

func checkMarketHours(rc *ruleCtx) {
	// 加密货币 24/7，豁免闭市检查
	if rc.in.Proposal.AssetClass == domain.AssetClassCrypto {
		return
	}
	if rc.in.Clock == nil || rc.in.Clock.IsOpen {
		return
	}
	if rc.cfg.AllowExtendedHours {
		rc.dec.Warn(domain.Warning{
			Rule:    WarnExtendedHours,
			Message: "market closed, order will route to extended hours",
		})
		return
	}
	rc.dec.Deny(domain.Violation{
		Rule:    RuleMarketClosed,
		Message: "market is closed and extended hours trading is disabled",
	})
}

// ---- 股票/加密货币专属检查（5-11 条）----

func checkSymbolList(rc *ruleCtx) {
	symbol := rc.in.Proposal.Symbol
	for _, deny := range rc.cfg.SymbolDenylist {
		if strings.EqualFold(deny, symbol) {
			rc.dec.Deny(domain.Violation{
				Rule:    RuleSymbolNotAllowed,
				Message: fmt.Sprintf("symbol %s is on the denylist", symbol),
			})
			return
		}
	}
	if len(rc.cfg.SymbolAllowlist) == 0 {
		return
	}
	for _, allow := range rc.cfg.SymbolAllowlist {
		if strings.EqualFold(allow, symbol) {
			return
		}
	}
	rc.dec.Deny(domain.Violation{
		Rule:    RuleSymbolNotAllowed,
		Message: fmt.Sprintf("symbol %s is not on the allowlist", symbol),
	})
}

func checkOrderType(rc *ruleCtx) {
	ot := string(rc.in.Proposal.OrderType)
	for _, allowed := range rc.cfg.AllowedOrderTypes {
		if strings.EqualFold(allowed, ot) {
			return
		}
	}
	rc.dec.Deny(domain.Violation{
		Rule:    RuleOrderTypeNotAllowed,
		Message: fmt.Sprintf("order type %q is not in the allowed set", ot),
	})
}

func checkTradeNotional(rc *ruleCtx) {
	value := rc.proposalValue()
	if value > rc.cfg.MaxTradeNotional {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleMaxTradeNotional,
			Message:      fmt.Sprintf("notional $%.2f exceeds per-trade cap $%.2f", value, rc.cfg.MaxTradeNotional),
			CurrentValue: value,
			LimitValue:   rc.cfg.MaxTradeNotional,
		})
	}
}

func checkPositionPct(rc *ruleCtx) {
	if rc.in.Proposal.Side != domain.SideBuy || rc.in.Account == nil || rc.in.Account.Equity <= 0 {
		return
	}
	existing := 0.0
	if pos := rc.heldPosition(rc.in.Proposal.Symbol); pos != nil {
		existing = pos.MarketValue
	}
	resulting := existing + rc.proposalValue()
	ratio := resulting / rc.in.Account.Equity
	cap := rc.cfg.MaxPositionPctEquity
	if ratio > cap {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleMaxPositionPct,
			Message:      fmt.Sprintf("resulting position $%.2f would be %.1f%% of equity, cap %.1f%%", resulting, ratio*100, cap*100),
			CurrentValue: ratio,
			LimitValue:   cap,
		})
		return
	}
	if ratio >= cap*0.8 {
		rc.dec.Warn(domain.Warning{
			Rule:    WarnPositionNearCap,
			Message: fmt.Sprintf("resulting position at %.1f%% of equity, over 80%% of the %.1f%% cap", ratio*100, cap*100),
		})
	}
}

func checkOpenPositions(rc *ruleCtx) {
	if rc.in.Proposal.Side != domain.SideBuy {
		return
	}
	// 已持有的 symbol 允许加仓，只拦新 symbol
	if rc.heldPosition(rc.in.Proposal.Symbol) != nil {
		return
	}
	count := len(rc.in.Positions)
	if count >= rc.cfg.MaxOpenPositions {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleMaxOpenPositions,
			Message:      fmt.Sprintf("open positions %d at configured maximum %d", count, rc.cfg.MaxOpenPositions),
			CurrentValue: float64(count),
			LimitValue:   float64(rc.cfg.MaxOpenPositions),
		})
	}
}

func checkShortSelling(rc *ruleCtx) {
	if rc.in.Proposal.Side != domain.SideSell || rc.cfg.AllowShortSelling {
		return
	}
	pos := rc.heldPosition(rc.in.Proposal.Symbol)
	if pos == nil {
		rc.dec.Deny(domain.Violation{
			Rule:    RuleShortSellingBlocked,
			Message: fmt.Sprintf("no position in %s and short selling is disabled", rc.in.Proposal.Symbol),
		})
		return
	}
	if rc.in.Proposal.Qty > pos.Qty {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleShortSellingBlocked,
			Message:      fmt.Sprintf("sell qty %.4f exceeds held qty %.4f", rc.in.Proposal.Qty, pos.Qty),
			CurrentValue: rc.in.Proposal.Qty,
			LimitValue:   pos.Qty,
		})
	}
}

func checkFunds(rc *ruleCtx) {
	if rc.in.Proposal.Side != domain.SideBuy || rc.in.Account == nil {
		return
	}
	available := rc.in.Account.BuyingPower
	if rc.cfg.CashOnly {
		available = rc.in.Account.Cash
	}
	value := rc.proposalValue()
	if value > available {
		rc.dec.Deny(domain.Violation{
			Rule:         RuleInsufficientFunds,
			Message:      fmt.Sprintf("notional $%.2f exceeds available funds $%.2f", value, available),
			CurrentValue: value,
			LimitValue:   available,
		})
	}
}
