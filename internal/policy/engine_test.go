package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/pkg/config"
)

func testPolicyConfig() *config.PolicyConfig {
	cfg := &config.Config{}
	cfg.Defaults()
	cfg.Policy.MaxTradeNotional = 10000
	return &cfg.Policy
}

func testInput(proposal *domain.OrderProposal) Input {
	return Input{
		Proposal: proposal,
		Account:  &domain.AccountSnapshot{Equity: 100000, Cash: 50000, BuyingPower: 50000},
		Clock:    &domain.MarketClock{IsOpen: true, Timestamp: time.Now()},
		Risk:     &domain.RiskState{},
		Now:      time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC),
	}
}

func buyProposal(symbol string, notional float64) *domain.OrderProposal {
	return &domain.OrderProposal{
		Side:        domain.SideBuy,
		Symbol:      symbol,
		AssetClass:  domain.AssetClassEquity,
		Notional:    notional,
		OrderType:   domain.OrderTypeMarket,
		TimeInForce: domain.TimeInForceDay,
	}
}

func hasRule(violations []domain.Violation, rule string) bool {
	for _, v := range violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

func TestEvaluateIsDeterministic(t *testing.T) {
	cfg := testPolicyConfig()
	in := testInput(buyProposal("AAPL", 3000))
	in.Risk.KillSwitchActive = true
	in.Clock.IsOpen = false

	first := Evaluate(cfg, in)
	second := Evaluate(cfg, in)
	require.Equal(t, first, second)
}

func TestKillSwitchDeniesBuys(t *testing.T) {
	cfg := testPolicyConfig()
	in := testInput(buyProposal("AAPL", 1000))
	in.Risk.KillSwitchActive = true
	in.Risk.KillSwitchReason = "manual"

	dec := Evaluate(cfg, in)
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleKillSwitch))
}

func TestDailyLossBoundary(t *testing.T) {
	cfg := testPolicyConfig() // max_daily_loss_pct = 0.02

	in := testInput(buyProposal("AAPL", 1000))
	in.Risk.DailyLossUSD = 1900 // 1.9% of 100k
	dec := Evaluate(cfg, in)
	require.True(t, dec.Allowed)

	in.Risk.DailyLossUSD = 2000 // 恰好 2%，等于也拒
	dec = Evaluate(cfg, in)
	require.False(t, dec.Allowed)
	require.True(t, hasRule(dec.Violations, RuleDailyLossLimit))
}

func TestShortSellingBlockedWithoutPosition(t *testing.T) {
	cfg := testPolicyConfig()
	in := testInput(&domain.OrderProposal{
		Side:       domain.SideSell,
		Symbol:     "TSLA",
		AssetClass: domain.AssetClassEquity,
		Qty:        10,
		OrderType:  domain.OrderTypeMarket,
	})
	// 其他输入怎么变都不影响这条
	in.Risk.KillSwitchActive = true

	dec := Evaluate(cfg, in)
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleShortSellingBlocked))
}

func TestMaxPositionPctScenario(t *testing.T) {
	// equity=100k，已持 AAPL $8k，买 $3k，上限 10% -> 11% 拒绝
	cfg := testPolicyConfig()
	in := testInput(buyProposal("AAPL", 3000))
	in.Positions = []domain.BrokerPosition{{
		Symbol: "AAPL", AssetClass: domain.AssetClassEquity,
		Qty: 40, MarketValue: 8000, CurrentPrice: 200,
	}}

	dec := Evaluate(cfg, in)
	require.False(t, dec.Allowed)
	var found *domain.Violation
	for i := range dec.Violations {
		if dec.Violations[i].Rule == RuleMaxPositionPct {
			found = &dec.Violations[i]
		}
	}
	require.NotNil(t, found)
	assert.InDelta(t, 0.11, found.CurrentValue, 1e-9)
	assert.InDelta(t, 0.10, found.LimitValue, 1e-9)
}

func TestPositionNearCapWarns(t *testing.T) {
	cfg := testPolicyConfig()
	in := testInput(buyProposal("AAPL", 8500)) // 8.5%，超过 10% 上限的 80%

	dec := Evaluate(cfg, in)
	require.True(t, dec.Allowed)
	var warned bool
	for _, w := range dec.Warnings {
		if w.Rule == WarnPositionNearCap {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestMarketClosed(t *testing.T) {
	cfg := testPolicyConfig()
	in := testInput(buyProposal("AAPL", 1000))
	in.Clock.IsOpen = false

	dec := Evaluate(cfg, in)
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleMarketClosed))

	cfg.AllowExtendedHours = true
	dec = Evaluate(cfg, in)
	require.True(t, dec.Allowed)
	require.Len(t, dec.Warnings, 1)
	assert.Equal(t, WarnExtendedHours, dec.Warnings[0].Rule)
}

func TestCryptoExemptFromMarketHours(t *testing.T) {
	cfg := testPolicyConfig()
	in := testInput(&domain.OrderProposal{
		Side:        domain.SideBuy,
		Symbol:      "BTCUSD",
		AssetClass:  domain.AssetClassCrypto,
		Notional:    500,
		OrderType:   domain.OrderTypeMarket,
		TimeInForce: domain.TimeInForceGTC,
	})
	in.Clock.IsOpen = false

	dec := Evaluate(cfg, in)
	require.True(t, dec.Allowed)
}

func TestNoShortCircuit(t *testing.T) {
	// kill switch + 闭市 + 黑名单：三条违规一次全部报告
	cfg := testPolicyConfig()
	cfg.SymbolDenylist = []string{"GME"}
	in := testInput(buyProposal("GME", 1000))
	in.Risk.KillSwitchActive = true
	in.Clock.IsOpen = false

	dec := Evaluate(cfg, in)
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleKillSwitch))
	assert.True(t, hasRule(dec.Violations, RuleMarketClosed))
	assert.True(t, hasRule(dec.Violations, RuleSymbolNotAllowed))
	assert.Len(t, dec.Violations, 3)
}

func TestSymbolAllowlist(t *testing.T) {
	cfg := testPolicyConfig()
	cfg.SymbolAllowlist = []string{"AAPL", "MSFT"}

	dec := Evaluate(cfg, testInput(buyProposal("AAPL", 1000)))
	require.True(t, dec.Allowed)

	dec = Evaluate(cfg, testInput(buyProposal("NVDA", 1000)))
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleSymbolNotAllowed))
}

func TestTradeNotionalCap(t *testing.T) {
	cfg := testPolicyConfig()
	dec := Evaluate(cfg, testInput(buyProposal("AAPL", 10001)))
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleMaxTradeNotional))
}

func TestInsufficientFunds(t *testing.T) {
	cfg := testPolicyConfig()
	cfg.MaxTradeNotional = 1e9
	cfg.MaxPositionPctEquity = 1.0
	in := testInput(buyProposal("AAPL", 60000)) // cash/buying power 只有 50k

	dec := Evaluate(cfg, in)
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleInsufficientFunds))
}

func TestMaxOpenPositionsOnlyBlocksNewSymbols(t *testing.T) {
	cfg := testPolicyConfig()
	cfg.MaxOpenPositions = 1
	in := testInput(buyProposal("AAPL", 1000))
	in.Positions = []domain.BrokerPosition{{
		Symbol: "AAPL", AssetClass: domain.AssetClassEquity, Qty: 5, MarketValue: 1000,
	}}

	// 已持有的 symbol 加仓不受持仓数限制
	dec := Evaluate(cfg, in)
	require.True(t, dec.Allowed)

	in.Proposal = buyProposal("MSFT", 1000)
	dec = Evaluate(cfg, in)
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleMaxOpenPositions))
}
