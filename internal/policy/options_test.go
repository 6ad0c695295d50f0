package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/pkg/config"
)

func testOptionsConfig() (*config.PolicyConfig, *config.OptionsConfig) {
	cfg := &config.Config{}
	cfg.Defaults()
	cfg.Options.Enabled = true
	return &cfg.Policy, &cfg.Options
}

func floatPtr(v float64) *float64 { return &v }

func optionInput(now time.Time, dte int, delta *float64, notional float64) Input {
	in := testInput(&domain.OrderProposal{
		Side:       domain.SideBuy,
		Symbol:     "AAPL",
		AssetClass: domain.AssetClassOption,
		Notional:   notional,
		OrderType:  domain.OrderTypeMarket,
		Option: &domain.OptionLeg{
			Strike:     190,
			Expiration: now.Add(time.Duration(dte) * 24 * time.Hour),
			Type:       domain.OptionCall,
			Delta:      delta,
		},
	})
	in.Now = now
	return in
}

func TestOptionsDTEBoundary(t *testing.T) {
	cfg, opts := testOptionsConfig() // min_dte=30
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)

	dec := EvaluateOptionsOrder(cfg, opts, optionInput(now, 29, floatPtr(0.5), 1000))
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleOptionsMinDTE))

	// 下界闭区间：dte == min_dte 允许
	dec = EvaluateOptionsOrder(cfg, opts, optionInput(now, 30, floatPtr(0.5), 1000))
	require.True(t, dec.Allowed)

	dec = EvaluateOptionsOrder(cfg, opts, optionInput(now, 121, floatPtr(0.5), 1000))
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleOptionsMaxDTE))
}

func TestOptionsDisabled(t *testing.T) {
	cfg, opts := testOptionsConfig()
	opts.Enabled = false
	now := time.Now()

	dec := EvaluateOptionsOrder(cfg, opts, optionInput(now, 60, floatPtr(0.5), 1000))
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleOptionsDisabled))
}

func TestOptionsDeltaRange(t *testing.T) {
	cfg, opts := testOptionsConfig() // [0.30, 0.70]
	now := time.Now()

	dec := EvaluateOptionsOrder(cfg, opts, optionInput(now, 60, floatPtr(0.85), 1000))
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleOptionsDeltaRange))

	// put 的负 delta 取绝对值
	dec = EvaluateOptionsOrder(cfg, opts, optionInput(now, 60, floatPtr(-0.5), 1000))
	require.True(t, dec.Allowed)
}

func TestOptionsMissingDeltaWarnsOnly(t *testing.T) {
	cfg, opts := testOptionsConfig()
	now := time.Now()

	dec := EvaluateOptionsOrder(cfg, opts, optionInput(now, 60, nil, 1000))
	require.True(t, dec.Allowed)
	var warned bool
	for _, w := range dec.Warnings {
		if w.Rule == WarnOptionsDeltaUnknown {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestOptionsNoAveragingDown(t *testing.T) {
	cfg, opts := testOptionsConfig()
	now := time.Now()
	in := optionInput(now, 60, floatPtr(0.5), 1000)
	in.Positions = []domain.BrokerPosition{{
		Symbol:       "AAPL",
		AssetClass:   domain.AssetClassOption,
		Qty:          1,
		MarketValue:  800,
		UnrealizedPL: -200,
	}}

	// 其他检查全过也必须拒绝，没有覆盖开关
	dec := EvaluateOptionsOrder(cfg, opts, in)
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleOptionsNoAveragingDown))
}

func TestOptionsOnlyLongStrategies(t *testing.T) {
	cfg, opts := testOptionsConfig()
	now := time.Now()
	in := optionInput(now, 60, floatPtr(0.5), 1000)
	in.Proposal.Side = domain.SideSell

	dec := EvaluateOptionsOrder(cfg, opts, in)
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleOptionsStrategyBlocked))
}

func TestOptionsTradePctCap(t *testing.T) {
	cfg, opts := testOptionsConfig() // 2% of 100k = 2000
	now := time.Now()

	dec := EvaluateOptionsOrder(cfg, opts, optionInput(now, 60, floatPtr(0.5), 2500))
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleOptionsMaxTradePct))
}

func TestOptionsExposureCap(t *testing.T) {
	cfg, opts := testOptionsConfig() // 总敞口 10% of 100k = 10000
	now := time.Now()
	in := optionInput(now, 60, floatPtr(0.5), 1500)
	in.Positions = []domain.BrokerPosition{{
		Symbol:       "MSFT260116C00400000",
		AssetClass:   domain.AssetClassOption,
		Qty:          5,
		MarketValue:  9000,
		UnrealizedPL: 500,
	}}

	dec := EvaluateOptionsOrder(cfg, opts, in)
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleOptionsMaxExposurePct))
}

func TestOptionsProposalWithoutLeg(t *testing.T) {
	cfg, opts := testOptionsConfig()
	in := testInput(buyProposal("AAPL", 1000))

	dec := EvaluateOptionsOrder(cfg, opts, in)
	require.False(t, dec.Allowed)
	assert.True(t, hasRule(dec.Violations, RuleOptionsStrategyBlocked))
}
