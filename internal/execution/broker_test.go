package execution

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbot/gotrade/internal/brokerage"
	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/pkg/config"
)

type riskStub struct {
	state domain.RiskState
}

func (r *riskStub) Snapshot() (domain.RiskState, error) { return r.state, nil }

func testBroker(paper *brokerage.PaperClient, risk *riskStub, mutate func(*config.Config)) *Broker {
	cfg := &config.Config{}
	cfg.Defaults()
	if mutate != nil {
		mutate(cfg)
	}
	return NewBroker(paper, risk, func() *config.Config { return cfg })
}

func TestBuySubmitsAndInvalidatesCache(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	b := testBroker(paper, &riskStub{}, nil)
	cache := NewCycleCache(paper)

	// 预热缓存，提交成功后必须整体失效
	_, err := cache.Account(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cache.CachedAccount())

	po := b.Buy(context.Background(), cache, domain.BuyCandidate{
		Symbol: "AAPL", Notional: 500, Reason: "test entry",
	})
	require.NotNil(t, po)
	assert.Equal(t, paper.LastOrderID(), po.OrderID)
	assert.Equal(t, "AAPL", po.Symbol)
	assert.Nil(t, cache.CachedAccount())
}

func TestBuyDeniedByPolicyReturnsNil(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	b := testBroker(paper, &riskStub{}, nil)
	cache := NewCycleCache(paper)

	// 默认单笔上限 1000
	po := b.Buy(context.Background(), cache, domain.BuyCandidate{Symbol: "AAPL", Notional: 5000})
	assert.Nil(t, po)
}

func TestKillSwitchAsymmetry(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	paper.SeedPosition(domain.BrokerPosition{
		Symbol: "AAPL", AssetClass: domain.AssetClassEquity,
		Qty: 10, AvgEntryPrice: 150, MarketValue: 1600, CurrentPrice: 160,
	})
	risk := &riskStub{state: domain.RiskState{KillSwitchActive: true, KillSwitchReason: "manual"}}
	b := testBroker(paper, risk, nil)

	// 买入被 kill switch 拒绝
	buy := b.Buy(context.Background(), NewCycleCache(paper), domain.BuyCandidate{Symbol: "MSFT", Notional: 500})
	assert.Nil(t, buy)

	// 卖出不进引擎，kill switch 激活时仍然放行
	sell := b.Sell(context.Background(), NewCycleCache(paper), domain.SellCandidate{Symbol: "AAPL", Reason: "exit"})
	require.NotNil(t, sell)
	assert.Equal(t, 150.0, sell.EntryPrice) // 平仓前快照了入场价
}

func TestSellDuringCooldownStillPermitted(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	paper.SeedPosition(domain.BrokerPosition{
		Symbol: "AAPL", AssetClass: domain.AssetClassEquity,
		Qty: 10, AvgEntryPrice: 150, MarketValue: 1600,
	})
	until := time.Now().Add(30 * time.Minute)
	risk := &riskStub{state: domain.RiskState{CooldownUntil: &until}}
	b := testBroker(paper, risk, nil)

	sell := b.Sell(context.Background(), NewCycleCache(paper), domain.SellCandidate{Symbol: "AAPL"})
	assert.NotNil(t, sell)
}

func TestBuyOptionUsesContractSymbol(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	delta := 0.5
	b := testBroker(paper, &riskStub{}, func(cfg *config.Config) {
		cfg.Options.Enabled = true
	})
	b.nowFn = func() time.Time { return time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC) } // dte=48

	po := b.BuyOption(context.Background(), NewCycleCache(paper), domain.OptionCandidate{
		Symbol:   "AAPL",
		Notional: 1000,
		Leg: domain.OptionLeg{
			Strike:     190,
			Expiration: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
			Type:       domain.OptionCall,
			Delta:      &delta,
		},
	})
	require.NotNil(t, po)
	assert.Equal(t, "AAPL261016C00190000", po.Symbol)
}

func TestBuyRejectsInvalidCandidate(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	b := testBroker(paper, &riskStub{}, nil)
	cache := NewCycleCache(paper)

	assert.Nil(t, b.Buy(context.Background(), cache, domain.BuyCandidate{Symbol: "", Notional: 500}))
	assert.Nil(t, b.Buy(context.Background(), cache, domain.BuyCandidate{Symbol: "AAPL", Notional: -1}))
}

func TestCryptoSymbolNormalization(t *testing.T) {
	assert.Equal(t, "BTC/USD", venueCryptoSymbol("BTCUSD"))
	assert.Equal(t, "ETH/USDT", venueCryptoSymbol("ethusdt"))
	assert.Equal(t, "BTC/USD", venueCryptoSymbol("BTC/USD"))
}
