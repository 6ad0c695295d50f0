package execution

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/agentbot/gotrade/internal/brokerage"
	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/internal/metrics"
	"github.com/agentbot/gotrade/internal/policy"
	"github.com/agentbot/gotrade/pkg/config"
	"github.com/agentbot/gotrade/pkg/logger"
)

// RiskReader 风控状态的只读入口
type RiskReader interface {
	Snapshot() (domain.RiskState, error)
}

// Broker 策略引擎把关的执行门面：系统里唯一允许向经纪商提交订单的
// 组件。策略层只拿到这个门面，拿不到底层 brokerage.Client，
// 绕开评估直接下单在结构上不可能。
//
// Sell 有意跳过完整评估：平仓是降风险动作，kill-switch 或冷却期
// 阻断退出会把资金困在亏损仓位里。kill-switch 激活时只记告警。
// 冷却检查走 evaluate 的共享路径，而卖出完全不进引擎——保持这个
// 不对称，不要"修复"它。
type Broker struct {
	client brokerage.Client
	risk   RiskReader
	cfgFn  func() *config.Config
	log    *logrus.Entry

	// nowFn 可注入时钟（测试用）
	nowFn func() time.Time
}

// NewBroker 创建执行门面。cfgFn 返回当前生效配置（控制面可热替换）。
func NewBroker(client brokerage.Client, risk RiskReader, cfgFn func() *config.Config) *Broker {
	return &Broker{
		client: client,
		risk:   risk,
		cfgFn:  cfgFn,
		log:    logger.WithField("component", "execution"),
		nowFn:  time.Now,
	}
}

// Buy 按美元金额开仓。通过评估后提交并返回待确认买单；
// 被拒绝或提交失败时返回 nil——按设计，策略层只能从日志流
// 了解细节，无法按风控内部结果分支。
func (b *Broker) Buy(ctx context.Context, cache *CycleCache, cand domain.BuyCandidate) *domain.PendingBuyOrder {
	symbol := strings.TrimSpace(cand.Symbol)
	if symbol == "" {
		b.log.Warn("buy rejected: empty symbol")
		return nil
	}
	if cand.Notional <= 0 || math.IsNaN(cand.Notional) || math.IsInf(cand.Notional, 0) {
		b.log.Warnf("buy %s rejected: invalid notional %v", symbol, cand.Notional)
		return nil
	}

	cfg := b.cfgFn()
	assetClass := domain.AssetClassEquity
	orderSymbol := symbol
	tif := domain.TimeInForceDay
	if isCryptoSymbol(&cfg.Policy, symbol) {
		// 加密货币：交易所口径 symbol（BTCUSD -> BTC/USD）+ GTC
		assetClass = domain.AssetClassCrypto
		orderSymbol = venueCryptoSymbol(symbol)
		tif = domain.TimeInForceGTC
	} else if len(cfg.Policy.ExchangeAllowlist) > 0 {
		// 股票：可选的交易所白名单，先查资产元信息
		asset, err := b.client.GetAsset(ctx, symbol)
		if err != nil {
			b.log.Warnf("buy %s rejected: asset lookup failed: %v", symbol, err)
			return nil
		}
		if !containsFold(cfg.Policy.ExchangeAllowlist, asset.Exchange) {
			b.log.Warnf("buy %s rejected: exchange %s not in allowlist", symbol, asset.Exchange)
			return nil
		}
	}

	proposal := &domain.OrderProposal{
		Side:        domain.SideBuy,
		Symbol:      symbol,
		AssetClass:  assetClass,
		Notional:    cand.Notional,
		OrderType:   domain.OrderTypeMarket,
		TimeInForce: tif,
	}
	in, err := b.buildInput(ctx, cache, proposal)
	if err != nil {
		b.log.Errorf("buy %s rejected: snapshot fetch failed: %v", symbol, err)
		return nil
	}

	decision := policy.Evaluate(&cfg.Policy, *in)
	logWarnings(b.log, symbol, decision.Warnings)
	if !decision.Allowed {
		metrics.OrdersDenied.Add(1)
		b.log.Warnf("buy %s denied by policy: %s", symbol, formatViolations(decision.Violations))
		return nil
	}

	spec := brokerage.OrderSpec{
		Symbol:        orderSymbol,
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeMarket,
		TimeInForce:   tif,
		Notional:      cand.Notional,
		ClientOrderID: uuid.NewString(),
	}
	order, err := b.client.CreateOrder(ctx, spec)
	if err != nil {
		b.log.Errorf("buy %s submit failed: %v", symbol, err)
		return nil
	}
	cache.Invalidate()
	metrics.OrdersSubmitted.Add(1)
	b.log.Infof("buy %s submitted: order=%s notional=%.2f reason=%s", symbol, order.ID, cand.Notional, cand.Reason)

	return &domain.PendingBuyOrder{
		OrderID:     order.ID,
		Symbol:      symbol,
		Notional:    cand.Notional,
		Reason:      cand.Reason,
		SubmittedAt: b.nowFn(),
		EntryMeta:   cand.Meta,
	}
}

// Sell 平掉整个持仓。不进策略引擎（见类型注释的不对称说明）；
// 下单前快照当前入场价，供成交后计算已实现盈亏。
func (b *Broker) Sell(ctx context.Context, cache *CycleCache, cand domain.SellCandidate) *domain.PendingSellOrder {
	symbol := strings.TrimSpace(cand.Symbol)
	if symbol == "" {
		b.log.Warn("sell rejected: empty symbol")
		return nil
	}

	if risk, err := b.risk.Snapshot(); err == nil && risk.KillSwitchActive {
		b.log.Warnf("sell %s while kill switch active (%s): exits stay permitted", symbol, risk.KillSwitchReason)
	}

	// 平仓前快照持仓（成交后经纪商侧持仓已消失，只能现在取）
	var entryPrice float64
	positions, err := cache.Positions(ctx)
	if err != nil {
		b.log.Warnf("sell %s: position snapshot failed, realized P&L will be skipped: %v", symbol, err)
	} else {
		for _, pos := range positions {
			if pos.Symbol == symbol {
				entryPrice = pos.AvgEntryPrice
				break
			}
		}
	}

	order, err := b.client.ClosePosition(ctx, symbol)
	if err != nil {
		b.log.Errorf("sell %s close failed: %v", symbol, err)
		return nil
	}
	cache.Invalidate()
	metrics.OrdersSubmitted.Add(1)
	b.log.Infof("sell %s submitted: order=%s reason=%s", symbol, order.ID, cand.Reason)

	return &domain.PendingSellOrder{
		OrderID:     order.ID,
		Symbol:      symbol,
		Reason:      cand.Reason,
		SubmittedAt: b.nowFn(),
		EntryPrice:  entryPrice,
	}
}

// BuyOption 买入期权（long call / long put）。走期权规则集，
// 且是期权订单唯一的合法提交路径。
func (b *Broker) BuyOption(ctx context.Context, cache *CycleCache, cand domain.OptionCandidate) *domain.PendingBuyOrder {
	symbol := strings.TrimSpace(cand.Symbol)
	if symbol == "" {
		b.log.Warn("buyOption rejected: empty symbol")
		return nil
	}
	if cand.Notional <= 0 || math.IsNaN(cand.Notional) || math.IsInf(cand.Notional, 0) {
		b.log.Warnf("buyOption %s rejected: invalid notional %v", symbol, cand.Notional)
		return nil
	}

	cfg := b.cfgFn()
	leg := cand.Leg
	proposal := &domain.OrderProposal{
		Side:        domain.SideBuy,
		Symbol:      symbol,
		AssetClass:  domain.AssetClassOption,
		Notional:    cand.Notional,
		OrderType:   domain.OrderTypeMarket,
		TimeInForce: domain.TimeInForceDay,
		Option:      &leg,
	}
	in, err := b.buildInput(ctx, cache, proposal)
	if err != nil {
		b.log.Errorf("buyOption %s rejected: snapshot fetch failed: %v", symbol, err)
		return nil
	}

	decision := policy.EvaluateOptionsOrder(&cfg.Policy, &cfg.Options, *in)
	logWarnings(b.log, symbol, decision.Warnings)
	if !decision.Allowed {
		metrics.OrdersDenied.Add(1)
		b.log.Warnf("buyOption %s denied by policy: %s", symbol, formatViolations(decision.Violations))
		return nil
	}

	contract := occContractSymbol(symbol, leg)
	spec := brokerage.OrderSpec{
		Symbol:        symbol,
		Side:          domain.SideBuy,
		Type:          domain.OrderTypeMarket,
		TimeInForce:   domain.TimeInForceDay,
		Notional:      cand.Notional,
		ClientOrderID: uuid.NewString(),
	}.WithOptionContract(contract)

	order, err := b.client.CreateOrder(ctx, spec)
	if err != nil {
		b.log.Errorf("buyOption %s submit failed: %v", symbol, err)
		return nil
	}
	cache.Invalidate()
	metrics.OrdersSubmitted.Add(1)
	b.log.Infof("buyOption %s submitted: order=%s contract=%s notional=%.2f reason=%s",
		symbol, order.ID, contract, cand.Notional, cand.Reason)

	return &domain.PendingBuyOrder{
		OrderID:     order.ID,
		Symbol:      contract,
		Notional:    cand.Notional,
		Reason:      cand.Reason,
		SubmittedAt: b.nowFn(),
	}
}

func (b *Broker) buildInput(ctx context.Context, cache *CycleCache, proposal *domain.OrderProposal) (*policy.Input, error) {
	account, err := cache.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	positions, err := cache.Positions(ctx)
	if err != nil {
		return nil, fmt.Errorf("positions: %w", err)
	}
	clock, err := cache.Clock(ctx)
	if err != nil {
		return nil, fmt.Errorf("clock: %w", err)
	}
	risk, err := b.risk.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("risk state: %w", err)
	}
	return &policy.Input{
		Proposal:  proposal,
		Account:   account,
		Positions: positions,
		Clock:     clock,
		Risk:      &risk,
		Now:       b.nowFn(),
	}, nil
}

func isCryptoSymbol(cfg *config.PolicyConfig, symbol string) bool {
	for _, c := range cfg.CryptoSymbols {
		if strings.EqualFold(c, symbol) {
			return true
		}
	}
	return strings.Contains(symbol, "/")
}

// venueCryptoSymbol 规整加密货币 symbol：BTCUSD -> BTC/USD
func venueCryptoSymbol(symbol string) string {
	if strings.Contains(symbol, "/") {
		return symbol
	}
	upper := strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "USD"} {
		if strings.HasSuffix(upper, quote) && len(upper) > len(quote) {
			return upper[:len(upper)-len(quote)] + "/" + quote
		}
	}
	return upper
}

// occContractSymbol 生成 OCC 合约代码：AAPL251219C00190000
func occContractSymbol(underlying string, leg domain.OptionLeg) string {
	cp := "C"
	if leg.Type == domain.OptionPut {
		cp = "P"
	}
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(underlying),
		leg.Expiration.Format("060102"),
		cp,
		int64(math.Round(leg.Strike*1000)))
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func formatViolations(violations []domain.Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, fmt.Sprintf("%s(%s)", v.Rule, v.Message))
	}
	return strings.Join(parts, "; ")
}

func logWarnings(log *logrus.Entry, symbol string, warnings []domain.Warning) {
	for _, w := range warnings {
		log.Warnf("policy warning for %s: %s: %s", symbol, w.Rule, w.Message)
	}
}
