package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/agentbot/gotrade/internal/brokerage"
	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/internal/metrics"
	"github.com/agentbot/gotrade/pkg/logger"
)

// LossRecorder 亏损上报入口（riskstore 实现）
type LossRecorder interface {
	RecordLoss(amountUSD float64) error
}

// Reconciler 挂单状态机的对账器。每个 tick 轮询所有挂单直到终态：
// 买单成交 -> 创建/修复持仓条目；卖单成交 -> 计算已实现盈亏并在
// 亏损时上报风控；其他终态直接丢弃，不产生持仓副作用。
// 轮询是读操作，天然幂等：at-least-once 轮询是安全的。
type Reconciler struct {
	client           brokerage.Client
	risk             LossRecorder
	pollFailureLimit int
	log              *logrus.Entry

	// nowFn 可注入时钟（测试用）
	nowFn func() time.Time
}

// NewReconciler 创建对账器
func NewReconciler(client brokerage.Client, risk LossRecorder, pollFailureLimit int) *Reconciler {
	return &Reconciler{
		client:           client,
		risk:             risk,
		pollFailureLimit: pollFailureLimit,
		log:              logger.WithField("component", "ledger"),
		nowFn:            time.Now,
	}
}

// Reconcile 轮询全部挂单并把终态效果应用到 state。
// 单个挂单的失败不影响其余挂单。
func (r *Reconciler) Reconcile(ctx context.Context, state *domain.AgentState) {
	metrics.ReconcileRuns.Add(1)

	remaining := make(domain.PendingOrders, 0, len(state.PendingOrders))
	for _, pending := range state.PendingOrders {
		order, err := r.client.GetOrder(ctx, pending.ID())
		if err != nil {
			metrics.ReconcileErrors.Add(1)
			failures := pending.BumpPollFailure()
			if failures >= r.pollFailureLimit {
				// 超过阈值防御性丢弃：经纪商持仓才是权威数据，
				// 本地账本丢一条挂单不会造成资金风险
				r.log.Warnf("dropping pending order %s (%s) after %d consecutive poll failures: %v",
					pending.ID(), pending.PendingSymbol(), failures, err)
				continue
			}
			r.log.Warnf("poll pending order %s failed (%d/%d): %v",
				pending.ID(), failures, r.pollFailureLimit, err)
			remaining = append(remaining, pending)
			continue
		}

		if !order.Status.IsTerminal() {
			remaining = append(remaining, pending)
			continue
		}

		switch po := pending.(type) {
		case *domain.PendingBuyOrder:
			r.settleBuy(state, po, order)
		case *domain.PendingSellOrder:
			r.settleSell(state, po, order)
		}
		// 终态挂单一律消费掉，不再轮询
	}
	state.PendingOrders = remaining
}

// settleBuy 买单终态处理：成交则创建持仓条目，
// 入场价取实际成交价而不是下单时的估计价。
func (r *Reconciler) settleBuy(state *domain.AgentState, pending *domain.PendingBuyOrder, order *domain.BrokerOrder) {
	if order.Status != domain.BrokerOrderFilled {
		r.log.Infof("buy order %s (%s) ended %s, dropped without position effect",
			pending.OrderID, pending.Symbol, order.Status)
		return
	}

	now := r.nowFn()
	entry, exists := state.PositionEntries[pending.Symbol]
	if exists && entry.HasConfirmedEntry() {
		// 已有确认入场价的条目：重复结算（或别的路径已处理），不动
		r.log.Warnf("buy fill %s (%s): entry already confirmed at %.2f, skipping",
			pending.OrderID, pending.Symbol, entry.EntryPrice)
		return
	}
	if exists {
		// 零哨兵价条目：别的代码路径预建了条目，用成交回报修复
		entry.EntryPrice = order.FilledAvgPrice
		entry.UpdatePeak(order.FilledAvgPrice, now)
		r.log.Infof("buy fill %s: repaired entry %s with fill price %.2f",
			pending.OrderID, pending.Symbol, order.FilledAvgPrice)
		return
	}

	state.PositionEntries[pending.Symbol] = &domain.PositionEntry{
		Symbol:         pending.Symbol,
		EntryTime:      now,
		EntryPrice:     order.FilledAvgPrice,
		EntrySentiment: pending.EntryMeta.Sentiment,
		EntryVolume:    pending.EntryMeta.Volume,
		EntrySources:   pending.EntryMeta.Sources,
		PeakPrice:      order.FilledAvgPrice,
		PeakSentiment:  pending.EntryMeta.Sentiment,
		UpdatedAt:      now,
	}
	r.log.Infof("buy fill %s: opened %s qty=%.4f @ %.2f",
		pending.OrderID, pending.Symbol, order.FilledQty, order.FilledAvgPrice)
}

// settleSell 卖单终态处理：成交则计算已实现盈亏，亏损上报风控，
// 并删除持仓条目。
func (r *Reconciler) settleSell(state *domain.AgentState, pending *domain.PendingSellOrder, order *domain.BrokerOrder) {
	if order.Status != domain.BrokerOrderFilled {
		r.log.Infof("sell order %s (%s) ended %s, dropped without position effect",
			pending.OrderID, pending.Symbol, order.Status)
		return
	}

	if pending.EntryPrice > 0 && order.FilledQty > 0 {
		// (成交价 - 入场价) x 数量，decimal 运算避免浮点漂移
		realized := decimal.NewFromFloat(order.FilledAvgPrice).
			Sub(decimal.NewFromFloat(pending.EntryPrice)).
			Mul(decimal.NewFromFloat(order.FilledQty))
		pl, _ := realized.Float64()
		r.log.Infof("sell fill %s: closed %s qty=%.4f @ %.2f realized=%.2f",
			pending.OrderID, pending.Symbol, order.FilledQty, order.FilledAvgPrice, pl)
		if realized.IsNegative() {
			if err := r.risk.RecordLoss(realized.Neg().InexactFloat64()); err != nil {
				r.log.Errorf("record loss %.2f for %s failed: %v", -pl, pending.Symbol, err)
			}
		}
	} else {
		r.log.Warnf("sell fill %s (%s): no entry price snapshot, realized P&L skipped",
			pending.OrderID, pending.Symbol)
	}

	delete(state.PositionEntries, pending.Symbol)
}

// UpdatePeaks 用当前持仓价刷新每个持仓条目的峰值价。
// 无论有没有挂单，每个 tick 都必须执行：策略层的陈旧度/移动止盈
// 依赖这个不变式每周期成立，没有例外。
func (r *Reconciler) UpdatePeaks(state *domain.AgentState, positions []domain.BrokerPosition) {
	now := r.nowFn()
	for _, pos := range positions {
		if entry, ok := state.PositionEntries[pos.Symbol]; ok && pos.CurrentPrice > 0 {
			entry.UpdatePeak(pos.CurrentPrice, now)
		}
	}
}
