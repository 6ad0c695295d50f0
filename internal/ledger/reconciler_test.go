package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentbot/gotrade/internal/brokerage"
	"github.com/agentbot/gotrade/internal/domain"
)

type lossRecorder struct {
	total float64
	calls int
}

func (r *lossRecorder) RecordLoss(amountUSD float64) error {
	r.total += amountUSD
	r.calls++
	return nil
}

func newTestReconciler(client brokerage.Client, rec *lossRecorder, limit int) *Reconciler {
	r := NewReconciler(client, rec, limit)
	r.nowFn = func() time.Time { return time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC) }
	return r
}

func submitBuy(t *testing.T, paper *brokerage.PaperClient, symbol string, notional float64) *domain.PendingBuyOrder {
	t.Helper()
	order, err := paper.CreateOrder(context.Background(), brokerage.OrderSpec{
		Symbol:   symbol,
		Side:     domain.SideBuy,
		Notional: notional,
	})
	require.NoError(t, err)
	return &domain.PendingBuyOrder{
		OrderID:     order.ID,
		Symbol:      symbol,
		Notional:    notional,
		SubmittedAt: time.Now(),
		EntryMeta:   domain.EntryMeta{Sentiment: 0.8},
	}
}

func TestBuyFillCreatesEntryAtFillPrice(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	rec := &lossRecorder{}
	r := newTestReconciler(paper, rec, 5)

	state := domain.NewAgentState()
	pending := submitBuy(t, paper, "AAPL", 1000)
	state.PendingOrders = append(state.PendingOrders, pending)

	// 成交价 190，不是下单时的估计价
	require.NoError(t, paper.FillOrder(pending.OrderID, 190))
	r.Reconcile(context.Background(), state)

	require.Empty(t, state.PendingOrders)
	entry := state.PositionEntries["AAPL"]
	require.NotNil(t, entry)
	assert.Equal(t, 190.0, entry.EntryPrice)
	assert.Equal(t, 190.0, entry.PeakPrice)
	assert.Equal(t, 0.8, entry.EntrySentiment)
}

func TestDoublePollIsIdempotent(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	r := newTestReconciler(paper, &lossRecorder{}, 5)

	state := domain.NewAgentState()
	pending := submitBuy(t, paper, "AAPL", 1000)
	state.PendingOrders = append(state.PendingOrders, pending)
	require.NoError(t, paper.FillOrder(pending.OrderID, 190))

	r.Reconcile(context.Background(), state)
	first := *state.PositionEntries["AAPL"]

	// 终态消费后再对账一轮：不能出现第二个条目，也不能改第一个
	r.Reconcile(context.Background(), state)
	require.Len(t, state.PositionEntries, 1)
	assert.Equal(t, first, *state.PositionEntries["AAPL"])
}

func TestSellFillRoutesLossToRisk(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	rec := &lossRecorder{}
	r := newTestReconciler(paper, rec, 5)

	state := domain.NewAgentState()
	state.PositionEntries["TSLA"] = &domain.PositionEntry{Symbol: "TSLA", EntryPrice: 200}

	order, err := paper.CreateOrder(context.Background(), brokerage.OrderSpec{
		Symbol: "TSLA",
		Side:   domain.SideSell,
		Qty:    10,
	})
	require.NoError(t, err)
	state.PendingOrders = append(state.PendingOrders, &domain.PendingSellOrder{
		OrderID:    order.ID,
		Symbol:     "TSLA",
		EntryPrice: 200,
	})

	// (180-200)*10 = -200 已实现亏损
	require.NoError(t, paper.FillOrder(order.ID, 180))
	r.Reconcile(context.Background(), state)

	require.Empty(t, state.PendingOrders)
	assert.Nil(t, state.PositionEntries["TSLA"])
	assert.Equal(t, 1, rec.calls)
	assert.InDelta(t, 200.0, rec.total, 1e-9)
}

func TestSellFillProfitDoesNotRecordLoss(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	rec := &lossRecorder{}
	r := newTestReconciler(paper, rec, 5)

	state := domain.NewAgentState()
	order, err := paper.CreateOrder(context.Background(), brokerage.OrderSpec{
		Symbol: "TSLA", Side: domain.SideSell, Qty: 10,
	})
	require.NoError(t, err)
	state.PendingOrders = append(state.PendingOrders, &domain.PendingSellOrder{
		OrderID: order.ID, Symbol: "TSLA", EntryPrice: 200,
	})

	require.NoError(t, paper.FillOrder(order.ID, 230))
	r.Reconcile(context.Background(), state)
	assert.Equal(t, 0, rec.calls)
}

func TestCanceledOrderDropsWithoutEffect(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	r := newTestReconciler(paper, &lossRecorder{}, 5)

	state := domain.NewAgentState()
	pending := submitBuy(t, paper, "AAPL", 1000)
	state.PendingOrders = append(state.PendingOrders, pending)
	paper.CancelOrder(pending.OrderID)

	r.Reconcile(context.Background(), state)
	require.Empty(t, state.PendingOrders)
	assert.Empty(t, state.PositionEntries)
}

func TestPollFailureDropsAfterThreshold(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	r := newTestReconciler(paper, &lossRecorder{}, 2)

	state := domain.NewAgentState()
	pending := submitBuy(t, paper, "AAPL", 1000)
	state.PendingOrders = append(state.PendingOrders, pending)
	paper.FailGetOrder = 10

	r.Reconcile(context.Background(), state)
	require.Len(t, state.PendingOrders, 1) // 1/2 失败，保留

	r.Reconcile(context.Background(), state)
	require.Empty(t, state.PendingOrders) // 2/2 失败，丢弃
}

func TestUpdatePeaksIsMonotonic(t *testing.T) {
	paper := brokerage.NewPaperClient(100000, 50000)
	r := newTestReconciler(paper, &lossRecorder{}, 5)

	state := domain.NewAgentState()
	state.PositionEntries["AAPL"] = &domain.PositionEntry{Symbol: "AAPL", EntryPrice: 100, PeakPrice: 100}

	r.UpdatePeaks(state, []domain.BrokerPosition{{Symbol: "AAPL", CurrentPrice: 120}})
	assert.Equal(t, 120.0, state.PositionEntries["AAPL"].PeakPrice)

	// 回落不降峰值
	r.UpdatePeaks(state, []domain.BrokerPosition{{Symbol: "AAPL", CurrentPrice: 90}})
	assert.Equal(t, 120.0, state.PositionEntries["AAPL"].PeakPrice)
}
