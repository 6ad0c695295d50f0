package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPendingOrdersEnvelopeRoundTrip(t *testing.T) {
	submitted := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)
	orders := PendingOrders{
		&PendingBuyOrder{
			OrderID:     "o-1",
			Symbol:      "AAPL",
			Notional:    1000,
			Reason:      "momentum entry",
			SubmittedAt: submitted,
			EntryMeta:   EntryMeta{Sentiment: 0.7, Volume: 12000, Sources: []string{"news"}},
		},
		&PendingSellOrder{
			OrderID:     "o-2",
			Symbol:      "TSLA",
			Reason:      "trailing stop",
			SubmittedAt: submitted,
			EntryPrice:  242.5,
		},
	}

	b, err := json.Marshal(orders)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var restored PendingOrders
	if err := json.Unmarshal(b, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(restored) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(restored))
	}

	buy, ok := restored[0].(*PendingBuyOrder)
	if !ok {
		t.Fatalf("expected buy variant, got %T", restored[0])
	}
	if buy.Notional != 1000 || buy.EntryMeta.Sentiment != 0.7 {
		t.Errorf("buy fields lost: %+v", buy)
	}

	sell, ok := restored[1].(*PendingSellOrder)
	if !ok {
		t.Fatalf("expected sell variant, got %T", restored[1])
	}
	if sell.EntryPrice != 242.5 {
		t.Errorf("sell entry price lost: %v", sell.EntryPrice)
	}
}

func TestPendingOrdersUnknownKindRejected(t *testing.T) {
	var restored PendingOrders
	err := json.Unmarshal([]byte(`[{"kind":"mystery","data":{}}]`), &restored)
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestPendingOrdersRemove(t *testing.T) {
	orders := PendingOrders{
		&PendingBuyOrder{OrderID: "o-1", Symbol: "AAPL"},
		&PendingSellOrder{OrderID: "o-2", Symbol: "TSLA"},
	}
	orders = orders.Remove("o-1")
	if len(orders) != 1 || orders[0].ID() != "o-2" {
		t.Fatalf("remove failed: %+v", orders)
	}
}

func TestPollFailuresNotPersisted(t *testing.T) {
	orders := PendingOrders{&PendingBuyOrder{OrderID: "o-1", Symbol: "AAPL"}}
	orders[0].BumpPollFailure()
	orders[0].BumpPollFailure()

	b, err := json.Marshal(orders)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var restored PendingOrders
	if err := json.Unmarshal(b, &restored); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// 失败计数是内存态，重启后从零开始
	if restored[0].PollFailures() != 0 {
		t.Errorf("poll failures leaked into persistence: %d", restored[0].PollFailures())
	}
}
