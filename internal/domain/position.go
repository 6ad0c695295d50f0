package domain

import (
	"time"
)

// PositionEntry 本地持仓账本条目：每个当前持有的 symbol 一条。
// 买单确认成交时创建，持有期间每个周期更新，卖单确认成交或
// kill-switch 人工清理时删除。归属：只由调度器的持久化状态拥有，
// 执行门面从不直接操作。
type PositionEntry struct {
	Symbol    string    `json:"symbol"`
	EntryTime time.Time `json:"entry_time"`
	// EntryPrice 以成交回报回填后为权威值；回填前为 0 哨兵值
	EntryPrice     float64   `json:"entry_price"`
	EntrySentiment float64   `json:"entry_sentiment"`
	EntryVolume    float64   `json:"entry_volume"`
	EntrySources   []string  `json:"entry_sources,omitempty"`
	PeakPrice      float64   `json:"peak_price"`
	PeakSentiment  float64   `json:"peak_sentiment"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasConfirmedEntry 入场价是否已由成交回报回填
func (e *PositionEntry) HasConfirmedEntry() bool {
	return e.EntryPrice > 0
}

// UpdatePeak 用当前价刷新峰值价：max(existing, current)。
// 这是策略层陈旧度/移动止盈逻辑的基础，必须每个周期无条件执行。
func (e *PositionEntry) UpdatePeak(currentPrice float64, now time.Time) {
	if currentPrice > e.PeakPrice {
		e.PeakPrice = currentPrice
	}
	e.UpdatedAt = now
}
