package domain

import (
	"time"
)

// Signal 聚合后的研究信号（采集连接器 + 研究层的产物，核心只消费）
type Signal struct {
	Symbol    string    `json:"symbol"`
	Sentiment float64   `json:"sentiment"` // [-1, 1]
	Volume    float64   `json:"volume"`    // 提及量/热度
	Sources   []string  `json:"sources,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BuyCandidate 策略层产出的开仓候选，必须经由执行门面回流
type BuyCandidate struct {
	Symbol   string    `json:"symbol"`
	Notional float64   `json:"notional"`
	Reason   string    `json:"reason"`
	Meta     EntryMeta `json:"meta"`
}

// SellCandidate 策略层产出的平仓候选
type SellCandidate struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// OptionCandidate 期权开仓候选（只允许 long call / long put）
type OptionCandidate struct {
	Symbol   string    `json:"symbol"`
	Notional float64   `json:"notional"`
	Reason   string    `json:"reason"`
	Leg      OptionLeg `json:"leg"`
}
