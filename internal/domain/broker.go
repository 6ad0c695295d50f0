package domain

import (
	"time"
)

// AccountSnapshot 账户快照（经纪商口径）
type AccountSnapshot struct {
	Equity      float64 `json:"equity"`
	Cash        float64 `json:"cash"`
	BuyingPower float64 `json:"buying_power"`
}

// BrokerPosition 经纪商侧持仓。本地账本只是影子，经纪商持仓才是权威数据。
type BrokerPosition struct {
	Symbol        string     `json:"symbol"`
	AssetClass    AssetClass `json:"asset_class"`
	Qty           float64    `json:"qty"`
	AvgEntryPrice float64    `json:"avg_entry_price"`
	MarketValue   float64    `json:"market_value"`
	UnrealizedPL  float64    `json:"unrealized_pl"`
	CurrentPrice  float64    `json:"current_price"`
}

// MarketClock 市场时钟
type MarketClock struct {
	IsOpen    bool      `json:"is_open"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
	Timestamp time.Time `json:"timestamp"`
}

// AssetInfo 资产元信息（交易所白名单校验用）
type AssetInfo struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// BrokerOrderStatus 经纪商订单状态
type BrokerOrderStatus string

const (
	BrokerOrderNew       BrokerOrderStatus = "new"
	BrokerOrderAccepted  BrokerOrderStatus = "accepted"
	BrokerOrderFilled    BrokerOrderStatus = "filled"
	BrokerOrderCanceled  BrokerOrderStatus = "canceled"
	BrokerOrderExpired   BrokerOrderStatus = "expired"
	BrokerOrderReplaced  BrokerOrderStatus = "replaced"
	BrokerOrderRejected  BrokerOrderStatus = "rejected"
	BrokerOrderSuspended BrokerOrderStatus = "suspended"
)

// IsTerminal 是否为终态。非终态的挂单继续轮询。
func (s BrokerOrderStatus) IsTerminal() bool {
	switch s {
	case BrokerOrderFilled, BrokerOrderCanceled, BrokerOrderExpired,
		BrokerOrderReplaced, BrokerOrderRejected, BrokerOrderSuspended:
		return true
	}
	return false
}

// BrokerOrder createOrder/getOrder 返回的订单视图
type BrokerOrder struct {
	ID             string            `json:"id"`
	Status         BrokerOrderStatus `json:"status"`
	FilledQty      float64           `json:"filled_qty"`
	FilledAvgPrice float64           `json:"filled_avg_price"`
	FilledAt       *time.Time        `json:"filled_at,omitempty"`
}
