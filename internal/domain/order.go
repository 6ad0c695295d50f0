package domain

import (
	"time"
)

// OrderSide 订单方向
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// AssetClass 资产类别
type AssetClass string

const (
	AssetClassEquity AssetClass = "us_equity"
	AssetClassCrypto AssetClass = "crypto"
	AssetClassOption AssetClass = "us_option"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TimeInForce 订单有效期
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
)

// OptionType 期权类型
type OptionType string

const (
	OptionCall OptionType = "call"
	OptionPut  OptionType = "put"
)

// OptionLeg 期权腿：行权价、到期日、类型、delta。
// Delta 为指针：上游信号并不总能提供 delta，缺失时降级为告警而不是拒单。
type OptionLeg struct {
	Strike     float64
	Expiration time.Time
	Type       OptionType
	Delta      *float64
}

// DaysToExpiration 距离到期的自然日数（向下取整）
func (l OptionLeg) DaysToExpiration(now time.Time) int {
	return int(l.Expiration.Sub(now).Hours() / 24)
}

// OrderProposal 订单提案：每次决策即时构造，从不持久化。
// Notional 与 Qty 二选一（Notional 优先）。
type OrderProposal struct {
	Side        OrderSide
	Symbol      string
	AssetClass  AssetClass
	Notional    float64 // 美元金额下单
	Qty         float64 // 数量下单（Notional 为 0 时生效）
	OrderType   OrderType
	TimeInForce TimeInForce
	Option      *OptionLeg // 仅期权订单携带
}

// IsOption 是否为期权提案
func (p *OrderProposal) IsOption() bool {
	return p.AssetClass == AssetClassOption && p.Option != nil
}
