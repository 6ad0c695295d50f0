package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// PendingOrder 挂单 sum type：买单与卖单携带的字段不同，
// 用密封接口 + 两个变体建模，避免在买单上读到卖单专属字段。
// 生命周期：经纪商接受提交的瞬间创建（状态未确认），每个周期轮询，
// 直到进入终态被消费或丢弃。
type PendingOrder interface {
	ID() string
	PendingSymbol() string
	// PollFailures 返回连续轮询失败次数（内存态，跨重启清零）
	PollFailures() int
	// BumpPollFailure 失败计数 +1，返回新值
	BumpPollFailure() int

	// sealed 限定变体只能在本包内定义
	sealed()
}

// EntryMeta 开仓时的信号出处，回填到 PositionEntry 供后续陈旧度评估。
type EntryMeta struct {
	Sentiment float64  `json:"sentiment"`
	Volume    float64  `json:"volume"`
	Sources   []string `json:"sources,omitempty"`
}

// PendingBuyOrder 等待确认的买单
type PendingBuyOrder struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Notional    float64   `json:"notional"`
	Reason      string    `json:"reason"`
	SubmittedAt time.Time `json:"submitted_at"`
	EntryMeta   EntryMeta `json:"entry_meta"`

	pollFailures int
}

func (o *PendingBuyOrder) ID() string            { return o.OrderID }
func (o *PendingBuyOrder) PendingSymbol() string { return o.Symbol }
func (o *PendingBuyOrder) PollFailures() int     { return o.pollFailures }
func (o *PendingBuyOrder) BumpPollFailure() int  { o.pollFailures++; return o.pollFailures }
func (o *PendingBuyOrder) sealed()               {}

// PendingSellOrder 等待确认的卖单。
// EntryPrice 是下卖单时对持仓入场价的快照，成交后用于计算已实现盈亏。
type PendingSellOrder struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Reason      string    `json:"reason"`
	SubmittedAt time.Time `json:"submitted_at"`
	EntryPrice  float64   `json:"entry_price"`

	pollFailures int
}

func (o *PendingSellOrder) ID() string            { return o.OrderID }
func (o *PendingSellOrder) PendingSymbol() string { return o.Symbol }
func (o *PendingSellOrder) PollFailures() int     { return o.pollFailures }
func (o *PendingSellOrder) BumpPollFailure() int  { o.pollFailures++; return o.pollFailures }
func (o *PendingSellOrder) sealed()               {}

// PendingOrders 挂单集合。JSON 持久化需要带类型标签的信封，
// 否则反序列化无法还原变体。
type PendingOrders []PendingOrder

type pendingEnvelope struct {
	Kind string          `json:"kind"` // "buy" | "sell"
	Data json.RawMessage `json:"data"`
}

// MarshalJSON 实现带类型信封的序列化
func (p PendingOrders) MarshalJSON() ([]byte, error) {
	envelopes := make([]pendingEnvelope, 0, len(p))
	for _, o := range p {
		var kind string
		switch o.(type) {
		case *PendingBuyOrder:
			kind = "buy"
		case *PendingSellOrder:
			kind = "sell"
		default:
			return nil, fmt.Errorf("unknown pending order variant %T", o)
		}
		raw, err := json.Marshal(o)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, pendingEnvelope{Kind: kind, Data: raw})
	}
	return json.Marshal(envelopes)
}

// UnmarshalJSON 从类型信封还原变体
func (p *PendingOrders) UnmarshalJSON(b []byte) error {
	var envelopes []pendingEnvelope
	if err := json.Unmarshal(b, &envelopes); err != nil {
		return err
	}
	out := make(PendingOrders, 0, len(envelopes))
	for _, env := range envelopes {
		switch env.Kind {
		case "buy":
			var o PendingBuyOrder
			if err := json.Unmarshal(env.Data, &o); err != nil {
				return err
			}
			out = append(out, &o)
		case "sell":
			var o PendingSellOrder
			if err := json.Unmarshal(env.Data, &o); err != nil {
				return err
			}
			out = append(out, &o)
		default:
			return fmt.Errorf("unknown pending order kind %q", env.Kind)
		}
	}
	*p = out
	return nil
}

// Remove 按订单 ID 删除，返回新切片
func (p PendingOrders) Remove(orderID string) PendingOrders {
	out := p[:0]
	for _, o := range p {
		if o.ID() != orderID {
			out = append(out, o)
		}
	}
	return out
}
