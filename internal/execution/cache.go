package execution

import (
	"context"

	"github.com/agentbot/gotrade/internal/brokerage"
	"github.com/agentbot/gotrade/internal/domain"
)

// CycleCache 单个调度周期内的账户/持仓/时钟缓存。
// 显式对象而不是模块级隐藏缓存：由拥有 tick 的调度器创建并传入，
// 每项惰性拉取一次网络，整个周期内的所有决策复用；任何一次成功
// 提交订单后立即 Invalidate，下一次决策重新拉取。
// 只被拥有它的 tick 变更，不加锁（单写者模型）。
type CycleCache struct {
	client brokerage.Client

	account   *domain.AccountSnapshot
	positions []domain.BrokerPosition
	hasPos    bool
	clock     *domain.MarketClock
}

// NewCycleCache 创建空缓存
func NewCycleCache(client brokerage.Client) *CycleCache {
	return &CycleCache{client: client}
}

// Account 惰性获取账户快照
func (c *CycleCache) Account(ctx context.Context) (*domain.AccountSnapshot, error) {
	if c.account != nil {
		return c.account, nil
	}
	acct, err := c.client.GetAccount(ctx)
	if err != nil {
		return nil, err
	}
	c.account = acct
	return acct, nil
}

// Positions 惰性获取持仓列表
func (c *CycleCache) Positions(ctx context.Context) ([]domain.BrokerPosition, error) {
	if c.hasPos {
		return c.positions, nil
	}
	positions, err := c.client.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	c.positions = positions
	c.hasPos = true
	return positions, nil
}

// Clock 惰性获取市场时钟
func (c *CycleCache) Clock(ctx context.Context) (*domain.MarketClock, error) {
	if c.clock != nil {
		return c.clock, nil
	}
	clock, err := c.client.GetClock(ctx)
	if err != nil {
		return nil, err
	}
	c.clock = clock
	return clock, nil
}

// CachedAccount 返回本周期已拉取的账户快照，不触发网络
func (c *CycleCache) CachedAccount() *domain.AccountSnapshot {
	return c.account
}

// CachedPositions 返回本周期已拉取的持仓，不触发网络
func (c *CycleCache) CachedPositions() ([]domain.BrokerPosition, bool) {
	return c.positions, c.hasPos
}

// Invalidate 整体失效，不做部分更新
func (c *CycleCache) Invalidate() {
	c.account = nil
	c.positions = nil
	c.hasPos = false
	c.clock = nil
}
