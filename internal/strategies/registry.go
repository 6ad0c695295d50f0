package strategies

import (
	"fmt"
	"sync"
)

// Registry 策略注册表
type Registry struct {
	strategies map[string]Strategy
	mu         sync.RWMutex
}

// NewRegistry 创建新的策略注册表
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
	}
}

// Register 注册策略
func (r *Registry) Register(strategy Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := strategy.ID()
	if _, exists := r.strategies[id]; exists {
		return fmt.Errorf("策略 %s 已存在", id)
	}

	r.strategies[id] = strategy
	return nil
}

// Get 获取策略
func (r *Registry) Get(id string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	strategy, exists := r.strategies[id]
	if !exists {
		return nil, fmt.Errorf("策略 %s 不存在", id)
	}

	return strategy, nil
}

// List 列出所有策略 ID
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}

	return ids
}

// GlobalRegistry 全局策略注册表
var GlobalRegistry = NewRegistry()

// Register 注册到全局注册表（策略包 init 时调用）
func Register(strategy Strategy) {
	if err := GlobalRegistry.Register(strategy); err != nil {
		panic(err)
	}
}
