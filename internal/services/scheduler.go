package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/agentbot/gotrade/internal/brokerage"
	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/internal/execution"
	"github.com/agentbot/gotrade/internal/ledger"
	"github.com/agentbot/gotrade/internal/strategies"
	"github.com/agentbot/gotrade/pkg/config"
	"github.com/agentbot/gotrade/pkg/logger"
	"github.com/agentbot/gotrade/pkg/persistence"
)

// ErrAgentKilled kill 之后的 Enable 请求被拒绝
var ErrAgentKilled = errors.New("agent has been killed, restart the process to re-enable")

// SchedulerDeps 调度器的协作方集合
type SchedulerDeps struct {
	Client     brokerage.Client
	Risk       RiskControl
	Strategy   strategies.Strategy
	Gatherer   DataGatherer
	Researcher Researcher
	Store      persistence.Store
}

// Scheduler 交易代理的主循环：单 goroutine 按固定间隔 tick，
// AgentState 从头到尾归这个 goroutine 所有。控制面通过原子开关、
// forceTick 通道和只读状态快照与它交互，绝不直接碰活状态。
type Scheduler struct {
	client     brokerage.Client
	broker     *execution.Broker
	reconciler *ledger.Reconciler
	risk       RiskControl
	strategy   strategies.Strategy
	gatherer   DataGatherer
	researcher Researcher
	store      persistence.Store
	log        *logrus.Entry

	cfgMu sync.RWMutex
	cfg   *config.Config

	// state 只在 tick goroutine 上变更
	state *domain.AgentState

	enabled     atomic.Bool
	killed      atomic.Bool
	killPending atomic.Bool

	forceTick chan struct{}

	statusMu sync.RWMutex
	status   StatusSnapshot

	// openObservedAt 本进程观察到 闭市->开市 切换的时刻。
	// 不落盘：重启后丢失意味着隔夜残留的未执行计划不会被重放。
	openObservedAt time.Time

	// nowFn 可注入时钟（测试用）
	nowFn func() time.Time
}

// NewScheduler 创建调度器并装配执行门面与对账器
func NewScheduler(cfg *config.Config, deps SchedulerDeps) *Scheduler {
	s := &Scheduler{
		client:     deps.Client,
		risk:       deps.Risk,
		strategy:   deps.Strategy,
		gatherer:   deps.Gatherer,
		researcher: deps.Researcher,
		store:      deps.Store,
		cfg:        cfg,
		log:        logger.WithField("component", "scheduler"),
		forceTick:  make(chan struct{}, 1),
		nowFn:      time.Now,
	}
	if s.gatherer == nil {
		s.gatherer = NopGatherer{}
	}
	if s.researcher == nil {
		s.researcher = NopResearcher{}
	}
	s.broker = execution.NewBroker(deps.Client, deps.Risk, s.CurrentConfig)
	s.reconciler = ledger.NewReconciler(deps.Client, deps.Risk, cfg.Scheduler.PollFailureLimit)
	return s
}

// Start 加载持久化状态。必须在 Run 之前调用一次。
func (s *Scheduler) Start() error {
	state := domain.NewAgentState()
	if err := s.store.Load(state); err != nil {
		if !errors.Is(err, persistence.ErrNotExists) {
			return fmt.Errorf("load agent state: %w", err)
		}
		s.log.Info("no persisted state found, starting fresh")
	} else {
		state.Normalize()
		s.log.Infof("loaded state: enabled=%v positions=%d pending=%d",
			state.Enabled, len(state.PositionEntries), len(state.PendingOrders))
	}
	s.state = state
	s.enabled.Store(state.Enabled)
	return nil
}

// Run 主循环。每次唤醒执行一个 tick；无论 tick 结果如何都重新
// 定时——失败的 tick 只记日志，不停表。ctx 取消时做最后一次落盘。
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.CurrentConfig().Scheduler.TickInterval
	s.log.Infof("scheduler started, tick interval %s", interval)

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.persist()
			s.log.Info("scheduler stopped, final state persisted")
			return
		case <-timer.C:
		case <-s.forceTick:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		s.safeTick(ctx)
		timer.Reset(s.CurrentConfig().Scheduler.TickInterval)
	}
}

// safeTick 顶层兜底：策略/研究代码里的 panic 不能中断后续 tick
// 的风控执行和挂单对账。
func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("tick panic recovered: %v", r)
		}
	}()
	s.tick(ctx)
}

// Enable 开启交易循环。kill 之后本进程内不可再开启。
func (s *Scheduler) Enable() error {
	if s.killed.Load() {
		return ErrAgentKilled
	}
	s.enabled.Store(true)
	s.ForceTick()
	s.log.Info("agent enabled")
	return nil
}

// Disable 暂停交易循环（tick 照常跑，只是不做任何动作）
func (s *Scheduler) Disable() {
	s.enabled.Store(false)
	s.ForceTick()
	s.log.Info("agent disabled")
}

// Kill 会话内不可逆的停止：关循环、清内存派生缓存。
// 明确不自动平仓——持仓处置是人的决定。
func (s *Scheduler) Kill(reason string) {
	s.killed.Store(true)
	s.enabled.Store(false)
	s.killPending.Store(true)
	if err := s.risk.EnableKillSwitch(reason); err != nil {
		s.log.Errorf("enable kill switch failed: %v", err)
	}
	s.ForceTick()
	s.log.Warnf("agent killed: %s", reason)
}

// ForceTick 请求立刻执行一个 tick（非阻塞，已有待处理请求时合并）
func (s *Scheduler) ForceTick() {
	select {
	case s.forceTick <- struct{}{}:
	default:
	}
}

// CurrentConfig 当前生效配置。返回的指针视为只读。
func (s *Scheduler) CurrentConfig() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// UpdateConfig 校验后原子替换配置；校验失败保持旧配置生效。
func (s *Scheduler) UpdateConfig(next *config.Config) error {
	next.Defaults()
	if err := next.Validate(); err != nil {
		return fmt.Errorf("config rejected: %w", err)
	}
	clone := next.Clone()

	s.cfgMu.Lock()
	s.cfg = clone
	s.cfgMu.Unlock()

	s.risk.SetCooldown(time.Duration(clone.Policy.CooldownMinutes) * time.Minute)
	s.log.Info("config updated")
	return nil
}
