package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agentbot/gotrade/internal/domain"
	"github.com/agentbot/gotrade/internal/execution"
	"github.com/agentbot/gotrade/internal/metrics"
	"github.com/agentbot/gotrade/pkg/config"
)

const dayLayout = "2006-01-02"

// tick 单个调度周期。顺序固定：
// 停用检查 -> 时钟 -> 对账 -> 采集/研究 -> 盘前计划 -> 持仓峰值 ->
// 加密 24/7 -> 开市内（计划执行/分析周期/持仓研究/期权止损止盈）->
// 落盘 -> 发布快照。任何一步失败都不阻止后续 tick。
func (s *Scheduler) tick(ctx context.Context) {
	metrics.TickRuns.Add(1)
	now := s.nowFn()
	cfg := s.CurrentConfig()
	state := s.state

	if s.killPending.CompareAndSwap(true, false) {
		state.SignalCache = make(map[string]domain.Signal)
		state.Plan = nil
	}
	state.Enabled = s.enabled.Load()
	state.LastTickAt = now

	// 日界任务：跨日后清零当日亏损并解除冷却
	day := now.UTC().Format(dayLayout)
	if state.LastDailyResetDay != day {
		if err := s.risk.ResetDailyLoss(); err != nil {
			metrics.TickErrors.Add(1)
			s.log.Errorf("daily loss reset failed: %v", err)
		} else {
			state.LastDailyResetDay = day
			s.log.Infof("daily loss reset for %s", day)
		}
	}

	if !state.Enabled {
		s.persist()
		s.publishStatus(nil, cfg)
		return
	}

	cache := execution.NewCycleCache(s.client)

	clock, err := cache.Clock(ctx)
	if err != nil {
		metrics.TickErrors.Add(1)
		s.log.Errorf("market clock fetch failed: %v", err)
		// 时钟未知按闭市处理；对账和加密路径照常
	}
	justOpened := clock != nil && clock.IsOpen && !state.LastClockOpen
	if justOpened {
		s.openObservedAt = now
	}

	// 挂单对账先于一切策略决策：持仓账本和风控亏损先对齐终态
	s.reconciler.Reconcile(ctx, state)

	gathered := s.runDataGather(ctx, state, cfg, now)
	if gathered {
		s.runSignalResearch(ctx, state)
	}

	s.maybeBuildPlan(ctx, cache, state, cfg, clock, now)

	positions, err := cache.Positions(ctx)
	if err != nil {
		metrics.TickErrors.Add(1)
		s.log.Errorf("positions fetch failed: %v", err)
	} else {
		s.reconciler.UpdatePeaks(state, positions)
	}

	if cfg.Scheduler.CryptoEnabled {
		s.runCycle(ctx, cache, state, cfg, true)
	}

	if clock != nil && clock.IsOpen {
		s.maybeExecutePlan(ctx, cache, state, cfg, now, justOpened)

		if now.Sub(state.LastAnalystRun) >= cfg.Scheduler.AnalystInterval {
			s.runCycle(ctx, cache, state, cfg, false)
			state.LastAnalystRun = now
		}

		if now.Sub(state.LastPositionResearchRun) >= cfg.Scheduler.PositionResearchInterval {
			if positions, err := cache.Positions(ctx); err == nil {
				if err := s.researcher.ResearchPositions(ctx, positions, state.PositionEntries); err != nil {
					s.log.Warnf("position research failed: %v", err)
				}
				state.LastPositionResearchRun = now
			}
		}

		// 期权衰减快，止损/止盈每个 tick 都查，不挂在分析周期上
		s.checkOptionExits(ctx, cache, state, cfg)
	}

	if clock != nil {
		state.LastClockOpen = clock.IsOpen
	}

	s.persist()
	s.publishStatus(cache, cfg)
}

// runDataGather 采集外部信号并合并进信号缓存，按配置间隔节流
func (s *Scheduler) runDataGather(ctx context.Context, state *domain.AgentState, cfg *config.Config, now time.Time) bool {
	if now.Sub(state.LastDataGatherRun) < cfg.Scheduler.DataGatherInterval {
		return false
	}
	signals, err := s.gatherer.Gather(ctx)
	if err != nil {
		s.log.Warnf("data gather failed: %v", err)
		return false
	}
	for _, sig := range signals {
		if sig.Symbol == "" {
			continue
		}
		state.SignalCache[sig.Symbol] = sig
	}
	state.LastDataGatherRun = now
	if len(signals) > 0 {
		s.log.Infof("gathered %d signals, cache size %d", len(signals), len(state.SignalCache))
	}
	return true
}

// runSignalResearch 让研究层精炼刚采集的信号
func (s *Scheduler) runSignalResearch(ctx context.Context, state *domain.AgentState) {
	refined, err := s.researcher.ResearchSignals(ctx, state.SignalCache)
	if err != nil {
		s.log.Warnf("signal research failed: %v", err)
		return
	}
	if refined != nil {
		state.SignalCache = refined
	}
}

// maybeBuildPlan 闭市且处于开盘前窗口时构建当日盘前计划（每天一次）
func (s *Scheduler) maybeBuildPlan(ctx context.Context, cache *execution.CycleCache,
	state *domain.AgentState, cfg *config.Config, clock *domain.MarketClock, now time.Time) {
	if clock == nil || clock.IsOpen || clock.NextOpen.IsZero() {
		return
	}
	if now.Before(clock.NextOpen.Add(-cfg.Scheduler.PreOpenWindow)) || now.After(clock.NextOpen) {
		return
	}
	planDate := clock.NextOpen.UTC().Format(dayLayout)
	if state.Plan != nil && state.Plan.PlanDate == planDate {
		return
	}

	account, err := cache.Account(ctx)
	if err != nil {
		s.log.Warnf("plan build skipped, account fetch failed: %v", err)
		return
	}
	positions, err := cache.Positions(ctx)
	if err != nil {
		s.log.Warnf("plan build skipped, positions fetch failed: %v", err)
		return
	}
	entries := s.strategy.SelectEntries(ctx, state.SignalCache, positions, account)
	state.Plan = &domain.PreMarketPlan{
		PlanDate: planDate,
		BuiltAt:  now,
		Entries:  entries,
	}
	s.log.Infof("pre-market plan built for %s: %d entries", planDate, len(entries))
}

// maybeExecutePlan 开市后把当日盘前计划执行一次。
// 只认 闭市->开市 切换或其后的短窗口；重启后残留的旧计划不会被重放。
func (s *Scheduler) maybeExecutePlan(ctx context.Context, cache *execution.CycleCache,
	state *domain.AgentState, cfg *config.Config, now time.Time, justOpened bool) {
	plan := state.Plan
	if plan == nil || plan.Executed {
		return
	}
	if plan.PlanDate != now.UTC().Format(dayLayout) {
		return
	}
	inWindow := !s.openObservedAt.IsZero() && now.Sub(s.openObservedAt) <= cfg.Scheduler.OpenExecWindow
	if !justOpened && !inWindow {
		return
	}

	// 先标记再执行：执行中途崩溃宁可少买，不能重复买
	plan.Executed = true
	s.log.Infof("executing pre-market plan %s: %d entries", plan.PlanDate, len(plan.Entries))
	for _, cand := range plan.Entries {
		if s.hasPending(state, cand.Symbol) {
			continue
		}
		if po := s.broker.Buy(ctx, cache, cand); po != nil {
			state.PendingOrders = append(state.PendingOrders, po)
		}
	}
}

// runCycle 一轮完整的 出场->入场 决策。先出后进：释放的资金和仓位
// 额度能被同一轮的入场用上。cryptoOnly 时只处理加密 symbol。
func (s *Scheduler) runCycle(ctx context.Context, cache *execution.CycleCache,
	state *domain.AgentState, cfg *config.Config, cryptoOnly bool) {
	account, err := cache.Account(ctx)
	if err != nil {
		s.log.Errorf("cycle skipped, account fetch failed: %v", err)
		return
	}
	positions, err := cache.Positions(ctx)
	if err != nil {
		s.log.Errorf("cycle skipped, positions fetch failed: %v", err)
		return
	}

	for _, cand := range s.strategy.SelectExits(ctx, positions, state.PositionEntries, account) {
		if cryptoOnly != s.isCrypto(cfg, cand.Symbol) || s.hasPending(state, cand.Symbol) {
			continue
		}
		if po := s.broker.Sell(ctx, cache, cand); po != nil {
			state.PendingOrders = append(state.PendingOrders, po)
		}
	}

	for _, cand := range s.strategy.SelectEntries(ctx, state.SignalCache, positions, account) {
		if cryptoOnly != s.isCrypto(cfg, cand.Symbol) || s.hasPending(state, cand.Symbol) {
			continue
		}
		if po := s.broker.Buy(ctx, cache, cand); po != nil {
			state.PendingOrders = append(state.PendingOrders, po)
		}
	}
}

// checkOptionExits 期权持仓的止损/止盈检查，每个 tick 无条件执行
func (s *Scheduler) checkOptionExits(ctx context.Context, cache *execution.CycleCache,
	state *domain.AgentState, cfg *config.Config) {
	positions, err := cache.Positions(ctx)
	if err != nil {
		s.log.Errorf("option exits skipped, positions fetch failed: %v", err)
		return
	}
	for _, pos := range positions {
		if pos.AssetClass != domain.AssetClassOption || s.hasPending(state, pos.Symbol) {
			continue
		}
		cost := pos.MarketValue - pos.UnrealizedPL
		if cost <= 0 {
			continue
		}
		ratio := pos.UnrealizedPL / cost
		var reason string
		switch {
		case ratio <= -cfg.Options.StopLossPct:
			reason = fmt.Sprintf("option stop loss: %.1f%% <= -%.1f%%", ratio*100, cfg.Options.StopLossPct*100)
		case ratio >= cfg.Options.TakeProfitPct:
			reason = fmt.Sprintf("option take profit: %.1f%% >= %.1f%%", ratio*100, cfg.Options.TakeProfitPct*100)
		default:
			continue
		}
		if po := s.broker.Sell(ctx, cache, domain.SellCandidate{Symbol: pos.Symbol, Reason: reason}); po != nil {
			state.PendingOrders = append(state.PendingOrders, po)
		}
	}
}

func (s *Scheduler) hasPending(state *domain.AgentState, symbol string) bool {
	for _, po := range state.PendingOrders {
		if po.PendingSymbol() == symbol {
			return true
		}
	}
	return false
}

func (s *Scheduler) isCrypto(cfg *config.Config, symbol string) bool {
	for _, c := range cfg.Policy.CryptoSymbols {
		if strings.EqualFold(c, symbol) {
			return true
		}
	}
	return strings.Contains(symbol, "/")
}

// persist 整体落盘 AgentState 快照
func (s *Scheduler) persist() {
	if err := s.store.Save(s.state); err != nil {
		metrics.TickErrors.Add(1)
		s.log.Errorf("state persist failed: %v", err)
		return
	}
	metrics.SnapshotSaves.Add(1)
}
