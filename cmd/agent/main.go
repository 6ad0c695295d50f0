package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/agentbot/gotrade/internal/brokerage"
	"github.com/agentbot/gotrade/internal/controlplane/server"
	"github.com/agentbot/gotrade/internal/riskstore"
	"github.com/agentbot/gotrade/internal/services"
	"github.com/agentbot/gotrade/internal/strategies"
	"github.com/agentbot/gotrade/pkg/config"
	"github.com/agentbot/gotrade/pkg/logger"
	"github.com/agentbot/gotrade/pkg/persistence"
	"github.com/agentbot/gotrade/pkg/shutdown"

	// 导入策略包以触发 init() 注册
	_ "github.com/agentbot/gotrade/internal/strategies/noop"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	configPath := flag.String("config", envOr("AGENT_CONFIG", "yml/agent.yaml"), "配置文件路径")
	agentID := flag.String("id", envOr("AGENT_ID", "default"), "代理实例 ID（持久化 key 前缀）")
	flag.Parse()

	// .env 可选：本地开发时装载密钥，生产直接用环境变量
	_ = godotenv.Load()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	logger.Infof("agent starting: id=%s config=%s", *agentID, *configPath)

	// 经纪商密钥只从环境变量读取，不进配置文件和日志
	apiKey := os.Getenv("BROKER_API_KEY")
	apiSecret := os.Getenv("BROKER_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		logger.Error("BROKER_API_KEY / BROKER_API_SECRET 未设置")
		os.Exit(1)
	}
	authToken := os.Getenv("AGENT_AUTH_TOKEN")
	killToken := os.Getenv("AGENT_KILL_TOKEN")
	if authToken == "" || killToken == "" {
		logger.Error("AGENT_AUTH_TOKEN / AGENT_KILL_TOKEN 未设置")
		os.Exit(1)
	}

	client := brokerage.NewRESTClient(brokerage.RESTOptions{
		BaseURL:    cfg.Broker.BaseURL,
		APIKey:     apiKey,
		APISecret:  apiSecret,
		Timeout:    cfg.Broker.Timeout,
		RetryCount: cfg.Broker.RetryCount,
	})

	badgerSvc, err := persistence.OpenBadger(cfg.Storage.DataDir)
	if err != nil {
		logger.Errorf("打开持久化存储失败: %v", err)
		os.Exit(1)
	}

	cooldown := time.Duration(cfg.Policy.CooldownMinutes) * time.Minute
	risk, err := riskstore.Open(cfg.Storage.RiskDBPath, cooldown)
	if err != nil {
		logger.Errorf("打开风控数据库失败: %v", err)
		os.Exit(1)
	}

	strategy, err := strategies.GlobalRegistry.Get(cfg.Scheduler.Strategy)
	if err != nil {
		logger.Errorf("策略加载失败: %v", err)
		os.Exit(1)
	}

	sched := services.NewScheduler(cfg, services.SchedulerDeps{
		Client:   client,
		Risk:     risk,
		Strategy: strategy,
		Store:    badgerSvc.NewStore("state", *agentID, "agent"),
	})
	if err := sched.Start(); err != nil {
		logger.Errorf("加载代理状态失败: %v", err)
		os.Exit(1)
	}

	srv, err := server.New(server.Config{
		Listen:    cfg.Server.Listen,
		AuthToken: authToken,
		KillToken: killToken,
	}, sched)
	if err != nil {
		logger.Errorf("创建控制面失败: %v", err)
		os.Exit(1)
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	var runWG sync.WaitGroup
	runWG.Add(1)
	go func() {
		defer runWG.Done()
		sched.Run(runCtx)
	}()
	go func() {
		if err := srv.Run(); err != nil {
			logger.Errorf("控制面退出: %v", err)
		}
	}()

	mgr := shutdown.NewManager()
	mgr.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Errorf("关闭控制面失败: %v", err)
		}
	})
	mgr.OnShutdown(func(ctx context.Context, _ *sync.WaitGroup) {
		// 先停主循环（Run 退出前会做最后一次落盘），再关存储
		cancelRun()
		runWG.Wait()
		if err := risk.Close(); err != nil {
			logger.Errorf("关闭风控数据库失败: %v", err)
		}
		if err := badgerSvc.Close(); err != nil {
			logger.Errorf("关闭持久化存储失败: %v", err)
		}
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	logger.Infof("收到信号 %s，开始优雅关闭", received)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	mgr.Shutdown(shutdownCtx)
	logger.Info("agent stopped")
}
