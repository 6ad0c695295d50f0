package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 代理全量配置。控制面更新时先 Validate 再整体替换，
// 校验失败保持旧配置不变。
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Broker    BrokerConfig    `yaml:"broker"`
	Policy    PolicyConfig    `yaml:"policy"`
	Options   OptionsConfig   `yaml:"options"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// BrokerConfig 经纪商接入配置。密钥从环境变量读取，不进配置文件。
type BrokerConfig struct {
	BaseURL        string        `yaml:"base_url"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	RetryCount     int           `yaml:"retry_count"`
	Timeout        time.Duration `yaml:"-"`
}

// PolicyConfig 股票/加密货币订单的风控限制
type PolicyConfig struct {
	MaxDailyLossPct      float64  `yaml:"max_daily_loss_pct"`      // 当日亏损/净值比例上限
	CooldownMinutes      int      `yaml:"cooldown_minutes"`        // 实现亏损后的冷却分钟数
	AllowExtendedHours   bool     `yaml:"allow_extended_hours"`    // 是否允许盘前盘后
	SymbolAllowlist      []string `yaml:"symbol_allowlist"`        // 为空表示不启用白名单
	SymbolDenylist       []string `yaml:"symbol_denylist"`         // 黑名单优先
	AllowedOrderTypes    []string `yaml:"allowed_order_types"`     // market/limit
	MaxTradeNotional     float64  `yaml:"max_trade_notional"`      // 单笔美元上限
	MaxPositionPctEquity float64  `yaml:"max_position_pct_equity"` // 单 symbol 持仓/净值上限
	MaxOpenPositions     int      `yaml:"max_open_positions"`      // 最大同时持仓数
	AllowShortSelling    bool     `yaml:"allow_short_selling"`
	CashOnly             bool     `yaml:"cash_only"`           // true: 只用现金；false: 允许保证金
	ExchangeAllowlist    []string `yaml:"exchange_allowlist"`  // 为空表示不限制交易所
	CryptoSymbols        []string `yaml:"crypto_symbols"`      // 识别为加密货币的 symbol（如 BTCUSD）
}

// OptionsConfig 期权订单的平行风控限制
type OptionsConfig struct {
	Enabled              bool    `yaml:"enabled"`
	MinDTE               int     `yaml:"min_dte"` // 闭区间下界
	MaxDTE               int     `yaml:"max_dte"` // 闭区间上界
	MinAbsDelta          float64 `yaml:"min_abs_delta"`
	MaxAbsDelta          float64 `yaml:"max_abs_delta"`
	MaxTradePctEquity    float64 `yaml:"max_trade_pct_equity"`
	MaxExposurePctEquity float64 `yaml:"max_exposure_pct_equity"` // 期权总敞口/净值上限
	MaxOpenPositions     int     `yaml:"max_open_positions"`
	StopLossPct          float64 `yaml:"stop_loss_pct"`   // 每 tick 检查的止损线
	TakeProfitPct        float64 `yaml:"take_profit_pct"` // 每 tick 检查的止盈线
}

// SchedulerConfig 调度配置
type SchedulerConfig struct {
	Strategy                    string        `yaml:"strategy"` // 策略注册名
	TickSeconds                 int           `yaml:"tick_seconds"`
	DataGatherMinutes           int           `yaml:"data_gather_minutes"`
	AnalystMinutes              int           `yaml:"analyst_minutes"`
	PositionResearchMinutes     int           `yaml:"position_research_minutes"`
	PreOpenWindowMinutes        int           `yaml:"pre_open_window_minutes"`  // 开盘前构建计划的窗口
	OpenExecWindowMinutes       int           `yaml:"open_exec_window_minutes"` // 开盘后执行计划的窗口
	CryptoEnabled               bool          `yaml:"crypto_enabled"`           // 是否运行 24/7 加密规则
	PollFailureLimit            int           `yaml:"poll_failure_limit"`       // 挂单连续轮询失败上限
	TickInterval                time.Duration `yaml:"-"`
	DataGatherInterval          time.Duration `yaml:"-"`
	AnalystInterval             time.Duration `yaml:"-"`
	PositionResearchInterval    time.Duration `yaml:"-"`
	PreOpenWindow               time.Duration `yaml:"-"`
	OpenExecWindow              time.Duration `yaml:"-"`
}

// ServerConfig 控制面 HTTP 配置。令牌从环境变量读取。
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// StorageConfig 持久化配置
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`     // Badger 快照目录
	RiskDBPath string `yaml:"risk_db_path"` // 风控状态 SQLite 文件
}

// LoadFromFile 从 YAML 文件加载配置并应用默认值
func LoadFromFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Defaults 填充默认值并推导 Duration 字段
func (c *Config) Defaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 7
	}

	if c.Broker.TimeoutSeconds == 0 {
		c.Broker.TimeoutSeconds = 20
	}
	if c.Broker.RetryCount == 0 {
		c.Broker.RetryCount = 3
	}
	c.Broker.Timeout = time.Duration(c.Broker.TimeoutSeconds) * time.Second

	if c.Policy.MaxDailyLossPct == 0 {
		c.Policy.MaxDailyLossPct = 0.02
	}
	if c.Policy.CooldownMinutes == 0 {
		c.Policy.CooldownMinutes = 30
	}
	if len(c.Policy.AllowedOrderTypes) == 0 {
		c.Policy.AllowedOrderTypes = []string{"market"}
	}
	if c.Policy.MaxTradeNotional == 0 {
		c.Policy.MaxTradeNotional = 1000
	}
	if c.Policy.MaxPositionPctEquity == 0 {
		c.Policy.MaxPositionPctEquity = 0.10
	}
	if c.Policy.MaxOpenPositions == 0 {
		c.Policy.MaxOpenPositions = 10
	}

	if c.Options.MinDTE == 0 {
		c.Options.MinDTE = 30
	}
	if c.Options.MaxDTE == 0 {
		c.Options.MaxDTE = 120
	}
	if c.Options.MinAbsDelta == 0 {
		c.Options.MinAbsDelta = 0.30
	}
	if c.Options.MaxAbsDelta == 0 {
		c.Options.MaxAbsDelta = 0.70
	}
	if c.Options.MaxTradePctEquity == 0 {
		c.Options.MaxTradePctEquity = 0.02
	}
	if c.Options.MaxExposurePctEquity == 0 {
		c.Options.MaxExposurePctEquity = 0.10
	}
	if c.Options.MaxOpenPositions == 0 {
		c.Options.MaxOpenPositions = 5
	}
	if c.Options.StopLossPct == 0 {
		c.Options.StopLossPct = 0.50
	}
	if c.Options.TakeProfitPct == 0 {
		c.Options.TakeProfitPct = 1.00
	}

	if c.Scheduler.Strategy == "" {
		c.Scheduler.Strategy = "noop"
	}
	if c.Scheduler.TickSeconds == 0 {
		c.Scheduler.TickSeconds = 30
	}
	if c.Scheduler.DataGatherMinutes == 0 {
		c.Scheduler.DataGatherMinutes = 15
	}
	if c.Scheduler.AnalystMinutes == 0 {
		c.Scheduler.AnalystMinutes = 10
	}
	if c.Scheduler.PositionResearchMinutes == 0 {
		c.Scheduler.PositionResearchMinutes = 60
	}
	if c.Scheduler.PreOpenWindowMinutes == 0 {
		c.Scheduler.PreOpenWindowMinutes = 45
	}
	if c.Scheduler.OpenExecWindowMinutes == 0 {
		c.Scheduler.OpenExecWindowMinutes = 10
	}
	if c.Scheduler.PollFailureLimit == 0 {
		c.Scheduler.PollFailureLimit = 5
	}
	c.Scheduler.TickInterval = time.Duration(c.Scheduler.TickSeconds) * time.Second
	c.Scheduler.DataGatherInterval = time.Duration(c.Scheduler.DataGatherMinutes) * time.Minute
	c.Scheduler.AnalystInterval = time.Duration(c.Scheduler.AnalystMinutes) * time.Minute
	c.Scheduler.PositionResearchInterval = time.Duration(c.Scheduler.PositionResearchMinutes) * time.Minute
	c.Scheduler.PreOpenWindow = time.Duration(c.Scheduler.PreOpenWindowMinutes) * time.Minute
	c.Scheduler.OpenExecWindow = time.Duration(c.Scheduler.OpenExecWindowMinutes) * time.Minute

	if c.Server.Listen == "" {
		c.Server.Listen = ":8090"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	if c.Storage.RiskDBPath == "" {
		c.Storage.RiskDBPath = "data/risk.db"
	}
}

// Validate 校验配置。控制面更新走同一入口：先校验后替换。
func (c *Config) Validate() error {
	if c.Policy.MaxDailyLossPct <= 0 || c.Policy.MaxDailyLossPct > 1 {
		return fmt.Errorf("policy.max_daily_loss_pct 必须在 (0,1] 区间: %v", c.Policy.MaxDailyLossPct)
	}
	if c.Policy.CooldownMinutes < 0 {
		return fmt.Errorf("policy.cooldown_minutes 不能为负数")
	}
	if c.Policy.MaxTradeNotional <= 0 {
		return fmt.Errorf("policy.max_trade_notional 必须大于 0")
	}
	if c.Policy.MaxPositionPctEquity <= 0 || c.Policy.MaxPositionPctEquity > 1 {
		return fmt.Errorf("policy.max_position_pct_equity 必须在 (0,1] 区间")
	}
	if c.Policy.MaxOpenPositions <= 0 {
		return fmt.Errorf("policy.max_open_positions 必须大于 0")
	}
	for _, ot := range c.Policy.AllowedOrderTypes {
		switch strings.ToLower(ot) {
		case "market", "limit":
		default:
			return fmt.Errorf("policy.allowed_order_types 包含未知订单类型: %s", ot)
		}
	}

	if c.Options.MinDTE < 0 || c.Options.MaxDTE < c.Options.MinDTE {
		return fmt.Errorf("options.min_dte/max_dte 区间非法: [%d,%d]", c.Options.MinDTE, c.Options.MaxDTE)
	}
	if c.Options.MinAbsDelta < 0 || c.Options.MaxAbsDelta > 1 || c.Options.MaxAbsDelta < c.Options.MinAbsDelta {
		return fmt.Errorf("options.min_abs_delta/max_abs_delta 区间非法: [%v,%v]", c.Options.MinAbsDelta, c.Options.MaxAbsDelta)
	}
	if c.Options.MaxTradePctEquity <= 0 || c.Options.MaxTradePctEquity > 1 {
		return fmt.Errorf("options.max_trade_pct_equity 必须在 (0,1] 区间")
	}
	if c.Options.MaxExposurePctEquity <= 0 || c.Options.MaxExposurePctEquity > 1 {
		return fmt.Errorf("options.max_exposure_pct_equity 必须在 (0,1] 区间")
	}

	if c.Scheduler.TickSeconds <= 0 {
		return fmt.Errorf("scheduler.tick_seconds 必须大于 0")
	}
	if c.Scheduler.PollFailureLimit <= 0 {
		return fmt.Errorf("scheduler.poll_failure_limit 必须大于 0")
	}
	if c.Broker.BaseURL != "" && !strings.HasPrefix(c.Broker.BaseURL, "http") {
		return fmt.Errorf("broker.base_url 非法: %s", c.Broker.BaseURL)
	}
	return nil
}

// Clone 深拷贝（控制面替换配置时使用，避免共享可变切片）
func (c *Config) Clone() *Config {
	out := *c
	out.Policy.SymbolAllowlist = append([]string(nil), c.Policy.SymbolAllowlist...)
	out.Policy.SymbolDenylist = append([]string(nil), c.Policy.SymbolDenylist...)
	out.Policy.AllowedOrderTypes = append([]string(nil), c.Policy.AllowedOrderTypes...)
	out.Policy.ExchangeAllowlist = append([]string(nil), c.Policy.ExchangeAllowlist...)
	out.Policy.CryptoSymbols = append([]string(nil), c.Policy.CryptoSymbols...)
	return &out
}
