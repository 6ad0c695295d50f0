package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()

	if cfg.Policy.MaxDailyLossPct != 0.02 {
		t.Errorf("max_daily_loss_pct default = %v", cfg.Policy.MaxDailyLossPct)
	}
	if cfg.Policy.MaxPositionPctEquity != 0.10 {
		t.Errorf("max_position_pct_equity default = %v", cfg.Policy.MaxPositionPctEquity)
	}
	if cfg.Scheduler.TickInterval != 30*time.Second {
		t.Errorf("tick interval = %v", cfg.Scheduler.TickInterval)
	}
	if cfg.Options.MinDTE != 30 || cfg.Options.MaxDTE != 120 {
		t.Errorf("dte defaults = [%d,%d]", cfg.Options.MinDTE, cfg.Options.MaxDTE)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"loss pct over 1", func(c *Config) { c.Policy.MaxDailyLossPct = 1.5 }},
		{"negative cooldown", func(c *Config) { c.Policy.CooldownMinutes = -1 }},
		{"zero notional", func(c *Config) { c.Policy.MaxTradeNotional = -5 }},
		{"unknown order type", func(c *Config) { c.Policy.AllowedOrderTypes = []string{"stop"} }},
		{"inverted dte", func(c *Config) { c.Options.MinDTE = 60; c.Options.MaxDTE = 30 }},
		{"bad base url", func(c *Config) { c.Broker.BaseURL = "ftp://example" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Defaults()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	content := []byte(`
policy:
  max_trade_notional: 2500
  crypto_symbols: [BTCUSD, ETHUSD]
scheduler:
  tick_seconds: 10
  crypto_enabled: true
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Policy.MaxTradeNotional != 2500 {
		t.Errorf("max_trade_notional = %v", cfg.Policy.MaxTradeNotional)
	}
	if cfg.Scheduler.TickInterval != 10*time.Second {
		t.Errorf("tick interval = %v", cfg.Scheduler.TickInterval)
	}
	if !cfg.Scheduler.CryptoEnabled || len(cfg.Policy.CryptoSymbols) != 2 {
		t.Errorf("crypto config lost: %+v", cfg.Policy)
	}
	// 未写的字段补默认值
	if cfg.Policy.MaxDailyLossPct != 0.02 {
		t.Errorf("defaults not applied: %v", cfg.Policy.MaxDailyLossPct)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	cfg := &Config{}
	cfg.Defaults()
	cfg.Policy.SymbolAllowlist = []string{"AAPL"}

	clone := cfg.Clone()
	clone.Policy.SymbolAllowlist[0] = "TSLA"
	clone.Policy.MaxTradeNotional = 9999

	if cfg.Policy.SymbolAllowlist[0] != "AAPL" {
		t.Error("clone shares allowlist slice")
	}
	if cfg.Policy.MaxTradeNotional == 9999 {
		t.Error("clone shares scalar state")
	}
}
