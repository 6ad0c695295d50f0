package riskstore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/agentbot/gotrade/internal/domain"
)

// Store 风控状态的持久化单行存储。
// 四个变更操作各自是一次原子更新；读取总是返回完整快照，
// 保证策略引擎在一次决策内看到一致视图。
type Store struct {
	db       *sql.DB
	cooldown time.Duration

	// nowFn 可注入时钟（测试用）
	nowFn func() time.Time
}

// Open 打开（必要时创建）风控数据库
func Open(path string, cooldown time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir risk db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	s := &Store{db: db, cooldown: cooldown, nowFn: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SetCooldown 热更新冷却时长（控制面配置更新时调用）
func (s *Store) SetCooldown(d time.Duration) {
	s.cooldown = d
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS risk_state (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	kill_switch_active INTEGER NOT NULL DEFAULT 0,
	kill_switch_reason TEXT NOT NULL DEFAULT '',
	daily_loss_usd TEXT NOT NULL DEFAULT '0',
	daily_loss_reset_at TEXT NOT NULL DEFAULT '',
	cooldown_until TEXT,
	last_loss_at TEXT,
	updated_at TEXT NOT NULL DEFAULT ''
)`)
	if err != nil {
		return fmt.Errorf("migrate risk_state: %w", err)
	}
	_, err = s.db.Exec(`INSERT OR IGNORE INTO risk_state (id, updated_at) VALUES (1, ?)`,
		s.nowFn().UTC().Format(time.RFC3339Nano))
	return err
}

// Snapshot 读取完整风控快照
func (s *Store) Snapshot() (domain.RiskState, error) {
	var (
		state     domain.RiskState
		active    int
		lossStr   string
		resetAt   string
		cooldown  sql.NullString
		lastLoss  sql.NullString
		updatedAt string
	)
	err := s.db.QueryRow(`
SELECT kill_switch_active, kill_switch_reason, daily_loss_usd,
       daily_loss_reset_at, cooldown_until, last_loss_at, updated_at
FROM risk_state WHERE id = 1`).Scan(
		&active, &state.KillSwitchReason, &lossStr,
		&resetAt, &cooldown, &lastLoss, &updatedAt)
	if err != nil {
		return state, fmt.Errorf("read risk state: %w", err)
	}

	state.KillSwitchActive = active != 0
	loss, err := decimal.NewFromString(lossStr)
	if err != nil {
		return state, fmt.Errorf("parse daily_loss_usd %q: %w", lossStr, err)
	}
	state.DailyLossUSD, _ = loss.Float64()
	state.DailyLossResetAt = parseTime(resetAt)
	if cooldown.Valid && cooldown.String != "" {
		t := parseTime(cooldown.String)
		state.CooldownUntil = &t
	}
	if lastLoss.Valid && lastLoss.String != "" {
		t := parseTime(lastLoss.String)
		state.LastLossAt = &t
	}
	state.UpdatedAt = parseTime(updatedAt)
	return state, nil
}

// EnableKillSwitch 启用 kill switch
func (s *Store) EnableKillSwitch(reason string) error {
	now := s.nowFn().UTC()
	_, err := s.db.Exec(`
UPDATE risk_state SET kill_switch_active = 1, kill_switch_reason = ?, updated_at = ? WHERE id = 1`,
		reason, now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("enable kill switch: %w", err)
	}
	return nil
}

// DisableKillSwitch 关闭 kill switch
func (s *Store) DisableKillSwitch() error {
	now := s.nowFn().UTC()
	_, err := s.db.Exec(`
UPDATE risk_state SET kill_switch_active = 0, kill_switch_reason = '', updated_at = ? WHERE id = 1`,
		now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("disable kill switch: %w", err)
	}
	return nil
}

// RecordLoss 记录一笔已实现亏损：当日亏损累加（decimal 运算避免
// 浮点漂移）、记录时间、并按冷却策略设置 cooldown_until。
// amountUSD 取正数口径。
func (s *Store) RecordLoss(amountUSD float64) error {
	if amountUSD <= 0 {
		return nil
	}
	now := s.nowFn().UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var lossStr string
	if err := tx.QueryRow(`SELECT daily_loss_usd FROM risk_state WHERE id = 1`).Scan(&lossStr); err != nil {
		return fmt.Errorf("read daily loss: %w", err)
	}
	current, err := decimal.NewFromString(lossStr)
	if err != nil {
		return fmt.Errorf("parse daily_loss_usd %q: %w", lossStr, err)
	}
	next := current.Add(decimal.NewFromFloat(amountUSD))

	cooldownUntil := now.Add(s.cooldown)
	_, err = tx.Exec(`
UPDATE risk_state SET daily_loss_usd = ?, last_loss_at = ?, cooldown_until = ?, updated_at = ? WHERE id = 1`,
		next.String(),
		now.Format(time.RFC3339Nano),
		cooldownUntil.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record loss: %w", err)
	}
	return tx.Commit()
}

// ResetDailyLoss 清零当日亏损并清除冷却。由每日边界任务调用，
// 不在交易循环内触发。
func (s *Store) ResetDailyLoss() error {
	now := s.nowFn().UTC()
	_, err := s.db.Exec(`
UPDATE risk_state SET daily_loss_usd = '0', daily_loss_reset_at = ?, cooldown_until = NULL, updated_at = ? WHERE id = 1`,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("reset daily loss: %w", err)
	}
	return nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
