package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"kawase/internal/notify"
)

// ErrDuplicateNotification 同一条背离已经成功推送过（唯一索引拦截）。
var ErrDuplicateNotification = errors.New("notification already delivered for this divergence")

// SQLiteNotificationStore 基于 modernc.org/sqlite 的持久化实现。
// 成功日志对 (user_id, divergence_id) 建唯一索引，由数据库保证
// 同一背离至多推送一次。
type SQLiteNotificationStore struct {
	mu sync.Mutex
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteNotificationStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path 不能为空")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("打开 sqlite 失败: %w", err)
	}
	// modernc 驱动是单写者模型，限制连接数避免 SQLITE_BUSY。
	db.SetMaxOpenConns(1)
	s := &SQLiteNotificationStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteNotificationStore) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS notification_settings (
			user_id TEXT PRIMARY KEY,
			is_enabled INTEGER NOT NULL DEFAULT 0,
			line_user_id TEXT NOT NULL DEFAULT '',
			monitored_pairs TEXT NOT NULL DEFAULT '[]',
			monitored_intervals TEXT NOT NULL DEFAULT '[]',
			notify_bullish INTEGER NOT NULL DEFAULT 1,
			notify_bearish INTEGER NOT NULL DEFAULT 1,
			max_per_hour INTEGER NOT NULL DEFAULT 5,
			quiet_hours_start TEXT NOT NULL DEFAULT '',
			quiet_hours_end TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS notification_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			time_interval TEXT NOT NULL,
			divergence_type TEXT NOT NULL,
			divergence_id TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			success INTEGER NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			sent_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_user_sent ON notification_logs(user_id, sent_at)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_logs_once
			ON notification_logs(user_id, divergence_id)
			WHERE success = 1 AND divergence_id != ''`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(context.Background(), q); err != nil {
			return fmt.Errorf("sqlite migration 失败: %w", err)
		}
	}
	return nil
}

func (s *SQLiteNotificationStore) LoadSettings(ctx context.Context, userID string) (notify.Settings, bool, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return notify.Settings{}, false, errors.New("notification store 未初始化")
	}
	row := db.QueryRowContext(ctx, `
		SELECT is_enabled, line_user_id, monitored_pairs, monitored_intervals,
		       notify_bullish, notify_bearish, max_per_hour, quiet_hours_start, quiet_hours_end
		FROM notification_settings WHERE user_id = ?`, userID)

	var out notify.Settings
	var pairsJSON, intervalsJSON string
	err := row.Scan(&out.Enabled, &out.LineUserID, &pairsJSON, &intervalsJSON,
		&out.NotifyBullish, &out.NotifyBearish, &out.MaxPerHour,
		&out.QuietHoursStart, &out.QuietHoursEnd)
	if err == sql.ErrNoRows {
		return notify.Settings{}, false, nil
	}
	if err != nil {
		return notify.Settings{}, false, err
	}
	if err := json.Unmarshal([]byte(pairsJSON), &out.MonitoredPairs); err != nil {
		return notify.Settings{}, false, fmt.Errorf("monitored_pairs 解析失败: %w", err)
	}
	if err := json.Unmarshal([]byte(intervalsJSON), &out.MonitoredIntervals); err != nil {
		return notify.Settings{}, false, fmt.Errorf("monitored_intervals 解析失败: %w", err)
	}
	return out, true, nil
}

func (s *SQLiteNotificationStore) SaveSettings(ctx context.Context, userID string, set notify.Settings) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return errors.New("notification store 未初始化")
	}
	if userID == "" {
		return errors.New("user_id 不能为空")
	}
	pairsJSON, err := json.Marshal(emptyIfNil(set.MonitoredPairs))
	if err != nil {
		return err
	}
	intervalsJSON, err := json.Marshal(emptyIfNil(set.MonitoredIntervals))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO notification_settings
			(user_id, is_enabled, line_user_id, monitored_pairs, monitored_intervals,
			 notify_bullish, notify_bearish, max_per_hour, quiet_hours_start, quiet_hours_end, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			is_enabled=excluded.is_enabled,
			line_user_id=excluded.line_user_id,
			monitored_pairs=excluded.monitored_pairs,
			monitored_intervals=excluded.monitored_intervals,
			notify_bullish=excluded.notify_bullish,
			notify_bearish=excluded.notify_bearish,
			max_per_hour=excluded.max_per_hour,
			quiet_hours_start=excluded.quiet_hours_start,
			quiet_hours_end=excluded.quiet_hours_end,
			updated_at=excluded.updated_at`,
		userID, set.Enabled, set.LineUserID, string(pairsJSON), string(intervalsJSON),
		set.NotifyBullish, set.NotifyBearish, set.MaxPerHour,
		set.QuietHoursStart, set.QuietHoursEnd, time.Now().UnixMilli())
	return err
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func (s *SQLiteNotificationStore) AppendLog(ctx context.Context, log NotificationLog) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return errors.New("notification store 未初始化")
	}
	if log.SentAt == 0 {
		log.SentAt = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO notification_logs
			(user_id, symbol, time_interval, divergence_type, divergence_id, message, success, error_message, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.UserID, log.Symbol, log.Interval, log.DivergenceType, log.DivergenceID,
		log.Message, log.Success, log.ErrorMessage, log.SentAt)
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return ErrDuplicateNotification
	}
	return err
}

func (s *SQLiteNotificationStore) CountSuccessSince(ctx context.Context, userID string, since time.Time) (int, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, errors.New("notification store 未初始化")
	}
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notification_logs
		WHERE user_id = ? AND success = 1 AND sent_at >= ?`,
		userID, since.UnixMilli()).Scan(&n)
	return n, err
}

func (s *SQLiteNotificationStore) RecentLogs(ctx context.Context, userID string, limit int) ([]NotificationLog, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, errors.New("notification store 未初始化")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, user_id, symbol, time_interval, divergence_type, divergence_id,
		       message, success, error_message, sent_at
		FROM notification_logs
		WHERE user_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NotificationLog
	for rows.Next() {
		var l NotificationLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.Symbol, &l.Interval, &l.DivergenceType,
			&l.DivergenceID, &l.Message, &l.Success, &l.ErrorMessage, &l.SentAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *SQLiteNotificationStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
