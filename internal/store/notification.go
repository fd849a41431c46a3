package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"kawase/internal/notify"
)

// NotificationLog 一条推送记录。Success=false 时 ErrorMessage 说明原因，
// 包括被闸门拦下的情况（suppressed_reason 记在 ErrorMessage 里）。
type NotificationLog struct {
	ID             int64  `json:"id"`
	UserID         string `json:"user_id"`
	Symbol         string `json:"symbol"`
	Interval       string `json:"time_interval"`
	DivergenceType string `json:"divergence_type"`
	DivergenceID   string `json:"divergence_id"`
	Message        string `json:"message"`
	Success        bool   `json:"success"`
	ErrorMessage   string `json:"error_message,omitempty"`
	SentAt         int64  `json:"sent_at"` // Unix 毫秒
}

// NotificationStore 通知设置与推送日志的持久化抽象。
// CountSuccessSince 是限流读取口径：窗口内成功送达的条数。
// 并发扫描可能同时读到相同计数再各自写日志，严格的 at-most-once
// 需要由实现层（唯一约束/原子自增）保证，这里不承诺。
type NotificationStore interface {
	LoadSettings(ctx context.Context, userID string) (notify.Settings, bool, error)
	SaveSettings(ctx context.Context, userID string, s notify.Settings) error
	AppendLog(ctx context.Context, log NotificationLog) error
	CountSuccessSince(ctx context.Context, userID string, since time.Time) (int, error)
	RecentLogs(ctx context.Context, userID string, limit int) ([]NotificationLog, error)
	Close() error
}

// MemoryNotificationStore 内存实现，测试与单机试跑用。
type MemoryNotificationStore struct {
	mu       sync.RWMutex
	settings map[string]notify.Settings
	logs     []NotificationLog
	nextID   int64
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{settings: make(map[string]notify.Settings), nextID: 1}
}

func (m *MemoryNotificationStore) LoadSettings(ctx context.Context, userID string) (notify.Settings, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[userID]
	return s, ok, nil
}

func (m *MemoryNotificationStore) SaveSettings(ctx context.Context, userID string, s notify.Settings) error {
	m.mu.Lock()
	m.settings[userID] = s
	m.mu.Unlock()
	return nil
}

func (m *MemoryNotificationStore) AppendLog(ctx context.Context, log NotificationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log.ID = m.nextID
	m.nextID++
	if log.SentAt == 0 {
		log.SentAt = time.Now().UnixMilli()
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *MemoryNotificationStore) CountSuccessSince(ctx context.Context, userID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := since.UnixMilli()
	n := 0
	for _, l := range m.logs {
		if l.UserID == userID && l.Success && l.SentAt >= cutoff {
			n++
		}
	}
	return n, nil
}

func (m *MemoryNotificationStore) RecentLogs(ctx context.Context, userID string, limit int) ([]NotificationLog, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]NotificationLog, 0, limit)
	for _, l := range m.logs {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SentAt > out[j].SentAt })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryNotificationStore) Close() error { return nil }
