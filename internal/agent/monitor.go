package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"kawase/internal/analysis/indicator"
	"kawase/internal/logger"
	"kawase/internal/market"
	"kawase/internal/metrics"
	"kawase/internal/notify"
	"kawase/internal/store"
)

// LinePusher 推送通道抽象，生产环境由 gateway/notifier 实现。
type LinePusher interface {
	PushText(ctx context.Context, to, text string) error
}

type MonitorParams struct {
	Source      market.Source
	Store       store.NotificationStore
	Cache       *store.CandleCache
	Pusher      LinePusher
	Users       []string
	Symbols     []string
	Intervals   []string
	HistoryBars int
	Analysis    indicator.Settings
	Metrics     *metrics.Metrics
	Location    *time.Location
}

// Monitor 周期性扫描所有 (symbol, interval) 组合：拉行情、做背离分析、
// 只保留在最新收盘 K 线上完成的背离，再按每个用户的设置走通知闸门。
type Monitor struct {
	source      market.Source
	store       store.NotificationStore
	cache       *store.CandleCache
	pusher      LinePusher
	users       []string
	symbols     []string
	intervals   []string
	historyBars int
	analysis    indicator.Settings
	metrics     *metrics.Metrics
	loc         *time.Location

	now func() time.Time
}

func NewMonitor(p MonitorParams) (*Monitor, error) {
	if p.Source == nil {
		return nil, errors.New("market source 不能为空")
	}
	if p.Store == nil {
		return nil, errors.New("notification store 不能为空")
	}
	if p.HistoryBars <= 0 {
		p.HistoryBars = 200
	}
	if p.Location == nil {
		p.Location = notify.DefaultLocation()
	}
	return &Monitor{
		source:      p.Source,
		store:       p.Store,
		cache:       p.Cache,
		pusher:      p.Pusher,
		users:       append([]string(nil), p.Users...),
		symbols:     append([]string(nil), p.Symbols...),
		intervals:   append([]string(nil), p.Intervals...),
		historyBars: p.HistoryBars,
		analysis:    p.Analysis.WithDefaults(),
		metrics:     p.Metrics,
		loc:         p.Location,
		now:         time.Now,
	}, nil
}

// Run 阻塞运行：启动时先扫一轮，之后按 interval 定时扫，ctx 取消退出。
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	m.ScanAll(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.ScanAll(ctx)
		}
	}
}

// ScanAll 并发扫描全部组合。单个组合失败只记日志，不中断其他扫描。
func (m *Monitor) ScanAll(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, sym := range m.symbols {
		for _, iv := range m.intervals {
			symbol, interval := sym, iv
			g.Go(func() error {
				if err := m.scanOne(gctx, symbol, interval); err != nil {
					logger.Errorf("扫描 %s %s 失败: %v", symbol, interval, err)
					if m.metrics != nil {
						m.metrics.ScanErrors.Inc()
					}
				}
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (m *Monitor) scanOne(ctx context.Context, symbol, interval string) error {
	start := m.now()
	if m.metrics != nil {
		m.metrics.ScansTotal.Inc()
		defer func() {
			m.metrics.ScanDuration.Observe(m.now().Sub(start).Seconds())
		}()
	}

	candles, err := m.source.FetchHistory(ctx, symbol, interval, m.historyBars)
	if err != nil {
		return fmt.Errorf("拉取行情: %w", err)
	}
	if len(candles) == 0 {
		logger.Warnf("%s %s 无可用 K 线", symbol, interval)
		return nil
	}
	if m.cache != nil {
		_ = m.cache.Set(ctx, symbol, interval, candles)
	}

	report, err := indicator.Analyze(candles, m.analysis)
	if err != nil {
		return fmt.Errorf("背离分析: %w", err)
	}

	latestBar := candles[len(candles)-1].OpenTime / 1000
	fresh := notify.CompletedOnBar(report.Divergences, latestBar)
	logger.Debugf("%s %s: %d 根 K 线, %d 个背离, %d 个落在最新 K 线",
		symbol, interval, len(candles), len(report.Divergences), len(fresh))
	if len(fresh) == 0 {
		return nil
	}
	for _, d := range fresh {
		if m.metrics != nil {
			m.metrics.DivergencesSeen.WithLabelValues(d.Kind).Inc()
		}
		logger.Infof("检出背离 %s: %s %s strength=%s confidence=%.0f",
			d.ID, symbol, interval, d.Strength, d.Confidence)
	}

	for _, userID := range m.users {
		m.dispatch(ctx, userID, symbol, interval, fresh)
	}
	return nil
}

// dispatch 对单个用户执行「allow-list → 闸门 → 推送 → 落日志」。
func (m *Monitor) dispatch(ctx context.Context, userID, symbol, interval string, divs []indicator.Divergence) {
	settings, ok, err := m.store.LoadSettings(ctx, userID)
	if err != nil {
		logger.Errorf("读取用户 %s 通知设置失败: %v", userID, err)
		return
	}
	if !ok || !settings.Enabled || settings.LineUserID == "" {
		return
	}
	if !settings.Monitors(symbol, interval) {
		return
	}

	now := m.now()
	recent, err := m.store.CountSuccessSince(ctx, userID, now.Add(-time.Hour))
	if err != nil {
		logger.Errorf("读取用户 %s 限流计数失败: %v", userID, err)
		return
	}

	for _, d := range divs {
		allowed, reason := notify.Allow(settings, d.Kind, now.In(m.loc), recent)
		if !allowed {
			logger.Debugf("用户 %s 背离 %s 被拦截: %s", userID, d.ID, reason)
			m.countNotification("suppressed")
			m.appendLog(ctx, userID, symbol, interval, d, "", false, reason)
			continue
		}

		msg := notify.FormatMessage(symbol, interval, d, now, m.loc)
		pushErr := error(nil)
		if m.pusher != nil {
			pushErr = m.pusher.PushText(ctx, settings.LineUserID, msg)
		}
		if pushErr != nil {
			logger.Errorf("推送用户 %s 背离 %s 失败: %v", userID, d.ID, pushErr)
			m.countNotification("failed")
			m.appendLog(ctx, userID, symbol, interval, d, msg, false, pushErr.Error())
			continue
		}
		m.countNotification("sent")
		m.appendLog(ctx, userID, symbol, interval, d, msg, true, "")
		recent++
	}
}

func (m *Monitor) countNotification(outcome string) {
	if m.metrics != nil {
		m.metrics.Notifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Monitor) appendLog(ctx context.Context, userID, symbol, interval string, d indicator.Divergence, msg string, success bool, errMsg string) {
	err := m.store.AppendLog(ctx, store.NotificationLog{
		UserID:         userID,
		Symbol:         symbol,
		Interval:       interval,
		DivergenceType: d.Kind,
		DivergenceID:   d.ID,
		Message:        msg,
		Success:        success,
		ErrorMessage:   errMsg,
		SentAt:         m.now().UnixMilli(),
	})
	if errors.Is(err, store.ErrDuplicateNotification) {
		logger.Warnf("背离 %s 已推送过用户 %s，跳过重复日志", d.ID, userID)
		return
	}
	if err != nil {
		logger.Errorf("写通知日志失败: %v", err)
	}
}
