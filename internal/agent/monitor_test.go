package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"kawase/internal/analysis/indicator"
	"kawase/internal/market"
	"kawase/internal/notify"
	"kawase/internal/store"
)

type fakeSource struct {
	candles []market.Candle
	err     error
	calls   int
}

func (f *fakeSource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	f.calls++
	return f.candles, f.err
}

func (f *fakeSource) Close() error { return nil }

type fakePusher struct {
	sent []string
	to   []string
	err  error
}

func (f *fakePusher) PushText(ctx context.Context, to, text string) error {
	if f.err != nil {
		return f.err
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, text)
	return nil
}

func monitorWith(t *testing.T, src market.Source, st store.NotificationStore, p LinePusher) *Monitor {
	t.Helper()
	m, err := NewMonitor(MonitorParams{
		Source:    src,
		Store:     st,
		Cache:     store.NewCandleCache(),
		Pusher:    p,
		Users:     []string{"u1"},
		Symbols:   []string{"USD_JPY"},
		Intervals: []string{"1hour"},
	})
	if err != nil {
		t.Fatalf("NewMonitor failed: %v", err)
	}
	m.now = func() time.Time { return time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC) } // 10:00 JST
	return m
}

func enabledSettings() notify.Settings {
	return notify.Settings{
		Enabled:            true,
		LineUserID:         "U1",
		MonitoredPairs:     []string{"USD_JPY"},
		MonitoredIntervals: []string{"1hour"},
		NotifyBullish:      true,
		NotifyBearish:      true,
		MaxPerHour:         5,
	}
}

func testDivergence(id string) indicator.Divergence {
	return indicator.Divergence{
		ID:         id,
		Kind:       indicator.DivergenceBullish,
		Strength:   indicator.StrengthStrong,
		Confidence: 80,
		End:        indicator.Pivot{TimeUtc: 3600, Price: 150, RSI: 28},
	}
}

func TestDispatchSendsAndLogs(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryNotificationStore()
	if err := st.SaveSettings(ctx, "u1", enabledSettings()); err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	pusher := &fakePusher{}
	m := monitorWith(t, &fakeSource{}, st, pusher)

	m.dispatch(ctx, "u1", "USD_JPY", "1hour", []indicator.Divergence{testDivergence("d1")})

	if len(pusher.sent) != 1 || pusher.to[0] != "U1" {
		t.Fatalf("expected one push to U1, got %+v", pusher.to)
	}
	logs, _ := st.RecentLogs(ctx, "u1", 10)
	if len(logs) != 1 || !logs[0].Success || logs[0].DivergenceID != "d1" {
		t.Fatalf("logs = %+v", logs)
	}
	n, _ := st.CountSuccessSince(ctx, "u1", m.now().Add(-time.Hour))
	if n != 1 {
		t.Fatalf("success count = %d", n)
	}
}

func TestDispatchRespectsRateLimitWithinBatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryNotificationStore()
	s := enabledSettings()
	s.MaxPerHour = 2
	_ = st.SaveSettings(ctx, "u1", s)
	pusher := &fakePusher{}
	m := monitorWith(t, &fakeSource{}, st, pusher)

	divs := []indicator.Divergence{testDivergence("d1"), testDivergence("d2"), testDivergence("d3")}
	m.dispatch(ctx, "u1", "USD_JPY", "1hour", divs)

	// 第三条在同一批内被限流。
	if len(pusher.sent) != 2 {
		t.Fatalf("expected 2 pushes under limit, got %d", len(pusher.sent))
	}
	logs, _ := st.RecentLogs(ctx, "u1", 10)
	suppressed := 0
	for _, l := range logs {
		if !l.Success && l.ErrorMessage == notify.ReasonRateLimit {
			suppressed++
		}
	}
	if suppressed != 1 {
		t.Fatalf("expected 1 rate-limited log, got %d (%+v)", suppressed, logs)
	}
}

func TestDispatchSkipsUnmonitoredAndDisabled(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryNotificationStore()
	pusher := &fakePusher{}
	m := monitorWith(t, &fakeSource{}, st, pusher)

	// 无设置的用户直接跳过。
	m.dispatch(ctx, "u1", "USD_JPY", "1hour", []indicator.Divergence{testDivergence("d1")})
	if len(pusher.sent) != 0 {
		t.Fatal("user without settings must not receive pushes")
	}

	// 不在 allow-list 的组合跳过，且不写日志。
	s := enabledSettings()
	s.MonitoredPairs = []string{"EUR_USD"}
	_ = st.SaveSettings(ctx, "u1", s)
	m.dispatch(ctx, "u1", "USD_JPY", "1hour", []indicator.Divergence{testDivergence("d2")})
	if len(pusher.sent) != 0 {
		t.Fatal("unmonitored symbol must not receive pushes")
	}
	if logs, _ := st.RecentLogs(ctx, "u1", 10); len(logs) != 0 {
		t.Fatalf("allow-list skip must not log, got %+v", logs)
	}
}

func TestDispatchLogsPushFailure(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryNotificationStore()
	_ = st.SaveSettings(ctx, "u1", enabledSettings())
	pusher := &fakePusher{err: errors.New("LINE API error: 500")}
	m := monitorWith(t, &fakeSource{}, st, pusher)

	m.dispatch(ctx, "u1", "USD_JPY", "1hour", []indicator.Divergence{testDivergence("d1")})

	logs, _ := st.RecentLogs(ctx, "u1", 10)
	if len(logs) != 1 || logs[0].Success {
		t.Fatalf("expected one failed log, got %+v", logs)
	}
	n, _ := st.CountSuccessSince(ctx, "u1", m.now().Add(-time.Hour))
	if n != 0 {
		t.Fatal("failed push must not count toward the rate limit")
	}
}

// 历史背离不会在每轮扫描时被重复播报：端点不在最新 K 线上的都被过滤。
func TestScanOneQuietWhenNoFreshDivergence(t *testing.T) {
	ctx := context.Background()
	candles := make([]market.Candle, 40)
	for i := range candles {
		px := 150 + float64(i%7)
		candles[i] = market.Candle{OpenTime: int64(i) * 3600_000, Open: px, High: px + 0.1, Low: px - 0.1, Close: px}
	}
	src := &fakeSource{candles: candles}
	st := store.NewMemoryNotificationStore()
	_ = st.SaveSettings(ctx, "u1", enabledSettings())
	pusher := &fakePusher{}
	m := monitorWith(t, src, st, pusher)

	if err := m.scanOne(ctx, "USD_JPY", "1hour"); err != nil {
		t.Fatalf("scanOne failed: %v", err)
	}
	if len(pusher.sent) != 0 {
		t.Fatalf("no divergence ends on the latest bar, got %d pushes", len(pusher.sent))
	}
	cached, _ := m.cache.Get(ctx, "USD_JPY", "1hour")
	if len(cached) != len(candles) {
		t.Fatalf("scan must cache candles, got %d", len(cached))
	}
}

func TestScanAllToleratesSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("network down")}
	st := store.NewMemoryNotificationStore()
	m := monitorWith(t, src, st, &fakePusher{})
	m.ScanAll(context.Background())
	if src.calls != 1 {
		t.Fatalf("expected one fetch attempt, got %d", src.calls)
	}
}
