package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kawase.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTP.Addr != ":9880" {
		t.Fatalf("addr = %s", cfg.HTTP.Addr)
	}
	if len(cfg.Monitor.Symbols) != 1 || cfg.Monitor.Symbols[0] != "USD_JPY" {
		t.Fatalf("symbols = %v", cfg.Monitor.Symbols)
	}
	if cfg.Monitor.ScanInterval.Std() != 5*time.Minute {
		t.Fatalf("scan interval = %v", cfg.Monitor.ScanInterval.Std())
	}
	if cfg.Analysis.RSIPeriod != 14 || cfg.Analysis.RangeUpper != 15 {
		t.Fatalf("analysis defaults = %+v", cfg.Analysis)
	}
	if cfg.Trading.StopLossPips != 30 || cfg.Trading.TakeProfitPips != 50 {
		t.Fatalf("trading defaults = %+v", cfg.Trading)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
[http]
addr = ":8000"

[monitor]
enabled = true
symbols = ["USD_JPY", "EUR_JPY"]
intervals = ["1hour", "4hour"]
scan_interval = "90s"
history_bars = 300

[analysis]
rsi_period = 21
range_upper = 20

[trading]
stop_loss_pips = 25.0

[users.u1.notify]
enabled = true
line_user_id = "U123"
monitored_pairs = ["USD_JPY"]
monitored_intervals = ["1hour"]
notify_bullish = true
quiet_hours_start = "22:00"
quiet_hours_end = "06:00"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.HTTP.Addr != ":8000" {
		t.Fatalf("addr = %s", cfg.HTTP.Addr)
	}
	if cfg.Monitor.ScanInterval.Std() != 90*time.Second {
		t.Fatalf("scan interval = %v", cfg.Monitor.ScanInterval.Std())
	}
	if cfg.Analysis.RSIPeriod != 21 || cfg.Analysis.RangeUpper != 20 {
		t.Fatalf("analysis = %+v", cfg.Analysis)
	}
	// 未显式给出的字段补默认值。
	if cfg.Analysis.LookbackLeft != 2 {
		t.Fatalf("lookback default = %d", cfg.Analysis.LookbackLeft)
	}
	if cfg.Trading.StopLossPips != 25 || cfg.Trading.TakeProfitPips != 50 {
		t.Fatalf("trading = %+v", cfg.Trading)
	}
	u, ok := cfg.Users["u1"]
	if !ok || u.Notify.LineUserID != "U123" || !u.Notify.NotifyBullish {
		t.Fatalf("user settings = %+v", u)
	}
	if u.Notify.MaxPerHour != 5 {
		t.Fatalf("user max_per_hour default = %d", u.Notify.MaxPerHour)
	}
}

func TestLoadEnvToken(t *testing.T) {
	t.Setenv("LINE_CHANNEL_ACCESS_TOKEN", "secret-token")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Line.AccessToken != "secret-token" {
		t.Fatalf("token = %q", cfg.Line.AccessToken)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/no/such/file.toml"); err == nil {
		t.Fatal("missing file should error")
	}
}
