package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"kawase/internal/analysis/indicator"
	"kawase/internal/backtest"
	"kawase/internal/notify"
)

// Config 进程级配置。TOML 文件提供主体，密钥类字段走环境变量，
// 缺省值通过 withDefaults 补齐。
type Config struct {
	HTTP     HTTPConfig            `toml:"http"`
	Monitor  MonitorConfig         `toml:"monitor"`
	Analysis indicator.Settings    `toml:"analysis"`
	Trading  backtest.Settings     `toml:"trading"`
	Market   MarketConfig          `toml:"market"`
	GMO      GMOConfig             `toml:"gmo"`
	Binance  BinanceConfig         `toml:"binance"`
	Line     LineConfig            `toml:"line"`
	Storage  StorageConfig         `toml:"storage"`
	Users    map[string]UserConfig `toml:"users"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

type MonitorConfig struct {
	Enabled      bool     `toml:"enabled"`
	Symbols      []string `toml:"symbols"`
	Intervals    []string `toml:"intervals"`
	ScanInterval duration `toml:"scan_interval"`
	HistoryBars  int      `toml:"history_bars"`
}

// MarketConfig 选择行情数据源。外汇走 gmo，加密货币对照分析走 binance。
type MarketConfig struct {
	Provider string `toml:"provider"`
}

type GMOConfig struct {
	BaseURL          string   `toml:"base_url"`
	PriceType        string   `toml:"price_type"`
	MaxPagesPerFetch int      `toml:"max_pages_per_fetch"`
	HTTPTimeout      duration `toml:"http_timeout"`
}

type BinanceConfig struct {
	RESTBaseURL string   `toml:"rest_base_url"`
	HTTPTimeout duration `toml:"http_timeout"`
	// 密钥不落盘，从 BINANCE_API_KEY / BINANCE_API_SECRET 读取。
	APIKey    string `toml:"-"`
	APISecret string `toml:"-"`
}

type LineConfig struct {
	BaseURL string `toml:"base_url"`
	// AccessToken 不落盘，从环境变量 LINE_CHANNEL_ACCESS_TOKEN 读取。
	AccessToken string `toml:"-"`
}

type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path"`
}

// UserConfig 一个通知接收者的初始设置；首次启动时写入 store，
// 之后以 store 里的数据为准（可通过 API 更新）。
type UserConfig struct {
	Notify notify.Settings `toml:"notify"`
}

// duration 让 TOML 里可以写 "30s" / "5m" 这样的时长。
type duration time.Duration

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

func (d duration) Std() time.Duration { return time.Duration(d) }

// Load 读取 TOML 配置并补齐默认值。path 为空时返回纯默认配置。
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}
	cfg.LoadEnv()
	return cfg.withDefaults(), nil
}

// LoadEnv 从环境变量补充密钥类配置。
func (c *Config) LoadEnv() {
	if v := os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"); v != "" {
		c.Line.AccessToken = v
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		c.Binance.APISecret = v
	}
}

func (c Config) withDefaults() Config {
	out := c
	if out.HTTP.Addr == "" {
		out.HTTP.Addr = ":9880"
	}
	if out.Market.Provider == "" {
		out.Market.Provider = "gmo"
	}
	if len(out.Monitor.Symbols) == 0 {
		out.Monitor.Symbols = []string{"USD_JPY"}
	}
	if len(out.Monitor.Intervals) == 0 {
		out.Monitor.Intervals = []string{"1hour"}
	}
	if out.Monitor.ScanInterval <= 0 {
		out.Monitor.ScanInterval = duration(5 * time.Minute)
	}
	if out.Monitor.HistoryBars <= 0 {
		out.Monitor.HistoryBars = 200
	}
	if out.Storage.SQLitePath == "" {
		out.Storage.SQLitePath = "kawase.db"
	}
	out.Analysis = out.Analysis.WithDefaults()
	out.Trading = out.Trading.WithDefaults()
	for id, u := range out.Users {
		u.Notify = u.Notify.WithDefaults()
		out.Users[id] = u
	}
	return out
}
