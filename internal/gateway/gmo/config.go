package gmo

import "time"

// Config 描述 GMO Coin 外汇行情源的运行参数。
type Config struct {
	BaseURL string
	// PriceType 取 ASK 或 BID，默认 ASK。
	PriceType string
	// MaxPagesPerFetch 限制一次历史拉取最多回溯的交易日数量。
	MaxPagesPerFetch int
	Concurrency      int
	HTTPTimeout      time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = "https://forex-api.coin.z.com/public"
	}
	if out.PriceType == "" {
		out.PriceType = "ASK"
	}
	if out.MaxPagesPerFetch <= 0 {
		out.MaxPagesPerFetch = 10
	}
	if out.Concurrency <= 0 {
		out.Concurrency = 4
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	return out
}
