package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	gobinance "github.com/adshao/go-binance/v2"

	"kawase/internal/logger"
	"kawase/internal/market"
)

const maxHistoryLimit = 1000

// Source 实现 market.Source，走 Binance 现货 K 线接口。
// 外汇主通道是 GMO，这里用于加密货币符号的对照分析。
type Source struct {
	cfg    Config
	client *gobinance.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := gobinance.NewClient(final.APIKey, final.APISecret)
	if final.RESTBaseURL != "" {
		client.BaseURL = final.RESTBaseURL
	}
	client.HTTPClient.Timeout = final.HTTPTimeout
	return &Source{cfg: final, client: client}, nil
}

func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.ToLower(strings.TrimSpace(interval))
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}

	logger.Debugf("[binance] klines %s %s limit=%d", symbol, interval, limit)
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines: %w", err)
	}

	out := make([]market.Candle, 0, len(klines))
	for _, k := range klines {
		if k == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime: k.OpenTime,
			Open:     parseFloat(k.Open),
			High:     parseFloat(k.High),
			Low:      parseFloat(k.Low),
			Close:    parseFloat(k.Close),
		})
	}
	return market.Normalize(out), nil
}

func (s *Source) Close() error { return nil }

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
