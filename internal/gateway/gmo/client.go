package gmo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"kawase/internal/logger"
	"kawase/internal/market"
)

const maxHistoryLimit = 2000

// Client 实现 market.Source，对接 GMO Coin 外汇公共 API。
// K 线按「日」分页，date=YYYYMMDD；外汇市场周六/周日休市，对应日期直接跳过。
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

func New(cfg Config) (*Client, error) {
	final := cfg.withDefaults()
	return &Client{
		cfg:        final,
		httpClient: &http.Client{Timeout: final.HTTPTimeout},
		now:        time.Now,
	}, nil
}

type klineRow struct {
	OpenTime string `json:"openTime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
}

type klineResponse struct {
	Status int        `json:"status"`
	Data   []klineRow `json:"data"`
}

// FetchHistory 并发拉取最近若干个交易日的日页，合并去重后返回按时间
// 升序的最后 limit 根 K 线。单日页面失败只记日志，不让整次拉取失败。
func (c *Client) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
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
	interval = strings.TrimSpace(interval)
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}

	dates := c.tradingDates()
	var (
		mu  sync.Mutex
		all []market.Candle
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, d := range dates {
		date := d
		g.Go(func() error {
			page, err := c.fetchDay(gctx, symbol, interval, date)
			if err != nil {
				logger.Warnf("[gmo] %s %s date=%s 拉取失败: %v", symbol, interval, date, err)
				return nil
			}
			mu.Lock()
			all = append(all, page...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all = market.Normalize(all)
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	logger.Debugf("[gmo] %s %s 合并 %d 个交易日得到 %d 根 K 线", symbol, interval, len(dates), len(all))
	return all, nil
}

// tradingDates 从今天起往回数 MaxPagesPerFetch 个工作日。
func (c *Client) tradingDates() []string {
	dates := make([]string, 0, c.cfg.MaxPagesPerFetch)
	day := c.now().UTC()
	for len(dates) < c.cfg.MaxPagesPerFetch {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			dates = append(dates, day.Format("20060102"))
		}
		day = day.AddDate(0, 0, -1)
	}
	return dates
}

func (c *Client) fetchDay(ctx context.Context, symbol, interval, date string) ([]market.Candle, error) {
	url := fmt.Sprintf("%s/v1/klines?symbol=%s&priceType=%s&interval=%s&date=%s",
		c.cfg.BaseURL, symbol, c.cfg.PriceType, interval, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("gmo kline error: %s", resp.Status)
	}
	var payload klineResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Status != 0 {
		return nil, fmt.Errorf("gmo kline status %d", payload.Status)
	}
	out := make([]market.Candle, 0, len(payload.Data))
	for _, row := range payload.Data {
		openTime, err := strconv.ParseInt(row.OpenTime, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime: openTime,
			Open:     parseFloat(row.Open),
			High:     parseFloat(row.High),
			Low:      parseFloat(row.Low),
			Close:    parseFloat(row.Close),
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func (c *Client) Close() error { return nil }
