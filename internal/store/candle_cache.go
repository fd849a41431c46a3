package store

import (
	"context"
	"errors"
	"sync"

	"kawase/internal/market"
)

// CandleCache 缓存每个 symbol+interval 最近一次扫描用到的 K 线，
// 供 HTTP 层出图/查询时复用，避免重复打行情接口。
type CandleCache struct {
	mu   sync.RWMutex
	data map[string][]market.Candle
}

func NewCandleCache() *CandleCache {
	return &CandleCache{data: make(map[string][]market.Candle)}
}

func key(symbol, interval string) string { return symbol + "@" + interval }

// Set 全量替换指定 symbol+interval 的序列。
func (c *CandleCache) Set(ctx context.Context, symbol, interval string, candles []market.Candle) error {
	if symbol == "" || interval == "" {
		return errors.New("symbol/interval 不能为空")
	}
	dst := make([]market.Candle, len(candles))
	copy(dst, candles)
	c.mu.Lock()
	c.data[key(symbol, interval)] = dst
	c.mu.Unlock()
	return nil
}

// Get 返回拷贝；未缓存时返回空序列。
func (c *CandleCache) Get(ctx context.Context, symbol, interval string) ([]market.Candle, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur := c.data[key(symbol, interval)]
	out := make([]market.Candle, len(cur))
	copy(out, cur)
	return out, nil
}
