package market

import "context"

// Source 统一对接外部行情供应商。
type Source interface {
	// FetchHistory 拉取最近的 K 线并按时间升序返回，序列已去重。
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	// Close 释放底层资源。
	Close() error
}
