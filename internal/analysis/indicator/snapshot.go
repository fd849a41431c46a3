package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"kawase/internal/market"
)

const (
	snapshotEMAFast = 21
	snapshotEMASlow = 55
	snapshotATRLen  = 14
)

// Snapshot 是发送通知时附带的行情上下文，不参与背离判定。
type Snapshot struct {
	Close    float64 `json:"close"`
	EMAFast  float64 `json:"ema_fast"`
	EMASlow  float64 `json:"ema_slow"`
	ATR      float64 `json:"atr"`
	MACDHist float64 `json:"macd_hist"`
	Trend    string  `json:"trend"`
}

// ComputeSnapshot 用 talib 汇总最近的趋势/波动上下文。数据不足时字段保持零值。
func ComputeSnapshot(candles []market.Candle) Snapshot {
	var snap Snapshot
	n := len(candles)
	if n == 0 {
		return snap
	}
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}
	snap.Close = closes[n-1]

	if n > snapshotEMAFast {
		snap.EMAFast = lastValid(talib.Ema(closes, snapshotEMAFast))
	}
	if n > snapshotEMASlow {
		snap.EMASlow = lastValid(talib.Ema(closes, snapshotEMASlow))
	}
	if n > snapshotATRLen {
		snap.ATR = lastValid(talib.Atr(highs, lows, closes, snapshotATRLen))
	}
	if n > 35 {
		_, _, hist := talib.Macd(closes, 12, 26, 9)
		snap.MACDHist = lastValid(hist)
	}

	switch {
	case snap.EMAFast == 0 || snap.EMASlow == 0:
		snap.Trend = "unknown"
	case snap.EMAFast > snap.EMASlow:
		snap.Trend = "up"
	case snap.EMAFast < snap.EMASlow:
		snap.Trend = "down"
	default:
		snap.Trend = "flat"
	}
	return snap
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		v := series[i]
		if !math.IsNaN(v) && !math.IsInf(v, 0) && v != 0 {
			return v
		}
	}
	return 0
}
