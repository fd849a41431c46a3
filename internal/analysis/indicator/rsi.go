package indicator

import (
	"fmt"

	"kawase/internal/market"
)

const DefaultRSIPeriod = 14

// Point 是指标序列中的一个点，TimeUtc 为 UTC 秒。
type Point struct {
	TimeUtc int64   `json:"time"`
	Value   float64 `json:"value"`
}

// RSI computes a Wilder-smoothed RSI series over candle closes.
//
// The first point is emitted at bar index `period` (no neutral-50 prefix:
// one point per bar with index >= period, aligned to that bar's open time).
// A zero average loss maps to RSI exactly 100. Fewer than period+1 candles
// yield an empty series, not an error.
func RSI(candles []market.Candle, period int) ([]Point, error) {
	if period < 1 {
		return nil, fmt.Errorf("rsi period must be >= 1, got %d", period)
	}
	n := len(candles)
	if n < period+1 {
		return nil, nil
	}

	closes := market.Closes(candles)
	diffs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diffs[i-1] = closes[i] - closes[i-1]
	}

	var avgGain, avgLoss float64
	for _, d := range diffs[:period] {
		if d > 0 {
			avgGain += d
		} else {
			avgLoss += -d
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]Point, 0, n-period)
	out = append(out, Point{
		TimeUtc: candles[period].OpenTime / 1000,
		Value:   rsiValue(avgGain, avgLoss),
	})

	p := float64(period)
	for i := period; i < len(diffs); i++ {
		var gain, loss float64
		if d := diffs[i]; d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, Point{
			TimeUtc: candles[i+1].OpenTime / 1000,
			Value:   rsiValue(avgGain, avgLoss),
		})
	}
	return out, nil
}

// rsiValue 在 avgLoss 为 0 时固定返回 100，避免除零。
func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
