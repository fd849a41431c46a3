package indicator

import (
	"fmt"
	"sort"

	"kawase/internal/market"
)

const (
	PivotHigh = "high"
	PivotLow  = "low"
)

// Pivot 是一个被左右窗口共同确认的局部极值，并携带同一根 K 线上的指标值。
type Pivot struct {
	Index   int     `json:"index"`
	TimeUtc int64   `json:"time"`
	Price   float64 `json:"price"`
	RSI     float64 `json:"rsi"`
	Kind    string  `json:"kind"`
}

// FindPivots scans for strict local extrema, TradingView ta.pivothigh /
// ta.pivotlow style. A high pivot at i must be strictly greater than every
// high in [i-left, i-1] and (i, i+right]; ties disqualify. Low pivots mirror
// on lows. Candidates without an RSI point at the same timestamp are dropped.
// High and low scans run independently, so one index may yield both.
func FindPivots(candles []market.Candle, rsi []Point, left, right int) ([]Pivot, error) {
	if left < 1 || right < 1 {
		return nil, fmt.Errorf("pivot lookback must be >= 1, got left=%d right=%d", left, right)
	}
	n := len(candles)
	if n < left+right+1 {
		return nil, nil
	}

	rsiByTime := make(map[int64]float64, len(rsi))
	for _, p := range rsi {
		rsiByTime[p.TimeUtc] = p.Value
	}

	pivots := make([]Pivot, 0)
	appendPivot := func(i int, price float64, kind string) {
		t := candles[i].OpenTime / 1000
		val, ok := rsiByTime[t]
		if !ok {
			// 指标尚未就绪的早期 K 线，静默丢弃。
			return
		}
		pivots = append(pivots, Pivot{Index: i, TimeUtc: t, Price: price, RSI: val, Kind: kind})
	}

	for i := left; i < n-right; i++ {
		if dominates(candles, i, left, right, true) {
			appendPivot(i, candles[i].High, PivotHigh)
		}
		if dominates(candles, i, left, right, false) {
			appendPivot(i, candles[i].Low, PivotLow)
		}
	}

	sort.SliceStable(pivots, func(a, b int) bool { return pivots[a].Index < pivots[b].Index })
	return pivots, nil
}

func dominates(candles []market.Candle, i, left, right int, high bool) bool {
	center := candles[i].Low
	if high {
		center = candles[i].High
	}
	for j := i - left; j <= i+right; j++ {
		if j == i {
			continue
		}
		v := candles[j].Low
		if high {
			v = candles[j].High
		}
		if high && v >= center {
			return false
		}
		if !high && v <= center {
			return false
		}
	}
	return true
}
