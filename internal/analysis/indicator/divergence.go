package indicator

import (
	"fmt"
	"math"
	"sort"
)

const (
	DivergenceBullish = "bullish"
	DivergenceBearish = "bearish"

	StrengthWeak   = "weak"
	StrengthMedium = "medium"
	StrengthStrong = "strong"
)

// Divergence 表示价格与 RSI 在两个同类 pivot 之间的背离。
type Divergence struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Start       Pivot   `json:"start"`
	End         Pivot   `json:"end"`
	BarDistance int     `json:"bar_distance"`
	Strength    string  `json:"strength"`
	Confidence  float64 `json:"confidence"`
}

// Classify matches temporally adjacent same-kind pivot pairs whose bar
// distance falls inside [rangeLower, rangeUpper] and labels them bullish
// (price lower low, RSI higher low) or bearish (price higher high, RSI
// lower high). Only adjacent pairs are examined, matching the TradingView
// pivot convention. Output is sorted by the ending pivot's timestamp and
// ids are deterministic, so repeated runs over the same input are
// bit-identical.
func Classify(pivots []Pivot, rangeLower, rangeUpper int) ([]Divergence, error) {
	if rangeLower < 0 || rangeLower > rangeUpper {
		return nil, fmt.Errorf("invalid bar distance range [%d, %d]", rangeLower, rangeUpper)
	}

	var lows, highs []Pivot
	for _, p := range pivots {
		switch p.Kind {
		case PivotLow:
			lows = append(lows, p)
		case PivotHigh:
			highs = append(highs, p)
		}
	}

	out := make([]Divergence, 0)
	for i := 1; i < len(lows); i++ {
		prev, cur := lows[i-1], lows[i]
		dist := cur.Index - prev.Index
		if dist < rangeLower || dist > rangeUpper {
			continue
		}
		if cur.RSI > prev.RSI && cur.Price < prev.Price {
			out = append(out, build(DivergenceBullish, prev, cur, dist))
		}
	}
	for i := 1; i < len(highs); i++ {
		prev, cur := highs[i-1], highs[i]
		dist := cur.Index - prev.Index
		if dist < rangeLower || dist > rangeUpper {
			continue
		}
		if cur.RSI < prev.RSI && cur.Price > prev.Price {
			out = append(out, build(DivergenceBearish, prev, cur, dist))
		}
	}

	sort.SliceStable(out, func(a, b int) bool { return out[a].End.TimeUtc < out[b].End.TimeUtc })
	return out, nil
}

func build(kind string, prev, cur Pivot, dist int) Divergence {
	priceChangePct := math.Abs(cur.Price-prev.Price) / prev.Price * 100
	oscDiff := math.Abs(cur.RSI - prev.RSI)

	strength := StrengthWeak
	switch {
	case oscDiff > 7 && priceChangePct > 0.5:
		strength = StrengthStrong
	case oscDiff > 3 && priceChangePct > 0.2:
		strength = StrengthMedium
	}

	// 起点或终点任意一侧处于超买/超卖区都加成。
	confidence := (oscDiff*2 + priceChangePct*10) / 3
	if (kind == DivergenceBearish && (prev.RSI > 70 || cur.RSI > 70)) ||
		(kind == DivergenceBullish && (prev.RSI < 30 || cur.RSI < 30)) {
		confidence += 10
	}
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}

	return Divergence{
		ID:          fmt.Sprintf("%s_%d_%d", kind, prev.TimeUtc, cur.TimeUtc),
		Kind:        kind,
		Start:       prev,
		End:         cur,
		BarDistance: dist,
		Strength:    strength,
		Confidence:  confidence,
	}
}
