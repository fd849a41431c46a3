package indicator

import (
	"math/rand"
	"testing"

	"kawase/internal/market"
)

// rsiForAll gives every candle an indicator point so pivot candidates are
// never dropped for a missing timestamp.
func rsiForAll(candles []market.Candle) []Point {
	out := make([]Point, len(candles))
	for i, c := range candles {
		out[i] = Point{TimeUtc: c.OpenTime / 1000, Value: 50}
	}
	return out
}

// A strictly increasing then strictly decreasing path of length 2L+1 has
// exactly one high pivot, at the apex.
func TestFindPivotsTriangleApex(t *testing.T) {
	const L = 3
	closes := []float64{1, 2, 3, 4, 3, 2, 1}
	candles := candlesFromCloses(closes)
	pivots, err := FindPivots(candles, rsiForAll(candles), L, L)
	if err != nil {
		t.Fatalf("FindPivots failed: %v", err)
	}
	var highs []Pivot
	for _, p := range pivots {
		if p.Kind == PivotHigh {
			highs = append(highs, p)
		}
	}
	if len(highs) != 1 {
		t.Fatalf("expected exactly 1 high pivot, got %d", len(highs))
	}
	if highs[0].Index != L {
		t.Fatalf("apex pivot at index %d, want %d", highs[0].Index, L)
	}
	if highs[0].Price != 4 {
		t.Fatalf("apex price = %v, want 4", highs[0].Price)
	}
}

// Plateaus tie with their neighbors and must never register as pivots.
func TestFindPivotsPlateauDisqualified(t *testing.T) {
	closes := []float64{1, 2, 3, 3, 3, 2, 1}
	candles := candlesFromCloses(closes)
	pivots, err := FindPivots(candles, rsiForAll(candles), 2, 2)
	if err != nil {
		t.Fatalf("FindPivots failed: %v", err)
	}
	for _, p := range pivots {
		if p.Kind == PivotHigh {
			t.Fatalf("plateau registered as high pivot at index %d", p.Index)
		}
	}
}

func TestFindPivotsInsufficientData(t *testing.T) {
	candles := candlesFromCloses([]float64{1, 2, 3})
	pivots, err := FindPivots(candles, rsiForAll(candles), 2, 2)
	if err != nil {
		t.Fatalf("insufficient data must not error: %v", err)
	}
	if len(pivots) != 0 {
		t.Fatalf("expected no pivots, got %d", len(pivots))
	}
}

func TestFindPivotsInvalidLookback(t *testing.T) {
	candles := candlesFromCloses([]float64{1, 2, 1})
	if _, err := FindPivots(candles, rsiForAll(candles), 0, 2); err == nil {
		t.Fatal("left lookback 0 should be rejected")
	}
	if _, err := FindPivots(candles, rsiForAll(candles), 2, 0); err == nil {
		t.Fatal("right lookback 0 should be rejected")
	}
}

// A candidate without an RSI point at its timestamp is dropped silently.
func TestFindPivotsDropsWithoutRSI(t *testing.T) {
	closes := []float64{1, 2, 4, 2, 1}
	candles := candlesFromCloses(closes)
	pivots, err := FindPivots(candles, nil, 2, 2)
	if err != nil {
		t.Fatalf("FindPivots failed: %v", err)
	}
	if len(pivots) != 0 {
		t.Fatalf("expected candidate dropped without RSI, got %d pivots", len(pivots))
	}
}

// Asymmetric windows are honored exactly: a peak confirmed by 1 left / 3
// right neighbors is found with L=1,R=3 but not with L=3,R=1 shifted data.
func TestFindPivotsAsymmetricWindow(t *testing.T) {
	closes := []float64{3, 5, 4, 3, 2, 1}
	candles := candlesFromCloses(closes)
	pivots, err := FindPivots(candles, rsiForAll(candles), 1, 3)
	if err != nil {
		t.Fatalf("FindPivots failed: %v", err)
	}
	foundHigh := false
	for _, p := range pivots {
		if p.Kind == PivotHigh && p.Index == 1 {
			foundHigh = true
		}
	}
	if !foundHigh {
		t.Fatal("expected high pivot at index 1 with L=1,R=3")
	}
}

// Property: on walks with injected plateaus, adjacent same-kind pivots never
// carry equal prices (strict dominance).
func TestFindPivotsStrictDominanceProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 20; trial++ {
		closes := make([]float64, 120)
		closes[0] = 100
		for i := 1; i < len(closes); i++ {
			if rng.Intn(5) == 0 {
				closes[i] = closes[i-1] // plateau
				continue
			}
			closes[i] = closes[i-1] + (rng.Float64()-0.5)*2
		}
		candles := candlesFromCloses(closes)
		pivots, err := FindPivots(candles, rsiForAll(candles), 2, 2)
		if err != nil {
			t.Fatalf("trial %d: FindPivots failed: %v", trial, err)
		}
		var lastHigh, lastLow *Pivot
		for i := range pivots {
			p := pivots[i]
			if p.Kind == PivotHigh {
				if lastHigh != nil && lastHigh.Price == p.Price {
					t.Fatalf("trial %d: adjacent high pivots share price %v", trial, p.Price)
				}
				lastHigh = &pivots[i]
			} else {
				if lastLow != nil && lastLow.Price == p.Price {
					t.Fatalf("trial %d: adjacent low pivots share price %v", trial, p.Price)
				}
				lastLow = &pivots[i]
			}
		}
	}
}
