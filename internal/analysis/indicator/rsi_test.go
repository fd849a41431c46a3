package indicator

import (
	"math"
	"math/rand"
	"testing"

	talib "github.com/markcheno/go-talib"

	"kawase/internal/market"
)

func candlesFromCloses(closes []float64) []market.Candle {
	out := make([]market.Candle, len(closes))
	for i, c := range closes {
		out[i] = market.Candle{
			OpenTime: int64(i) * 3600_000,
			Open:     c,
			High:     c,
			Low:      c,
			Close:    c,
		}
	}
	return out
}

// Classic Wilder fixture: first RSI(14) value lands near 70.5.
func TestRSIClassicFixture(t *testing.T) {
	closes := []float64{
		44, 44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10,
		45.42, 45.84, 46.08, 45.89, 46.03, 45.61, 46.28,
	}
	points, err := RSI(candlesFromCloses(closes), 14)
	if err != nil {
		t.Fatalf("RSI failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point for 15 bars / period 14, got %d", len(points))
	}
	if got := points[0].Value; math.Abs(got-70.5) > 0.5 {
		t.Fatalf("first RSI value = %.4f, want 70.5 +/- 0.5", got)
	}
	if want := int64(14 * 3600); points[0].TimeUtc != want {
		t.Fatalf("first point time = %d, want bar 14 at %d", points[0].TimeUtc, want)
	}
}

func TestRSIInsufficientData(t *testing.T) {
	points, err := RSI(candlesFromCloses([]float64{1, 2, 3}), 14)
	if err != nil {
		t.Fatalf("insufficient data must not error: %v", err)
	}
	if len(points) != 0 {
		t.Fatalf("expected empty series, got %d points", len(points))
	}
}

func TestRSIInvalidPeriod(t *testing.T) {
	if _, err := RSI(candlesFromCloses([]float64{1, 2, 3}), 0); err == nil {
		t.Fatal("period 0 should be rejected")
	}
	if _, err := RSI(candlesFromCloses([]float64{1, 2, 3}), -3); err == nil {
		t.Fatal("negative period should be rejected")
	}
}

// Monotonically rising closes never lose, so avgLoss stays 0 and the
// convention pins every value to exactly 100.
func TestRSIZeroLossConvention(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	points, err := RSI(candlesFromCloses(closes), 14)
	if err != nil {
		t.Fatalf("RSI failed: %v", err)
	}
	if len(points) == 0 {
		t.Fatal("expected points")
	}
	for _, p := range points {
		if p.Value != 100 {
			t.Fatalf("zero-loss RSI = %v, want exactly 100", p.Value)
		}
	}
}

func TestRSIBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	closes := make([]float64, 500)
	closes[0] = 150
	for i := 1; i < len(closes); i++ {
		closes[i] = closes[i-1] + (rng.Float64()-0.5)*0.8
	}
	points, err := RSI(candlesFromCloses(closes), 14)
	if err != nil {
		t.Fatalf("RSI failed: %v", err)
	}
	if len(points) != len(closes)-14 {
		t.Fatalf("expected %d points, got %d", len(closes)-14, len(points))
	}
	for i, p := range points {
		if p.Value < 0 || p.Value > 100 {
			t.Fatalf("point %d out of [0,100]: %v", i, p.Value)
		}
	}
}

// Cross-check the recursion against talib's RSI on a random walk. Both use
// Wilder smoothing with an SMA seed, so the tails must agree closely.
func TestRSIMatchesTalib(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	closes := make([]float64, 200)
	closes[0] = 110
	for i := 1; i < len(closes); i++ {
		step := (rng.Float64() - 0.5) * 0.6
		if step == 0 {
			step = 0.01
		}
		closes[i] = closes[i-1] + step
	}
	points, err := RSI(candlesFromCloses(closes), 14)
	if err != nil {
		t.Fatalf("RSI failed: %v", err)
	}
	ref := talib.Rsi(closes, 14)
	for j, p := range points {
		want := ref[14+j]
		if math.Abs(p.Value-want) > 1e-6 {
			t.Fatalf("point %d: got %.8f, talib %.8f", j, p.Value, want)
		}
	}
}
