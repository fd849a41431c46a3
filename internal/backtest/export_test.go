package backtest

import (
	"strings"
	"testing"

	"kawase/internal/analysis/indicator"
	"kawase/internal/market"
)

func TestCandlesCSV(t *testing.T) {
	candles := []market.Candle{
		{OpenTime: 0, Open: 150.123, High: 150.5, Low: 149.9, Close: 150.25},
		{OpenTime: 3600_000, Open: 150.25, High: 150.75, Low: 150.1, Close: 150.5},
	}
	out := CandlesCSV(candles, CSVOptions{PricePrecision: PrecisionAuto})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "Time,O,H,L,C" {
		t.Fatalf("header = %q", lines[0])
	}
	// 价格在 100~1000 区间，自动精度为 3 位并去掉尾零。
	if lines[1] != "01-01 00:00,150.123,150.5,149.9,150.25" {
		t.Fatalf("row = %q", lines[1])
	}
}

func TestCandlesCSVDateOnly(t *testing.T) {
	candles := []market.Candle{{OpenTime: 86_400_000, Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15}}
	out := CandlesCSV(candles, CSVOptions{DateOnly: true, PricePrecision: PrecisionRaw})
	if !strings.HasPrefix(out, "Date,O,H,L,C\n70-01-02,") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestTradesCSV(t *testing.T) {
	trades := []Trade{
		{
			ID:         "trade_0_3600",
			Side:       SideLong,
			EntryTime:  3600,
			EntryPrice: 150,
			ExitTime:   7200,
			ExitPrice:  150.5,
			ExitReason: ExitProfit,
			Pips:       50,
			PnL:        50000,
			Status:     StatusClosed,
			Divergence: indicator.Divergence{Kind: indicator.DivergenceBullish},
		},
		{
			ID:         "trade_1_7200",
			Side:       SideShort,
			EntryTime:  7200,
			EntryPrice: 150.5,
			Status:     StatusOpen,
			Divergence: indicator.Divergence{Kind: indicator.DivergenceBearish},
		},
	}
	out := TradesCSV(trades, PrecisionRaw)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(lines))
	}
	if !strings.Contains(lines[1], "1970-01-01 02:00,150.5,profit,50.0,50000,closed") {
		t.Fatalf("closed row = %q", lines[1])
	}
	// 未平仓交易的出场列留空。
	if !strings.Contains(lines[2], ",,,") || !strings.HasSuffix(lines[2], "open") {
		t.Fatalf("open row = %q", lines[2])
	}
}

func TestTradesCSVEmpty(t *testing.T) {
	if out := TradesCSV(nil, PrecisionRaw); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}
