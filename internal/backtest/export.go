package backtest

import (
	"math"
	"strconv"
	"strings"
	"time"

	"kawase/internal/market"
)

// CSVOptions 控制导出 CSV 的时间格式与价格精度。
type CSVOptions struct {
	DateOnly       bool
	Location       *time.Location
	PricePrecision int
}

const (
	// PrecisionAuto 根据价格区间自动决定精度。
	PrecisionAuto = math.MinInt32
	// PrecisionRaw 保留原始精度（等价于 strconv.FormatFloat(..., -1, 64)）
	PrecisionRaw = -1
)

// CandlesCSV 生成 K 线 CSV，首行是列头。
func CandlesCSV(candles []market.Candle, opts CSVOptions) string {
	if len(candles) == 0 {
		return ""
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	precision := opts.PricePrecision
	if precision == PrecisionAuto {
		precision = autoPrecision(candles)
	}
	header := "Time"
	if opts.DateOnly {
		header = "Date"
	}
	var b strings.Builder
	b.WriteString(header + ",O,H,L,C\n")
	for _, c := range candles {
		ts := time.UnixMilli(c.OpenTime).In(loc)
		label := ts.Format("01-02 15:04")
		if opts.DateOnly {
			label = ts.Format("06-01-02")
		}
		b.WriteString(label)
		b.WriteByte(',')
		b.WriteString(formatPrice(c.Open, precision))
		b.WriteByte(',')
		b.WriteString(formatPrice(c.High, precision))
		b.WriteByte(',')
		b.WriteString(formatPrice(c.Low, precision))
		b.WriteByte(',')
		b.WriteString(formatPrice(c.Close, precision))
		b.WriteByte('\n')
	}
	return b.String()
}

// TradesCSV 把回测结果里的交易明细导出为 CSV，时间为 UTC。
func TradesCSV(trades []Trade, precision int) string {
	if len(trades) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("ID,Side,Kind,EntryTime,EntryPrice,ExitTime,ExitPrice,Reason,Pips,PnL,Status\n")
	for _, t := range trades {
		b.WriteString(t.ID)
		b.WriteByte(',')
		b.WriteString(t.Side)
		b.WriteByte(',')
		b.WriteString(t.Divergence.Kind)
		b.WriteByte(',')
		b.WriteString(csvTime(t.EntryTime))
		b.WriteByte(',')
		b.WriteString(formatPrice(t.EntryPrice, precision))
		b.WriteByte(',')
		if t.Status == StatusClosed {
			b.WriteString(csvTime(t.ExitTime))
			b.WriteByte(',')
			b.WriteString(formatPrice(t.ExitPrice, precision))
			b.WriteByte(',')
			b.WriteString(t.ExitReason)
		} else {
			b.WriteString(",,")
		}
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(t.Pips, 'f', 1, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(t.PnL, 'f', 0, 64))
		b.WriteByte(',')
		b.WriteString(t.Status)
		b.WriteByte('\n')
	}
	return b.String()
}

func csvTime(sec int64) string {
	return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04")
}

func autoPrecision(candles []market.Candle) int {
	maxVal := 0.0
	for _, c := range candles {
		for _, v := range []float64{c.Open, c.High, c.Low, c.Close} {
			abs := math.Abs(v)
			if abs > maxVal {
				maxVal = abs
			}
		}
	}
	switch {
	case maxVal >= 1000:
		return 1
	case maxVal >= 100:
		return 3
	default:
		return PrecisionRaw
	}
}

func formatPrice(value float64, precision int) string {
	if precision == PrecisionRaw {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	s := strconv.FormatFloat(value, 'f', precision, 64)
	if precision > 0 {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	return s
}
