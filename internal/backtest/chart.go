package backtest

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"kawase/internal/analysis/indicator"
	"kawase/internal/market"
)

// RenderChart 把 K 线、RSI 与权益曲线渲染成单页 HTML。
// 页面可直接在浏览器打开，也可交给 SnapshotPNG 截图。
func RenderChart(w io.Writer, symbol string, candles []market.Candle, rsi []indicator.Point, res Result, initialBalance float64) error {
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("%s backtest", symbol)
	page.AddCharts(
		klineChart(symbol, candles),
		rsiChart(candles, rsi),
		equityChart(res, initialBalance),
	)
	return page.Render(w)
}

// RenderChartFile 渲染到指定路径。
func RenderChartFile(path, symbol string, candles []market.Candle, rsi []indicator.Point, res Result, initialBalance float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("创建图表文件失败: %w", err)
	}
	defer f.Close()
	return RenderChart(f, symbol, candles, rsi, res, initialBalance)
}

func axisLabels(candles []market.Candle) []string {
	labels := make([]string, len(candles))
	for i, c := range candles {
		labels[i] = time.UnixMilli(c.OpenTime).UTC().Format("01-02 15:04")
	}
	return labels
}

func klineChart(symbol string, candles []market.Candle) *charts.Kline {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: symbol}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 60, End: 100}),
	)
	data := make([]opts.KlineData, len(candles))
	for i, c := range candles {
		// echarts K 线的取值顺序是 [open, close, low, high]。
		data[i] = opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}}
	}
	kline.SetXAxis(axisLabels(candles)).AddSeries("price", data)
	return kline
}

func rsiChart(candles []market.Candle, rsi []indicator.Point) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "RSI"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	byTime := make(map[int64]float64, len(rsi))
	for _, p := range rsi {
		byTime[p.TimeUtc] = p.Value
	}
	data := make([]opts.LineData, len(candles))
	for i, c := range candles {
		if v, ok := byTime[c.OpenTime/1000]; ok {
			data[i] = opts.LineData{Value: v}
		} else {
			data[i] = opts.LineData{Value: nil}
		}
	}
	line.SetXAxis(axisLabels(candles)).AddSeries("rsi", data)
	return line
}

func equityChart(res Result, initialBalance float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "equity"}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	closed := make([]Trade, 0, len(res.Trades))
	for _, t := range res.Trades {
		if t.Status == StatusClosed {
			closed = append(closed, t)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool { return closed[i].ExitTime < closed[j].ExitTime })

	labels := make([]string, 0, len(closed)+1)
	data := make([]opts.LineData, 0, len(closed)+1)
	labels = append(labels, "start")
	data = append(data, opts.LineData{Value: initialBalance})
	equity := initialBalance
	for _, t := range closed {
		equity += t.PnL
		labels = append(labels, formatUTC(t.ExitTime))
		data = append(data, opts.LineData{Value: equity})
	}
	line.SetXAxis(labels).AddSeries("equity", data)
	return line
}
