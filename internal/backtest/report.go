package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
)

// FormatReport 将回测结果渲染为终端表格：先汇总指标，再逐笔明细。
func FormatReport(symbol string, res Result) string {
	var b strings.Builder

	summary := table.NewWriter()
	summary.SetStyle(table.StyleLight)
	summary.SetTitle(fmt.Sprintf("%s 回测汇总", symbol))
	summary.AppendRows([]table.Row{
		{"总交易数", res.TotalTrades},
		{"胜 / 负", fmt.Sprintf("%d / %d", res.WinningTrades, res.LosingTrades)},
		{"胜率", fmt.Sprintf("%.1f%%", res.WinRate)},
		{"总盈亏", fmt.Sprintf("%.0f", res.TotalPnL)},
		{"总点数", fmt.Sprintf("%.1f pips", res.TotalPips)},
		{"最大回撤", fmt.Sprintf("%.2f%%", res.MaxDrawdown)},
		{"盈亏比", fmt.Sprintf("%.2f", res.ProfitFactor)},
		{"期末权益", fmt.Sprintf("%.0f", res.FinalBalance)},
	})
	b.WriteString(summary.Render())
	b.WriteString("\n")

	if len(res.Trades) == 0 {
		return b.String()
	}

	detail := table.NewWriter()
	detail.SetStyle(table.StyleLight)
	detail.AppendHeader(table.Row{"#", "方向", "入场", "入场价", "出场", "出场价", "结果", "pips"})
	for i, tr := range res.Trades {
		exitAt, exitPrice, reason := "-", "-", tr.Status
		if tr.Status == StatusClosed {
			exitAt = formatUTC(tr.ExitTime)
			exitPrice = fmt.Sprintf("%.4f", tr.ExitPrice)
			reason = tr.ExitReason
		}
		detail.AppendRow(table.Row{
			i + 1,
			tr.Side,
			formatUTC(tr.EntryTime),
			fmt.Sprintf("%.4f", tr.EntryPrice),
			exitAt,
			exitPrice,
			reason,
			fmt.Sprintf("%+.1f", tr.Pips),
		})
	}
	b.WriteString(detail.Render())
	b.WriteString("\n")
	return b.String()
}

func formatUTC(sec int64) string {
	return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04")
}
