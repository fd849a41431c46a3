package backtest

import (
	"fmt"
	"sort"
	"strings"

	"kawase/internal/analysis/indicator"
	"kawase/internal/market"
)

const (
	SideLong  = "long"
	SideShort = "short"

	ExitProfit = "profit"
	ExitLoss   = "loss"

	StatusOpen   = "open"
	StatusClosed = "closed"
)

// unitsPerLot 固定按 1 lot = 1000 通货单位折算盈亏（JPY 口径）。
const unitsPerLot = 1000

// Settings 是一次回测的风险参数。
type Settings struct {
	StopLossPips     float64 `json:"stop_loss_pips" toml:"stop_loss_pips"`
	TakeProfitPips   float64 `json:"take_profit_pips" toml:"take_profit_pips"`
	InitialBalance   float64 `json:"initial_balance" toml:"initial_balance"`
	PositionSizeLots float64 `json:"position_size_lots" toml:"position_size_lots"`
}

func (s Settings) WithDefaults() Settings {
	out := s
	if out.StopLossPips <= 0 {
		out.StopLossPips = 30
	}
	if out.TakeProfitPips <= 0 {
		out.TakeProfitPips = 50
	}
	if out.InitialBalance <= 0 {
		out.InitialBalance = 100000
	}
	if out.PositionSizeLots <= 0 {
		out.PositionSizeLots = 1
	}
	return out
}

// Trade 是一笔由背离信号触发的模拟交易。
type Trade struct {
	ID         string               `json:"id"`
	Side       string               `json:"side"`
	EntryTime  int64                `json:"entry_time"`
	EntryPrice float64              `json:"entry_price"`
	ExitTime   int64                `json:"exit_time,omitempty"`
	ExitPrice  float64              `json:"exit_price,omitempty"`
	ExitReason string               `json:"exit_reason,omitempty"`
	PnL        float64              `json:"pnl"`
	Pips       float64              `json:"pips"`
	Status     string               `json:"status"`
	Divergence indicator.Divergence `json:"divergence"`
}

// Result 汇总一次回测的全部交易与绩效指标。
type Result struct {
	Trades        []Trade `json:"trades"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalPnL      float64 `json:"total_pnl"`
	TotalPips     float64 `json:"total_pips"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	FinalBalance  float64 `json:"final_balance"`
	ProfitFactor  float64 `json:"profit_factor"`
}

// PipSize 返回该货币对的 pip 单位：JPY 计价对为 0.01，其余为 0.0001。
func PipSize(symbol string) float64 {
	if strings.HasSuffix(strings.ToUpper(strings.TrimSpace(symbol)), "JPY") {
		return 0.01
	}
	return 0.0001
}

// Run replays divergences against the candle series with a fixed
// stop-loss/take-profit exit model.
//
// Entry is the close of the bar matching the divergence's ending pivot
// timestamp; a missing bar or an entry on the last bar skips the signal.
// Scanning forward, take-profit is checked before stop-loss on every bar,
// so a bar breaching both resolves as profit. Trades still open when the
// series ends stay open and are excluded from closed-trade statistics.
func Run(candles []market.Candle, divergences []indicator.Divergence, cfg Settings, pipSize float64) (Result, error) {
	if cfg.StopLossPips <= 0 || cfg.TakeProfitPips <= 0 {
		return Result{}, fmt.Errorf("stop loss and take profit pips must be positive, got %.2f/%.2f", cfg.StopLossPips, cfg.TakeProfitPips)
	}
	if pipSize <= 0 {
		return Result{}, fmt.Errorf("pip size must be positive, got %v", pipSize)
	}
	if cfg.InitialBalance <= 0 {
		return Result{}, fmt.Errorf("initial balance must be positive, got %v", cfg.InitialBalance)
	}
	if cfg.PositionSizeLots <= 0 {
		return Result{}, fmt.Errorf("position size must be positive, got %v", cfg.PositionSizeLots)
	}

	trades := make([]Trade, 0, len(divergences))
	for i, div := range divergences {
		entryIdx := market.IndexByOpenTime(candles, div.End.TimeUtc*1000)
		if entryIdx < 0 || entryIdx >= len(candles)-1 {
			// 找不到入场 K 线或落在最后一根上，跳过该信号。
			continue
		}
		side := SideShort
		if div.Kind == indicator.DivergenceBullish {
			side = SideLong
		}
		entryPrice := candles[entryIdx].Close

		var stopLoss, takeProfit float64
		if side == SideLong {
			stopLoss = entryPrice - cfg.StopLossPips*pipSize
			takeProfit = entryPrice + cfg.TakeProfitPips*pipSize
		} else {
			stopLoss = entryPrice + cfg.StopLossPips*pipSize
			takeProfit = entryPrice - cfg.TakeProfitPips*pipSize
		}

		trade := Trade{
			ID:         fmt.Sprintf("trade_%d_%d", i, div.End.TimeUtc),
			Side:       side,
			EntryTime:  div.End.TimeUtc,
			EntryPrice: entryPrice,
			Status:     StatusOpen,
			Divergence: div,
		}

		for j := entryIdx + 1; j < len(candles); j++ {
			bar := candles[j]
			var exitPrice float64
			var exitReason string
			if side == SideLong {
				switch {
				case bar.High >= takeProfit:
					exitPrice, exitReason = takeProfit, ExitProfit
				case bar.Low <= stopLoss:
					exitPrice, exitReason = stopLoss, ExitLoss
				}
			} else {
				switch {
				case bar.Low <= takeProfit:
					exitPrice, exitReason = takeProfit, ExitProfit
				case bar.High >= stopLoss:
					exitPrice, exitReason = stopLoss, ExitLoss
				}
			}
			if exitReason == "" {
				continue
			}
			priceDiff := exitPrice - entryPrice
			if side == SideShort {
				priceDiff = entryPrice - exitPrice
			}
			trade.ExitTime = bar.OpenTime / 1000
			trade.ExitPrice = exitPrice
			trade.ExitReason = exitReason
			trade.Pips = priceDiff / pipSize
			trade.PnL = trade.Pips * cfg.PositionSizeLots * unitsPerLot
			trade.Status = StatusClosed
			break
		}
		trades = append(trades, trade)
	}

	return aggregate(trades, cfg.InitialBalance), nil
}

// aggregate 只统计已平仓交易；权益曲线按平仓时间顺序累加。
func aggregate(trades []Trade, initialBalance float64) Result {
	res := Result{Trades: trades, FinalBalance: initialBalance}

	closed := make([]Trade, 0, len(trades))
	for _, t := range trades {
		if t.Status == StatusClosed {
			closed = append(closed, t)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool { return closed[i].ExitTime < closed[j].ExitTime })

	var grossProfit, grossLoss float64
	equity := initialBalance
	peak := initialBalance
	for _, t := range closed {
		res.TotalPnL += t.PnL
		res.TotalPips += t.Pips
		if t.PnL > 0 {
			res.WinningTrades++
			grossProfit += t.PnL
		} else if t.PnL < 0 {
			res.LosingTrades++
			grossLoss += -t.PnL
		}
		equity += t.PnL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > res.MaxDrawdown {
				res.MaxDrawdown = dd
			}
		}
	}

	res.TotalTrades = len(closed)
	res.FinalBalance = initialBalance + res.TotalPnL
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	}
	switch {
	case grossLoss > 0:
		res.ProfitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		res.ProfitFactor = 999
	default:
		res.ProfitFactor = 0
	}
	return res
}
