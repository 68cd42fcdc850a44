// Package performance aggregates a trade ledger into summary statistics.
// Pure functions, recomputed on demand, no side effects.
package performance

import (
	"math"
	"sort"

	"ema-scanner/services/backtest"
)

// Summary is the derived performance report for one trade list. Return
// figures are in percent.
type Summary struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	TotalReturn   float64 `json:"total_return"`
	AverageReturn float64 `json:"average_return"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
}

// Analyze computes the summary for a trade list. Zero trades yield the zero
// summary; no statistic ever divides by zero.
func Analyze(trades []backtest.Trade) Summary {
	var s Summary
	s.TotalTrades = len(trades)
	if s.TotalTrades == 0 {
		return s
	}

	for _, t := range trades {
		if t.PnL.IsPositive() {
			s.WinningTrades++
		} else if t.PnL.IsNegative() {
			s.LosingTrades++
		}
		s.TotalReturn += t.PnLPercent
	}
	s.WinRate = float64(s.WinningTrades) / float64(s.TotalTrades)
	s.AverageReturn = s.TotalReturn / float64(s.TotalTrades)
	s.MaxDrawdown = maxDrawdown(trades)
	s.SharpeRatio = sharpeRatio(trades)
	return s
}

// maxDrawdown walks the exit-ordered cumulative return and tracks its decline
// from the running peak. Always >= 0; 0 for a profit-only sequence.
func maxDrawdown(trades []backtest.Trade) float64 {
	ordered := make([]backtest.Trade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTime < ordered[j].ExitTime
	})

	var cumulative, peak, maxDD float64
	for _, t := range ordered {
		cumulative += t.PnLPercent
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// sharpeRatio is mean over sample standard deviation of per-trade returns.
// Zero with fewer than two trades or zero deviation; no risk-free rate.
func sharpeRatio(trades []backtest.Trade) float64 {
	if len(trades) < 2 {
		return 0
	}
	var sum float64
	for _, t := range trades {
		sum += t.PnLPercent
	}
	mean := sum / float64(len(trades))

	var sq float64
	for _, t := range trades {
		d := t.PnLPercent - mean
		sq += d * d
	}
	stdev := math.Sqrt(sq / float64(len(trades)-1))
	if stdev == 0 {
		return 0
	}
	return mean / stdev
}
