package signals

import (
	"errors"

	"go.uber.org/zap"

	"ema-scanner/services/indicators"
	"ema-scanner/services/market"
)

// barFloats unpacks a bar series into the aligned float slices the indicator
// engine consumes.
func barFloats(bars []market.Bar) (highs, lows, closes []float64) {
	highs = make([]float64, len(bars))
	lows = make([]float64, len(bars))
	closes = make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High.InexactFloat64()
		lows[i] = b.Low.InexactFloat64()
		closes[i] = b.Close.InexactFloat64()
	}
	return highs, lows, closes
}

// htfAligner resolves, for each base-timeframe timestamp, the most recent
// higher-timeframe bar at or before it. Timestamps must be fed in
// non-decreasing order.
type htfAligner struct {
	bars   []market.Bar
	series *indicators.Series
	idx    int
}

func (e *Engine) newHTFAligner(htfBars []market.Bar) *htfAligner {
	if len(htfBars) < indicators.MinHistory {
		return nil
	}
	highs, lows, closes := barFloats(htfBars)
	series, err := indicators.ComputeSeries(highs, lows, closes, e.settings.ATRMultiplier)
	if err != nil {
		e.logger.Debug("higher timeframe indicators unavailable", zap.Error(err))
		return nil
	}
	return &htfAligner{bars: htfBars, series: series}
}

func (a *htfAligner) at(ts int64) *HTF {
	if a == nil {
		return nil
	}
	for a.idx+1 < len(a.bars) && a.bars[a.idx+1].Timestamp <= ts {
		a.idx++
	}
	if a.bars[a.idx].Timestamp > ts {
		return nil
	}
	snap, ok := a.series.At(a.idx)
	if !ok {
		return nil
	}
	return &HTF{Bar: a.bars[a.idx], Snapshot: snap}
}

// EvaluateSeries runs the rule set over every bar with enough indicator
// warm-up, returning one BarSignals per evaluated bar in chronological order.
// Indicator failures degrade to an empty result, never an error: the caller
// treats "no signals" and "could not compute" identically.
func (e *Engine) EvaluateSeries(symbol string, bars, htfBars []market.Bar) []BarSignals {
	if len(bars) < indicators.MinHistory {
		return nil
	}
	highs, lows, closes := barFloats(bars)
	series, err := indicators.ComputeSeries(highs, lows, closes, e.settings.ATRMultiplier)
	if err != nil {
		if !errors.Is(err, indicators.ErrInsufficientData) {
			e.logger.Debug("indicator computation failed",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
		}
		return nil
	}
	htf := e.newHTFAligner(htfBars)

	out := make([]BarSignals, 0, len(bars)-series.Offset)
	for i := series.Offset; i < len(bars); i++ {
		bar := bars[i]
		snap, _ := series.At(i)
		window := series.Window(i)
		htfCtx := htf.at(bar.Timestamp)

		bs := BarSignals{Index: i}
		for _, dir := range []Direction{Long, Short} {
			eval := e.Evaluate(dir, bar, snap, window, htfCtx)
			bs.Evaluations = append(bs.Evaluations, eval)
			if eval.Valid {
				bs.Signals = append(bs.Signals, Signal{
					Symbol:     symbol,
					Direction:  dir,
					Timestamp:  bar.Timestamp,
					Price:      bar.Close,
					Indicators: snap,
					Confidence: eval.Confidence,
				})
			}
		}
		out = append(out, bs)
	}
	return out
}

// GenerateSignals evaluates only the most recent bar, the live-scan entry
// point. Series shorter than the indicator warm-up yield an empty result.
func (e *Engine) GenerateSignals(symbol string, bars, htfBars []market.Bar) ScanResult {
	results := e.EvaluateSeries(symbol, bars, htfBars)
	if len(results) == 0 {
		return ScanResult{Symbol: symbol}
	}
	last := results[len(results)-1]
	return ScanResult{
		Symbol:      symbol,
		Signals:     last.Signals,
		Evaluations: last.Evaluations,
	}
}
