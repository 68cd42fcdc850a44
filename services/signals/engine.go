// Package signals evaluates the EMA/ATR entry rule set against price bars and
// produces directional trading signals with confidence scores.
package signals

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ema-scanner/services/indicators"
	"ema-scanner/services/market"
)

// Signal is a tradable entry candidate. Immutable after creation.
type Signal struct {
	Symbol     string              `json:"symbol"`
	Direction  Direction           `json:"direction"`
	Timestamp  int64               `json:"timestamp"`
	Price      decimal.Decimal     `json:"price"`
	Indicators indicators.Snapshot `json:"indicators"`
	Confidence float64             `json:"confidence"`
}

// HTF bundles a higher-timeframe bar with its indicator snapshot for the
// confirmation condition.
type HTF struct {
	Bar      market.Bar
	Snapshot indicators.Snapshot
}

// BarSignals is the per-bar output of a series evaluation: at most one signal
// per direction, plus both directions' full evaluations for diagnostics.
type BarSignals struct {
	Index       int
	Signals     []Signal
	Evaluations []Evaluation
}

// ScanResult is what a live scan of one symbol returns.
type ScanResult struct {
	Symbol      string       `json:"symbol"`
	Signals     []Signal     `json:"signals"`
	Evaluations []Evaluation `json:"evaluations"`
}

// Engine evaluates the rule set. It holds only immutable configuration and is
// safe for concurrent use across symbols.
type Engine struct {
	settings Settings
	logger   *zap.Logger
}

// NewEngine validates settings and returns an evaluator.
func NewEngine(settings Settings, logger *zap.Logger) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{settings: settings, logger: logger}, nil
}

// Settings returns the engine's parameter set.
func (e *Engine) Settings() Settings { return e.settings }

// Evaluate runs one direction's rule set against a single bar. window is the
// growing snapshot history for the symbol, oldest first, with the current
// bar's snapshot as its last element. htf is nil when no higher-timeframe
// data is available, which drops the confirmation condition from the total.
func (e *Engine) Evaluate(dir Direction, bar market.Bar, snap indicators.Snapshot, window []indicators.Snapshot, htf *HTF) Evaluation {
	open := bar.Open.InexactFloat64()
	close := bar.Close.InexactFloat64()

	results := make([]ConditionResult, 0, 6)
	results = append(results,
		e.evalCondition(CondPolarFormation, func() (bool, string) {
			return e.polarFormation(dir, open, close, snap)
		}),
		e.evalCondition(CondEMAPositioning, func() (bool, string) {
			return e.emaPositioning(dir, snap)
		}),
		e.evalCondition(CondRisingEMAs, func() (bool, string) {
			return e.risingEMAs(dir, window)
		}),
		e.evalCondition(CondFOMOFilter, func() (bool, string) {
			return e.fomoFilter(close, snap)
		}),
		e.evalCondition(CondVolatilityFilter, func() (bool, string) {
			return e.volatilityFilter(snap)
		}),
	)
	if htf != nil {
		results = append(results, e.evalCondition(CondHTFConfirmation, func() (bool, string) {
			return e.htfConfirmation(dir, *htf)
		}))
	}

	eval := Evaluation{
		Direction:       dir,
		Results:         results,
		TotalConditions: len(results),
	}
	for _, r := range results {
		if r.Met {
			eval.ConditionsMet++
		}
	}
	eval.Confidence = float64(eval.ConditionsMet) / float64(eval.TotalConditions)
	eval.Valid = eval.ConditionsMet == eval.TotalConditions
	return eval
}

// evalCondition contains panics from a single condition so one bad indicator
// never aborts evaluation of the rest.
func (e *Engine) evalCondition(c Condition, fn func() (bool, string)) (res ConditionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("condition evaluation panicked",
				zap.Stringer("condition", c),
				zap.Any("panic", r),
			)
			res = ConditionResult{Condition: c, Met: false, Reason: fmt.Sprintf("evaluation error: %v", r)}
		}
	}()
	met, reason := fn()
	return ConditionResult{Condition: c, Met: met, Reason: reason}
}

func (e *Engine) polarFormation(dir Direction, open, close float64, snap indicators.Snapshot) (bool, string) {
	if dir == Long {
		if close <= open {
			return false, fmt.Sprintf("close %.6g not above open %.6g", close, open)
		}
		if close <= snap.EMA8 {
			return false, fmt.Sprintf("close %.6g not above ema8 %.6g", close, snap.EMA8)
		}
		if close <= snap.EMA21 {
			return false, fmt.Sprintf("close %.6g not above ema21 %.6g", close, snap.EMA21)
		}
		return true, ""
	}
	if close >= open {
		return false, fmt.Sprintf("close %.6g not below open %.6g", close, open)
	}
	if close >= snap.EMA8 {
		return false, fmt.Sprintf("close %.6g not below ema8 %.6g", close, snap.EMA8)
	}
	if close >= snap.EMA21 {
		return false, fmt.Sprintf("close %.6g not below ema21 %.6g", close, snap.EMA21)
	}
	return true, ""
}

func (e *Engine) emaPositioning(dir Direction, snap indicators.Snapshot) (bool, string) {
	if dir == Long {
		if snap.EMA5 >= snap.ATRLongLine {
			return false, fmt.Sprintf("ema5 %.6g not below atr long line %.6g", snap.EMA5, snap.ATRLongLine)
		}
		return true, ""
	}
	if snap.EMA5 <= snap.ATRShortLine {
		return false, fmt.Sprintf("ema5 %.6g not above atr short line %.6g", snap.EMA5, snap.ATRShortLine)
	}
	return true, ""
}

// risingEMAs checks the bar-over-bar percentage change of EMA 5/8/21 against
// the configured thresholds; the short direction requires the mirrored
// decline. Fails closed with fewer than two snapshots of history.
func (e *Engine) risingEMAs(dir Direction, window []indicators.Snapshot) (bool, string) {
	if len(window) < 2 {
		return false, "insufficient snapshot history"
	}
	cur := window[len(window)-1]
	prev := window[len(window)-2]

	checks := []struct {
		name      string
		cur, prev float64
		threshold float64
	}{
		{"ema5", cur.EMA5, prev.EMA5, e.settings.EMA5RisingThreshold},
		{"ema8", cur.EMA8, prev.EMA8, e.settings.EMA8RisingThreshold},
		{"ema21", cur.EMA21, prev.EMA21, e.settings.EMA21RisingThreshold},
	}
	for _, c := range checks {
		if c.prev == 0 {
			return false, fmt.Sprintf("%s previous value is zero", c.name)
		}
		change := (c.cur - c.prev) / c.prev
		if dir == Long && change <= c.threshold {
			return false, fmt.Sprintf("%s change %.6g not above %.6g", c.name, change, c.threshold)
		}
		if dir == Short && change >= -c.threshold {
			return false, fmt.Sprintf("%s change %.6g not below %.6g", c.name, change, -c.threshold)
		}
	}
	return true, ""
}

func (e *Engine) fomoFilter(close float64, snap indicators.Snapshot) (bool, string) {
	limit := snap.ATR * e.settings.FOMOFilter
	if d := abs(close - snap.EMA8); d > limit {
		return false, fmt.Sprintf("distance to ema8 %.6g exceeds %.6g", d, limit)
	}
	if d := abs(close - snap.EMA21); d > limit {
		return false, fmt.Sprintf("distance to ema21 %.6g exceeds %.6g", d, limit)
	}
	return true, ""
}

func (e *Engine) volatilityFilter(snap indicators.Snapshot) (bool, string) {
	floor := 1.0 / e.settings.VolatilityFilter
	if snap.ATR < floor {
		return false, fmt.Sprintf("atr %.6g below floor %.6g", snap.ATR, floor)
	}
	return true, ""
}

func (e *Engine) htfConfirmation(dir Direction, htf HTF) (bool, string) {
	open := htf.Bar.Open.InexactFloat64()
	close := htf.Bar.Close.InexactFloat64()
	if dir == Long {
		if htf.Snapshot.EMA5 <= htf.Snapshot.EMA8 {
			return false, fmt.Sprintf("htf ema5 %.6g not above ema8 %.6g", htf.Snapshot.EMA5, htf.Snapshot.EMA8)
		}
		if close <= open {
			return false, "htf bar not bullish"
		}
		return true, ""
	}
	if htf.Snapshot.EMA5 >= htf.Snapshot.EMA8 {
		return false, fmt.Sprintf("htf ema5 %.6g not below ema8 %.6g", htf.Snapshot.EMA5, htf.Snapshot.EMA8)
	}
	if close >= open {
		return false, "htf bar not bearish"
	}
	return true, ""
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
