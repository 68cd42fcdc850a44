// Package indicators computes the EMA/ATR snapshot the signal engine runs on.
// All functions are pure, operate on ordered series (most recent value last),
// and never produce partial results on failure.
package indicators

import "math"

// EMA periods evaluated on every bar.
const (
	PeriodEMA5  = 5
	PeriodEMA8  = 8
	PeriodEMA13 = 13
	PeriodEMA21 = 21
	PeriodEMA50 = 50

	PeriodATR = 14
)

// MinHistory is the number of bars needed before a snapshot exists: the
// longest EMA period plus one extra bar for the ATR's previous close.
const MinHistory = PeriodEMA50 + 1

// Snapshot holds every indicator value derived from one bar. Derived, never
// mutated.
type Snapshot struct {
	EMA5  float64 `json:"ema_5"`
	EMA8  float64 `json:"ema_8"`
	EMA13 float64 `json:"ema_13"`
	EMA21 float64 `json:"ema_21"`
	EMA50 float64 `json:"ema_50"`

	ATR          float64 `json:"atr"`
	ATRLongLine  float64 `json:"atr_long_line"`
	ATRShortLine float64 `json:"atr_short_line"`
}

// EMA returns the exponential moving average of values with smoothing factor
// 2/(period+1), seeded by the first value (adjust=false semantics, not
// SMA-seeded).
func EMA(values []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, calcErr("ema", "invalid period %d", period)
	}
	if len(values) < period {
		return 0, ErrInsufficientData
	}
	alpha := 2.0 / float64(period+1)
	ema := values[0]
	for _, v := range values[1:] {
		ema = v*alpha + ema*(1-alpha)
	}
	if math.IsNaN(ema) || math.IsInf(ema, 0) {
		return 0, calcErr("ema", "non-finite result for period %d", period)
	}
	return ema, nil
}

// trueRange returns the true-range series: max(high-low, |high-prevClose|,
// |low-prevClose|) per bar, starting at the second bar.
func trueRange(highs, lows, closes []float64) []float64 {
	tr := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr = append(tr, math.Max(hl, math.Max(hc, lc)))
	}
	return tr
}

// ATR returns the average true range: the EMA(period) of the true-range
// series. Requires period+1 aligned high/low/close triples.
func ATR(highs, lows, closes []float64, period int) (float64, error) {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return 0, calcErr("atr", "mismatched input lengths %d/%d/%d", len(highs), len(lows), len(closes))
	}
	if len(closes) < period+1 {
		return 0, ErrInsufficientData
	}
	atr, err := EMA(trueRange(highs, lows, closes), period)
	if err != nil {
		return 0, err
	}
	if atr < 0 || math.IsNaN(atr) || math.IsInf(atr, 0) {
		return 0, calcErr("atr", "invalid value %v", atr)
	}
	return atr, nil
}

// ATRBands returns the long and short entry lines close ∓ atr*multiplier.
func ATRBands(close, atr, multiplier float64) (longLine, shortLine float64, err error) {
	if close <= 0 {
		return 0, 0, calcErr("atr_bands", "non-positive close %v", close)
	}
	if atr < 0 {
		return 0, 0, calcErr("atr_bands", "negative atr %v", atr)
	}
	if multiplier <= 0 {
		return 0, 0, calcErr("atr_bands", "non-positive multiplier %v", multiplier)
	}
	return close - atr*multiplier, close + atr*multiplier, nil
}

// Compute derives the full snapshot for the most recent bar of the series.
// Sufficiency for all indicators is validated up front so a failure never
// yields a partial snapshot.
func Compute(highs, lows, closes []float64, atrMultiplier float64) (Snapshot, error) {
	if len(closes) < MinHistory {
		return Snapshot{}, ErrInsufficientData
	}
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return Snapshot{}, calcErr("snapshot", "mismatched input lengths %d/%d/%d", len(highs), len(lows), len(closes))
	}

	var snap Snapshot
	var err error
	for _, ind := range []struct {
		period int
		dst    *float64
	}{
		{PeriodEMA5, &snap.EMA5},
		{PeriodEMA8, &snap.EMA8},
		{PeriodEMA13, &snap.EMA13},
		{PeriodEMA21, &snap.EMA21},
		{PeriodEMA50, &snap.EMA50},
	} {
		if *ind.dst, err = EMA(closes, ind.period); err != nil {
			return Snapshot{}, err
		}
	}

	if snap.ATR, err = ATR(highs, lows, closes, PeriodATR); err != nil {
		return Snapshot{}, err
	}
	snap.ATRLongLine, snap.ATRShortLine, err = ATRBands(closes[len(closes)-1], snap.ATR, atrMultiplier)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
