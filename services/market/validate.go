package market

import (
	"fmt"

	"go.uber.org/zap"
)

// QualityReport summarizes what Clean saw while filtering a bar series.
type QualityReport struct {
	Total     int
	Rejected  int
	Gaps      int
	WildJumps int
}

// maxJumpRatio flags bar-to-bar close changes above 20% as suspect feed data.
const maxJumpRatio = 0.2

// Clean sorts, dedupes, and filters a raw bar series so that only bars
// satisfying the OHLC invariants reach the engines. Invalid bars are dropped
// and counted, never fixed up. Gap and wild-jump counts are informational;
// real market data has both.
func Clean(bars []Bar, tf Timeframe, logger *zap.Logger) ([]Bar, QualityReport) {
	report := QualityReport{Total: len(bars)}
	bars = SortDedupe(bars)

	clean := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			report.Rejected++
			logger.Debug("rejecting bar", zap.Error(err))
			continue
		}
		clean = append(clean, b)
	}

	cadence := tf.Duration().Milliseconds()
	for i := 1; i < len(clean); i++ {
		if cadence > 0 && clean[i].Timestamp-clean[i-1].Timestamp > cadence {
			report.Gaps++
		}
		prev := clean[i-1].Close.InexactFloat64()
		cur := clean[i].Close.InexactFloat64()
		if prev > 0 {
			ratio := cur/prev - 1
			if ratio > maxJumpRatio || ratio < -maxJumpRatio {
				report.WildJumps++
			}
		}
	}

	if report.Rejected > 0 || report.Gaps > 0 || report.WildJumps > 0 {
		logger.Info("bar series cleaned",
			zap.Int("total", report.Total),
			zap.Int("rejected", report.Rejected),
			zap.Int("gaps", report.Gaps),
			zap.Int("wild_jumps", report.WildJumps),
		)
	}
	return clean, report
}

// CheckSeries refuses series whose remaining defects indicate a corrupted
// file rather than ordinary market gaps: more than 5% of bars rejected or
// more than 5% with wild jumps.
func (r QualityReport) CheckSeries() error {
	if r.Total == 0 {
		return fmt.Errorf("no bars loaded")
	}
	if ratio := float64(r.Rejected) / float64(r.Total); ratio > 0.05 {
		return fmt.Errorf("%.1f%% of bars failed validation, data appears corrupted", ratio*100)
	}
	if ratio := float64(r.WildJumps) / float64(r.Total); ratio > 0.05 {
		return fmt.Errorf("%.1f%% of bars have >20%% price jumps, data appears corrupted", ratio*100)
	}
	return nil
}
