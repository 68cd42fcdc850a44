package signals

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"ema-scanner/services/market"
)

// Settings is the immutable parameter set for one scan or backtest run.
// Construct through Default and validate overrides with Validate; out-of-range
// values are rejected up front, not at point of use.
type Settings struct {
	ATRMultiplier        float64          `json:"atr_multiplier"`
	EMA5RisingThreshold  float64          `json:"ema5_rising_threshold"`
	EMA8RisingThreshold  float64          `json:"ema8_rising_threshold"`
	EMA21RisingThreshold float64          `json:"ema21_rising_threshold"`
	VolatilityFilter     float64          `json:"volatility_filter"`
	FOMOFilter           float64          `json:"fomo_filter"`
	HigherTimeframe      market.Timeframe `json:"higher_timeframe"`
}

// Default returns the production parameter set.
func Default() Settings {
	return Settings{
		ATRMultiplier:        2.0,
		EMA5RisingThreshold:  0.02,
		EMA8RisingThreshold:  0.01,
		EMA21RisingThreshold: 0.005,
		VolatilityFilter:     1.5,
		FOMOFilter:           1.0,
		HigherTimeframe:      market.Timeframe15m,
	}
}

func inRange(name string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s %v out of range [%v, %v]", name, v, lo, hi)
	}
	return nil
}

// Validate range-checks every parameter.
func (s Settings) Validate() error {
	if err := inRange("atr_multiplier", s.ATRMultiplier, 0.5, 10); err != nil {
		return err
	}
	if err := inRange("ema5_rising_threshold", s.EMA5RisingThreshold, 0.001, 0.1); err != nil {
		return err
	}
	if err := inRange("ema8_rising_threshold", s.EMA8RisingThreshold, 0.001, 0.1); err != nil {
		return err
	}
	if err := inRange("ema21_rising_threshold", s.EMA21RisingThreshold, 0.001, 0.1); err != nil {
		return err
	}
	if err := inRange("volatility_filter", s.VolatilityFilter, 0.1, 5); err != nil {
		return err
	}
	if err := inRange("fomo_filter", s.FOMOFilter, 0.1, 3); err != nil {
		return err
	}
	if _, err := market.ParseTimeframe(string(s.HigherTimeframe)); err != nil {
		return fmt.Errorf("higher_timeframe: %w", err)
	}
	return nil
}

// Hash returns a stable digest of the settings, used for cache keys and run
// manifests.
func (s Settings) Hash() string {
	b, _ := json.Marshal(s)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}
