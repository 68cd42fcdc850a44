package backtest

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config controls one simulation run. Stop loss and take profit are
// directional fractions of the entry price (0.05 = 5%); zero disables the
// check. MaxHoldDays of zero disables the timeout. Commission is a flat
// per-trade amount in price units.
type Config struct {
	EntryDelay        time.Duration
	StopLossPercent   float64
	TakeProfitPercent float64
	MaxHoldDays       int
	Commission        decimal.Decimal
	MinConfidence     float64
}

// DefaultConfig mirrors the production simulation parameters: one-minute
// entry delay and the 0.5 confidence gate, everything else disabled.
func DefaultConfig() Config {
	return Config{
		EntryDelay:    time.Minute,
		MinConfidence: 0.5,
	}
}

// Validate rejects configurations that cannot describe a simulation.
func (c Config) Validate() error {
	if c.EntryDelay < 0 {
		return fmt.Errorf("entry delay %v is negative", c.EntryDelay)
	}
	if c.StopLossPercent < 0 || c.StopLossPercent >= 1 {
		return fmt.Errorf("stop loss percent %v out of range [0, 1)", c.StopLossPercent)
	}
	if c.TakeProfitPercent < 0 {
		return fmt.Errorf("take profit percent %v is negative", c.TakeProfitPercent)
	}
	if c.MaxHoldDays < 0 {
		return fmt.Errorf("max hold days %d is negative", c.MaxHoldDays)
	}
	if c.Commission.IsNegative() {
		return fmt.Errorf("commission %s is negative", c.Commission)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence %v out of range [0, 1]", c.MinConfidence)
	}
	return nil
}
