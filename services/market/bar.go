// Package market holds the OHLCV bar model shared by the scanner and the
// backtest engine, plus loading and validation helpers.
package market

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents a single OHLCV bar. Timestamps are Unix milliseconds (UTC),
// bar-open time. Bars are immutable once constructed.
type Bar struct {
	Symbol    string
	Timestamp int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
}

// Time returns the bar-open time in UTC.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// Validate rejects bars that cannot have come from a real exchange feed:
// non-positive prices, negative volume, or a high/low that does not contain
// the open/close range.
func (b Bar) Validate() error {
	if !b.Open.IsPositive() || !b.High.IsPositive() || !b.Low.IsPositive() || !b.Close.IsPositive() {
		return fmt.Errorf("bar %s@%d: non-positive price", b.Symbol, b.Timestamp)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s@%d: negative volume %d", b.Symbol, b.Timestamp, b.Volume)
	}
	bodyHigh := decimal.Max(b.Open, b.Close)
	bodyLow := decimal.Min(b.Open, b.Close)
	if b.High.LessThan(bodyHigh) {
		return fmt.Errorf("bar %s@%d: high %s below body high %s", b.Symbol, b.Timestamp, b.High, bodyHigh)
	}
	if b.Low.GreaterThan(bodyLow) {
		return fmt.Errorf("bar %s@%d: low %s above body low %s", b.Symbol, b.Timestamp, b.Low, bodyLow)
	}
	return nil
}
