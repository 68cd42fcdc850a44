package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"ema-scanner/services/signals"
)

// ExitReason records which close condition ended a position.
type ExitReason int

const (
	ExitOppositeSignal ExitReason = iota
	ExitStopLoss
	ExitTakeProfit
	ExitTimeout
	ExitEndOfData
)

var exitReasonNames = [...]string{
	ExitOppositeSignal: "opposite_signal",
	ExitStopLoss:       "stop_loss",
	ExitTakeProfit:     "take_profit",
	ExitTimeout:        "timeout",
	ExitEndOfData:      "end_of_data",
}

func (r ExitReason) String() string {
	if int(r) < len(exitReasonNames) {
		return exitReasonNames[r]
	}
	return "unknown"
}

// Position is an open holding. At most one exists per symbol at a time; it
// carries no exit fields and is converted into a Trade on close.
type Position struct {
	Symbol     string
	Direction  signals.Direction
	EntryTime  int64
	EntryPrice decimal.Decimal
}

// At returns the recorded entry time in UTC.
func (p Position) At() time.Time { return time.UnixMilli(p.EntryTime).UTC() }

// Trade is a closed position. Append-only; the simulator is the sole
// producer. PnL is in price units net of commission, PnLPercent is the
// directional return in percent gross of commission.
type Trade struct {
	Symbol     string            `json:"symbol"`
	Direction  signals.Direction `json:"direction"`
	EntryTime  int64             `json:"entry_time"`
	ExitTime   int64             `json:"exit_time"`
	EntryPrice decimal.Decimal   `json:"entry_price"`
	ExitPrice  decimal.Decimal   `json:"exit_price"`
	PnL        decimal.Decimal   `json:"pnl"`
	PnLPercent float64           `json:"pnl_percent"`
	ExitReason ExitReason        `json:"exit_reason"`
}

// EntryAt returns the recorded entry time in UTC.
func (t Trade) EntryAt() time.Time { return time.UnixMilli(t.EntryTime).UTC() }

// ExitAt returns the exit time in UTC.
func (t Trade) ExitAt() time.Time { return time.UnixMilli(t.ExitTime).UTC() }
