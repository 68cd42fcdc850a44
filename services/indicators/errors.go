package indicators

import (
	"errors"
	"fmt"
)

// ErrInsufficientData reports that a series is too short for the requested
// indicator. Recoverable: callers skip the bar or wait for more history.
var ErrInsufficientData = errors.New("insufficient data")

// CalculationError reports a numerically invalid result (NaN, Inf, negative
// where impossible, or mismatched input lengths). Recoverable: callers skip
// the affected bar or symbol.
type CalculationError struct {
	Indicator string
	Reason    string
}

func (e *CalculationError) Error() string {
	return fmt.Sprintf("%s calculation failed: %s", e.Indicator, e.Reason)
}

func calcErr(indicator, format string, args ...any) error {
	return &CalculationError{Indicator: indicator, Reason: fmt.Sprintf(format, args...)}
}
