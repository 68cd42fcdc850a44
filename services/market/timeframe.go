package market

import (
	"fmt"
	"time"
)

// Timeframe is a bar interval in exchange notation ("5m", "1h", ...).
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe2m  Timeframe = "2m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe2h  Timeframe = "2h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	Timeframe1m:  time.Minute,
	Timeframe2m:  2 * time.Minute,
	Timeframe5m:  5 * time.Minute,
	Timeframe15m: 15 * time.Minute,
	Timeframe30m: 30 * time.Minute,
	Timeframe1h:  time.Hour,
	Timeframe2h:  2 * time.Hour,
	Timeframe4h:  4 * time.Hour,
	Timeframe1d:  24 * time.Hour,
}

// ParseTimeframe validates s against the supported intervals.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Duration returns the bar interval length. Zero for unknown timeframes.
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

func (tf Timeframe) String() string { return string(tf) }
