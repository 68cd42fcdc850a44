// Package monitoring keeps run counters for the /metrics endpoint.
package monitoring

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics is a set of atomic counters. Safe for concurrent use.
type Metrics struct {
	started time.Time

	scansTotal     atomic.Int64
	signalsTotal   atomic.Int64
	backtestsTotal atomic.Int64
	tradesTotal    atomic.Int64
	symbolFailures atomic.Int64
	barsProcessed  atomic.Int64
}

// NewMetrics returns a zeroed counter set.
func NewMetrics() *Metrics {
	return &Metrics{started: time.Now()}
}

func (m *Metrics) IncScans()              { m.scansTotal.Add(1) }
func (m *Metrics) AddSignals(n int)       { m.signalsTotal.Add(int64(n)) }
func (m *Metrics) IncBacktests()          { m.backtestsTotal.Add(1) }
func (m *Metrics) AddTrades(n int)        { m.tradesTotal.Add(int64(n)) }
func (m *Metrics) IncSymbolFailures()     { m.symbolFailures.Add(1) }
func (m *Metrics) AddBarsProcessed(n int) { m.barsProcessed.Add(int64(n)) }

// GetMetrics renders the counters in plain-text exposition format.
func (m *Metrics) GetMetrics() string {
	var b strings.Builder
	fmt.Fprintf(&b, "scanner_uptime_seconds %d\n", int64(time.Since(m.started).Seconds()))
	fmt.Fprintf(&b, "scanner_scans_total %d\n", m.scansTotal.Load())
	fmt.Fprintf(&b, "scanner_signals_total %d\n", m.signalsTotal.Load())
	fmt.Fprintf(&b, "scanner_backtests_total %d\n", m.backtestsTotal.Load())
	fmt.Fprintf(&b, "scanner_trades_total %d\n", m.tradesTotal.Load())
	fmt.Fprintf(&b, "scanner_symbol_failures_total %d\n", m.symbolFailures.Load())
	fmt.Fprintf(&b, "scanner_bars_processed_total %d\n", m.barsProcessed.Load())
	return b.String()
}
