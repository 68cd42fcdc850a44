package backtest

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ema-scanner/services/market"
	"ema-scanner/services/signals"
)

// scriptedSource replays a fixed evaluation script regardless of input.
type scriptedSource struct {
	results []signals.BarSignals
}

func (s scriptedSource) EvaluateSeries(symbol string, bars, htfBars []market.Bar) []signals.BarSignals {
	return s.results
}

func priceBars(prices ...float64) []market.Bar {
	bars := make([]market.Bar, len(prices))
	for i, p := range prices {
		d := decimal.NewFromFloat(p)
		bars[i] = market.Bar{
			Symbol:    "TESTUSDT",
			Timestamp: int64(i) * 60_000,
			Open:      d,
			High:      d,
			Low:       d,
			Close:     d,
			Volume:    1,
		}
	}
	return bars
}

func sigAt(index int, dir signals.Direction, confidence float64) signals.BarSignals {
	return signals.BarSignals{
		Index: index,
		Signals: []signals.Signal{{
			Symbol:     "TESTUSDT",
			Direction:  dir,
			Confidence: confidence,
		}},
	}
}

func noSig(index int) signals.BarSignals {
	return signals.BarSignals{Index: index}
}

func newSim(t *testing.T, cfg Config, results ...signals.BarSignals) *Simulator {
	t.Helper()
	sim, err := NewSimulator(cfg, scriptedSource{results: results}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return sim
}

func TestEntryDelayAndEndOfDataClose(t *testing.T) {
	sim := newSim(t, DefaultConfig(),
		sigAt(0, signals.Long, 1.0), noSig(1), noSig(2))
	trades := sim.RunSymbol(context.Background(), "TESTUSDT", priceBars(100, 101, 102), nil)
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	tr := trades[0]
	if tr.ExitReason != ExitEndOfData {
		t.Fatalf("exit reason %s", tr.ExitReason)
	}
	if tr.EntryTime != time.Minute.Milliseconds() {
		t.Fatalf("entry time %d, delay not applied", tr.EntryTime)
	}
	if tr.ExitTime != 120_000 {
		t.Fatalf("exit time %d", tr.ExitTime)
	}
	if !tr.PnL.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("pnl %s, want 2", tr.PnL)
	}
	if tr.PnLPercent != 2 {
		t.Fatalf("pnl percent %v, want 2", tr.PnLPercent)
	}
}

func TestConfidenceGate(t *testing.T) {
	sim := newSim(t, DefaultConfig(),
		sigAt(0, signals.Long, 0.4), noSig(1))
	if trades := sim.RunSymbol(context.Background(), "TESTUSDT", priceBars(100, 101), nil); len(trades) != 0 {
		t.Fatalf("low confidence signal opened %d trades", len(trades))
	}
}

func TestOppositeSignalCloseAndReentry(t *testing.T) {
	sim := newSim(t, DefaultConfig(),
		sigAt(0, signals.Long, 1.0),
		sigAt(1, signals.Short, 1.0),
		sigAt(2, signals.Short, 1.0))
	trades := sim.RunSymbol(context.Background(), "TESTUSDT", priceBars(100, 98, 97), nil)
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].ExitReason != ExitOppositeSignal {
		t.Fatalf("first exit %s, want opposite_signal", trades[0].ExitReason)
	}
	// The short on the closing bar must not open until the next bar.
	if trades[1].Direction != signals.Short || trades[1].ExitReason != ExitEndOfData {
		t.Fatalf("second trade %+v", trades[1])
	}
	if trades[1].EntryTime != 120_000+time.Minute.Milliseconds() {
		t.Fatalf("re-entry on the same bar as the close: entry %d", trades[1].EntryTime)
	}
}

func TestStopLoss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopLossPercent = 0.05
	sim := newSim(t, cfg,
		sigAt(0, signals.Long, 1.0), noSig(1), noSig(2))
	trades := sim.RunSymbol(context.Background(), "TESTUSDT", priceBars(100, 94, 94), nil)
	if len(trades) != 1 || trades[0].ExitReason != ExitStopLoss {
		t.Fatalf("trades %+v", trades)
	}
	if trades[0].ExitTime != 60_000 {
		t.Fatalf("stop loss fired at %d", trades[0].ExitTime)
	}
}

func TestTakeProfit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TakeProfitPercent = 0.10
	sim := newSim(t, cfg,
		sigAt(0, signals.Long, 1.0), noSig(1))
	trades := sim.RunSymbol(context.Background(), "TESTUSDT", priceBars(100, 111), nil)
	if len(trades) != 1 || trades[0].ExitReason != ExitTakeProfit {
		t.Fatalf("trades %+v", trades)
	}
}

func TestShortStopLossOnRally(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopLossPercent = 0.05
	sim := newSim(t, cfg,
		sigAt(0, signals.Short, 1.0), noSig(1))
	trades := sim.RunSymbol(context.Background(), "TESTUSDT", priceBars(100, 106), nil)
	if len(trades) != 1 || trades[0].ExitReason != ExitStopLoss {
		t.Fatalf("trades %+v", trades)
	}
	if trades[0].PnLPercent != -6 {
		t.Fatalf("short pnl percent %v, want -6", trades[0].PnLPercent)
	}
}

func TestTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHoldDays = 1
	bars := priceBars(100, 100, 100)
	bars[1].Timestamp = 12 * time.Hour.Milliseconds()
	bars[2].Timestamp = 2 * 24 * time.Hour.Milliseconds()
	sim := newSim(t, cfg,
		sigAt(0, signals.Long, 1.0), noSig(1), noSig(2))
	trades := sim.RunSymbol(context.Background(), "TESTUSDT", bars, nil)
	if len(trades) != 1 || trades[0].ExitReason != ExitTimeout {
		t.Fatalf("trades %+v", trades)
	}
	if trades[0].ExitTime != bars[2].Timestamp {
		t.Fatalf("timeout fired at %d", trades[0].ExitTime)
	}
}

func TestOppositeSignalBeatsStopLoss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StopLossPercent = 0.05
	sim := newSim(t, cfg,
		sigAt(0, signals.Long, 1.0),
		sigAt(1, signals.Short, 1.0))
	trades := sim.RunSymbol(context.Background(), "TESTUSDT", priceBars(100, 90), nil)
	if len(trades) != 1 || trades[0].ExitReason != ExitOppositeSignal {
		t.Fatalf("trades %+v", trades)
	}
}

func TestCommission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Commission = decimal.NewFromFloat(0.5)
	sim := newSim(t, cfg,
		sigAt(0, signals.Long, 1.0), noSig(1))
	trades := sim.RunSymbol(context.Background(), "TESTUSDT", priceBars(100, 102), nil)
	if len(trades) != 1 {
		t.Fatalf("got %d trades", len(trades))
	}
	if !trades[0].PnL.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("pnl %s, want 1.5 net of commission", trades[0].PnL)
	}
	// Percent return stays gross of commission.
	if trades[0].PnLPercent != 2 {
		t.Fatalf("pnl percent %v, want 2", trades[0].PnLPercent)
	}
}

func TestSinglePositionPerSymbol(t *testing.T) {
	results := make([]signals.BarSignals, 5)
	for i := range results {
		results[i] = sigAt(i, signals.Long, 1.0)
	}
	sim := newSim(t, DefaultConfig(), results...)
	trades := sim.RunSymbol(context.Background(), "TESTUSDT", priceBars(100, 101, 102, 103, 104), nil)
	if len(trades) != 1 {
		t.Fatalf("got %d trades, a second position opened while one was held", len(trades))
	}
}

func TestRunSymbolNoSignals(t *testing.T) {
	sim := newSim(t, DefaultConfig())
	if trades := sim.RunSymbol(context.Background(), "TESTUSDT", priceBars(100, 101), nil); trades != nil {
		t.Fatalf("got %d trades from an empty evaluation", len(trades))
	}
}

func TestRunSymbolCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := newSim(t, DefaultConfig(),
		sigAt(0, signals.Long, 1.0), noSig(1))
	if trades := sim.RunSymbol(ctx, "TESTUSDT", priceBars(100, 101), nil); len(trades) != 0 {
		t.Fatalf("cancelled run produced %d trades", len(trades))
	}
}

func TestWriteTradesCSV(t *testing.T) {
	trades := []Trade{{
		Symbol:     "TESTUSDT",
		Direction:  signals.Long,
		EntryTime:  60_000,
		ExitTime:   120_000,
		EntryPrice: decimal.NewFromInt(100),
		ExitPrice:  decimal.NewFromInt(102),
		PnL:        decimal.NewFromInt(2),
		PnLPercent: 2,
		ExitReason: ExitTakeProfit,
	}}
	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, trades); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "symbol,direction,") {
		t.Fatalf("header %q", lines[0])
	}
	if !strings.Contains(lines[1], "take_profit") {
		t.Fatalf("row %q", lines[1])
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative entry delay", func(c *Config) { c.EntryDelay = -time.Second }},
		{"stop loss out of range", func(c *Config) { c.StopLossPercent = 1 }},
		{"negative take profit", func(c *Config) { c.TakeProfitPercent = -0.1 }},
		{"negative hold days", func(c *Config) { c.MaxHoldDays = -1 }},
		{"negative commission", func(c *Config) { c.Commission = decimal.NewFromInt(-1) }},
		{"confidence above one", func(c *Config) { c.MinConfidence = 1.5 }},
	}
	for _, c := range cases {
		cfg := DefaultConfig()
		c.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: accepted", c.name)
		}
	}
}
