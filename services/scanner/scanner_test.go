package scanner

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"ema-scanner/services/backtest"
	"ema-scanner/services/indicators"
	"ema-scanner/services/market"
	"ema-scanner/services/monitoring"
	"ema-scanner/services/signals"
)

func testService(t *testing.T, workers int) (*Service, *monitoring.Metrics) {
	t.Helper()
	engine, err := signals.NewEngine(signals.Default(), nil)
	if err != nil {
		t.Fatal(err)
	}
	sim, err := backtest.NewSimulator(backtest.DefaultConfig(), engine, nil)
	if err != nil {
		t.Fatal(err)
	}
	metrics := monitoring.NewMetrics()
	return New(engine, sim, workers, metrics, nil), metrics
}

func flatBars(n int) []market.Bar {
	p := decimal.NewFromInt(100)
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{
			Symbol:    "TESTUSDT",
			Timestamp: int64(i) * 60_000,
			Open:      p,
			High:      p,
			Low:       p,
			Close:     p,
			Volume:    1,
		}
	}
	return bars
}

func TestRunScanSortedResults(t *testing.T) {
	svc, _ := testService(t, 4)
	data := map[string]SymbolData{
		"CUSDT": {Bars: flatBars(60)},
		"AUSDT": {Bars: flatBars(60)},
		"BUSDT": {Bars: flatBars(60)},
	}

	report := svc.RunScan(context.Background(), data)
	if report.JobID == "" {
		t.Fatal("empty job id")
	}
	if len(report.FailedSymbols) != 0 {
		t.Fatalf("failed symbols %v", report.FailedSymbols)
	}
	if len(report.Results) != 3 {
		t.Fatalf("got %d results", len(report.Results))
	}
	for i, want := range []string{"AUSDT", "BUSDT", "CUSDT"} {
		if report.Results[i].Symbol != want {
			t.Fatalf("result %d is %s, want %s", i, report.Results[i].Symbol, want)
		}
	}
}

func TestRunScanShortHistoryYieldsEmptyResult(t *testing.T) {
	svc, _ := testService(t, 1)
	report := svc.RunScan(context.Background(), map[string]SymbolData{
		"AUSDT": {Bars: flatBars(10)},
	})
	if len(report.FailedSymbols) != 0 {
		t.Fatalf("short history treated as failure: %v", report.FailedSymbols)
	}
	if len(report.Results) != 1 || len(report.Results[0].Signals) != 0 {
		t.Fatalf("results %+v", report.Results)
	}
}

func TestRunBacktestManifest(t *testing.T) {
	svc, _ := testService(t, 2)
	data := map[string]SymbolData{
		"AUSDT": {Bars: flatBars(60)},
		"BUSDT": {Bars: flatBars(60)},
	}

	result := svc.RunBacktest(context.Background(), data)
	if result.Manifest.JobID != result.JobID {
		t.Fatal("manifest job id mismatch")
	}
	if result.Manifest.WarmupBars != indicators.MinHistory {
		t.Fatalf("warmup bars %d", result.Manifest.WarmupBars)
	}
	if result.Manifest.SettingsHash != signals.Default().Hash() {
		t.Fatal("manifest settings hash mismatch")
	}
	if result.Manifest.EngineVersion != EngineVersion {
		t.Fatalf("engine version %q", result.Manifest.EngineVersion)
	}
	// Flat prices never satisfy the rule set.
	if len(result.Trades) != 0 || result.Summary.TotalTrades != 0 {
		t.Fatalf("trades on a flat series: %d", len(result.Trades))
	}
}

func TestRunBacktestDeterministicMerge(t *testing.T) {
	svc, _ := testService(t, 8)
	data := map[string]SymbolData{}
	for _, s := range []string{"A", "B", "C", "D", "E", "F"} {
		data[s+"USDT"] = SymbolData{Bars: flatBars(60)}
	}

	a := svc.RunBacktest(context.Background(), data)
	b := svc.RunBacktest(context.Background(), data)
	if len(a.Trades) != len(b.Trades) {
		t.Fatalf("trade counts differ: %d vs %d", len(a.Trades), len(b.Trades))
	}
	for i := range a.Trades {
		if a.Trades[i] != b.Trades[i] {
			t.Fatalf("trade %d differs between runs", i)
		}
	}
}

func TestMetricsCounters(t *testing.T) {
	svc, metrics := testService(t, 1)
	svc.RunScan(context.Background(), map[string]SymbolData{
		"AUSDT": {Bars: flatBars(60)},
	})
	svc.RunBacktest(context.Background(), map[string]SymbolData{
		"AUSDT": {Bars: flatBars(60)},
	})

	out := metrics.GetMetrics()
	for _, want := range []string{
		"scanner_scans_total 1",
		"scanner_backtests_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}
}
