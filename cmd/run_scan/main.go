package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"ema-scanner/services/arrowexport"
	"ema-scanner/services/clickhouse"
	"ema-scanner/services/market"
	"ema-scanner/services/monitoring"
	"ema-scanner/services/scanner"
	"ema-scanner/services/signals"
)

const timeLayout = "2006-01-02 15:04:05"

func parseUTCMillis(s string) int64 {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t.UnixMilli()
}

func main() {
	// Flags
	chAddr := flag.String("ch-addr", "localhost:19000", "ClickHouse native address")
	db := flag.String("db", "backtest", "ClickHouse database")
	table := flag.String("table", "data", "ClickHouse table")
	user := flag.String("ch-user", "backtest", "ClickHouse user")
	pass := flag.String("ch-pass", "backtest123", "ClickHouse password")
	symbolList := flag.String("symbols", "BTCUSDT", "Comma separated symbols")
	tfName := flag.String("tf", "5m", "Bar timeframe")
	htfName := flag.String("htf", "15m", "Higher timeframe for confirmation")
	from := flag.String("from", "2024-09-01 00:00:00", "Start UTC (YYYY-MM-DD HH:MM:SS)")
	to := flag.String("to", "2024-10-01 00:00:00", "End UTC (YYYY-MM-DD HH:MM:SS)")
	workers := flag.Int("workers", 0, "Worker pool size, 0 for CPU count")
	exportBars := flag.String("export-bars", "", "Write loaded bars as Arrow IPC to this path")
	verbose := flag.Bool("verbose", false, "Print failed conditions for symbols without signals")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	tf, err := market.ParseTimeframe(*tfName)
	if err != nil {
		panic(err)
	}
	htf, err := market.ParseTimeframe(*htfName)
	if err != nil {
		panic(err)
	}

	settings := signals.Default()
	settings.HigherTimeframe = htf

	engine, err := signals.NewEngine(settings, logger)
	if err != nil {
		panic(err)
	}

	store, err := clickhouse.NewStore(clickhouse.Config{
		Addr:     *chAddr,
		Database: *db,
		Table:    *table,
		Username: *user,
		Password: *pass,
	}, logger)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	ctx := context.Background()
	fromMs, toMs := parseUTCMillis(*from), parseUTCMillis(*to)
	htfFrom := fromMs - 52*htf.Duration().Milliseconds()

	data := make(map[string]scanner.SymbolData)
	var allBars []market.Bar
	for _, symbol := range strings.Split(*symbolList, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		bars, err := store.LoadBars(ctx, symbol, tf, fromMs, toMs)
		if err != nil {
			panic(err)
		}
		bars, report := market.Clean(bars, tf, logger)
		if err := report.CheckSeries(); err != nil {
			fmt.Printf("%s: skipped, %v\n", symbol, err)
			continue
		}
		htfBars, err := store.LoadBars(ctx, symbol, htf, htfFrom, toMs)
		if err != nil {
			panic(err)
		}
		htfBars, _ = market.Clean(htfBars, htf, logger)
		data[symbol] = scanner.SymbolData{Bars: bars, HTFBars: htfBars}
		allBars = append(allBars, bars...)
	}

	svc := scanner.New(engine, nil, *workers, monitoring.NewMetrics(), logger)
	scanReport := svc.RunScan(ctx, data)

	fmt.Printf("=== Scan %s ===\n", scanReport.JobID)
	fmt.Printf("Symbols: %d, failed: %d, elapsed: %s\n",
		len(scanReport.Results), len(scanReport.FailedSymbols), scanReport.ExecutionTime)
	for _, res := range scanReport.Results {
		if len(res.Signals) == 0 {
			if *verbose {
				for _, ev := range res.Evaluations {
					for _, f := range ev.Failures() {
						fmt.Printf("%s %s: %s failed: %s\n",
							res.Symbol, ev.Direction, f.Condition, f.Reason)
					}
				}
			}
			continue
		}
		for _, sig := range res.Signals {
			fmt.Printf("%s %s @ %s (%s, confidence %.2f)\n",
				sig.Symbol, sig.Direction, sig.Price.String(),
				time.UnixMilli(sig.Timestamp).UTC().Format(timeLayout), sig.Confidence)
		}
	}

	if *exportBars != "" {
		payload, err := arrowexport.EncodeBars(allBars)
		if err != nil {
			panic(err)
		}
		if err := os.WriteFile(*exportBars, payload, 0o644); err != nil {
			panic(err)
		}
		fmt.Printf("Bars written to %s\n", *exportBars)
	}
}
