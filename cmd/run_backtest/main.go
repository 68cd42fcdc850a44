package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ema-scanner/services/backtest"
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
	chURL := flag.String("ch-url", "http://localhost:18123", "ClickHouse HTTP URL for trade persistence")
	db := flag.String("db", "backtest", "ClickHouse database")
	table := flag.String("table", "data", "ClickHouse table")
	user := flag.String("ch-user", "backtest", "ClickHouse user")
	pass := flag.String("ch-pass", "backtest123", "ClickHouse password")
	symbol := flag.String("symbol", "BTCUSDT", "Trading symbol")
	tfName := flag.String("tf", "5m", "Bar timeframe")
	htfName := flag.String("htf", "15m", "Higher timeframe for confirmation")
	from := flag.String("from", "2020-09-01 00:00:00", "Start UTC (YYYY-MM-DD HH:MM:SS)")
	to := flag.String("to", "2024-10-01 00:00:00", "End UTC (YYYY-MM-DD HH:MM:SS)")
	csvPath := flag.String("csv", "", "Path to local CSV; if set, skip ClickHouse")
	htfCSVPath := flag.String("htf-csv", "", "Path to local higher timeframe CSV")
	outCSV := flag.String("out", "./trades.csv", "Trade export path")
	persist := flag.Bool("persist", false, "Write trades back to ClickHouse over HTTP")

	atrMult := flag.Float64("atr-mult", 2.0, "ATR band multiplier")
	volFilter := flag.Float64("vol-filter", 1.5, "Volatility filter divisor")
	fomoFilter := flag.Float64("fomo-filter", 1.0, "FOMO filter ATR multiple")
	minConf := flag.Float64("min-conf", 0.5, "Minimum signal confidence to enter")
	stopLoss := flag.Float64("sl", 0.05, "Stop loss fraction")
	takeProfit := flag.Float64("tp", 0.10, "Take profit fraction")
	maxHold := flag.Int("max-hold", 5, "Max holding period in days")
	entryDelay := flag.Duration("entry-delay", time.Minute, "Entry delay applied to trade timestamps")
	commission := flag.Float64("commission", 0, "Flat commission per trade")
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
	settings.ATRMultiplier = *atrMult
	settings.VolatilityFilter = *volFilter
	settings.FOMOFilter = *fomoFilter
	settings.HigherTimeframe = htf
	if err := settings.Validate(); err != nil {
		panic(err)
	}

	simCfg := backtest.DefaultConfig()
	simCfg.EntryDelay = *entryDelay
	simCfg.StopLossPercent = *stopLoss
	simCfg.TakeProfitPercent = *takeProfit
	simCfg.MaxHoldDays = *maxHold
	simCfg.Commission = decimal.NewFromFloat(*commission)
	simCfg.MinConfidence = *minConf
	if err := simCfg.Validate(); err != nil {
		panic(err)
	}

	ctx := context.Background()

	var bars, htfBars []market.Bar
	if *csvPath != "" {
		bars, err = market.LoadCSV(*csvPath, *symbol)
		if err != nil {
			panic(err)
		}
		if *htfCSVPath != "" {
			htfBars, err = market.LoadCSV(*htfCSVPath, *symbol)
			if err != nil {
				panic(err)
			}
		}
	} else {
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

		fromMs, toMs := parseUTCMillis(*from), parseUTCMillis(*to)
		bars, err = store.LoadBars(ctx, *symbol, tf, fromMs, toMs)
		if err != nil {
			panic(err)
		}
		// Extra history so the higher timeframe indicators are warm at fromMs.
		htfFrom := fromMs - 52*htf.Duration().Milliseconds()
		htfBars, err = store.LoadBars(ctx, *symbol, htf, htfFrom, toMs)
		if err != nil {
			panic(err)
		}
	}

	bars, report := market.Clean(bars, tf, logger)
	if err := report.CheckSeries(); err != nil {
		panic(err)
	}
	htfBars, _ = market.Clean(htfBars, htf, logger)
	fmt.Printf("Loaded bars: %d (rejected %d, gaps %d, wild jumps %d)\n",
		len(bars), report.Rejected, report.Gaps, report.WildJumps)

	engine, err := signals.NewEngine(settings, logger)
	if err != nil {
		panic(err)
	}
	sim, err := backtest.NewSimulator(simCfg, engine, logger)
	if err != nil {
		panic(err)
	}

	svc := scanner.New(engine, sim, 1, monitoring.NewMetrics(), logger)
	result := svc.RunBacktest(ctx, map[string]scanner.SymbolData{
		*symbol: {Bars: bars, HTFBars: htfBars},
	})

	s := result.Summary
	fmt.Println("=== EMA/ATR Backtest Summary ===")
	fmt.Printf("Job: %s\n", result.JobID)
	fmt.Printf("Period: %s to %s UTC\n", *from, *to)
	fmt.Printf("Trades: %d, WinRate: %.2f%%, TotalReturn: %.2f%%, AvgReturn: %.2f%%\n",
		s.TotalTrades, s.WinRate*100, s.TotalReturn, s.AverageReturn)
	fmt.Printf("MaxDrawdown: %.2f%%, Sharpe: %.3f\n", s.MaxDrawdown, s.SharpeRatio)
	fmt.Printf("Elapsed: %s\n", result.ExecutionTime)

	if err := backtest.ExportTradesCSV(*outCSV, result.Trades); err != nil {
		panic(err)
	}
	fmt.Printf("Trades written to %s\n", *outCSV)

	if *persist {
		w := clickhouse.NewBatchWriter(*chURL, *db, *user, *pass, 1000)
		for _, t := range result.Trades {
			if err := w.AddTrade(result.JobID, t); err != nil {
				panic(err)
			}
		}
		if err := w.Close(); err != nil {
			panic(err)
		}
		fmt.Printf("Persisted %d trades to ClickHouse\n", len(result.Trades))
	}
}
