// Package scanner orchestrates signal scans and backtests across symbols
// with a bounded worker pool. One simulator run per symbol, no shared state
// between them; a failure on one symbol never blocks the rest.
package scanner

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ema-scanner/services/backtest"
	"ema-scanner/services/indicators"
	"ema-scanner/services/market"
	"ema-scanner/services/monitoring"
	"ema-scanner/services/performance"
	"ema-scanner/services/signals"
)

// EngineVersion tags run manifests.
const EngineVersion = "1.0.0"

// SymbolData is one symbol's input: base-timeframe bars plus optional
// higher-timeframe bars for the confirmation condition.
type SymbolData struct {
	Bars    []market.Bar
	HTFBars []market.Bar
}

// Manifest records what produced a result, for reproducibility.
type Manifest struct {
	JobID         string `json:"job_id"`
	SettingsHash  string `json:"settings_hash"`
	WarmupBars    int    `json:"warmup_bars"`
	EngineVersion string `json:"engine_version"`
	CreatedAt     int64  `json:"created_at"`
}

// BacktestResult is the merged outcome of one backtest job.
type BacktestResult struct {
	JobID         string              `json:"job_id"`
	Trades        []backtest.Trade    `json:"trades"`
	Summary       performance.Summary `json:"summary"`
	FailedSymbols []string            `json:"failed_symbols,omitempty"`
	Manifest      Manifest            `json:"manifest"`
	ExecutionTime time.Duration       `json:"execution_time"`
}

// ScanReport is the merged outcome of one live scan job.
type ScanReport struct {
	JobID         string               `json:"job_id"`
	Results       []signals.ScanResult `json:"results"`
	FailedSymbols []string             `json:"failed_symbols,omitempty"`
	ExecutionTime time.Duration        `json:"execution_time"`
}

// Service runs scans and backtests.
type Service struct {
	engine     *signals.Engine
	sim        *backtest.Simulator
	maxWorkers int
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

// New wires an orchestrator. maxWorkers of zero means one worker per CPU.
func New(engine *signals.Engine, sim *backtest.Simulator, maxWorkers int, metrics *monitoring.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}
	return &Service{
		engine:     engine,
		sim:        sim,
		maxWorkers: maxWorkers,
		metrics:    metrics,
		logger:     logger,
	}
}

func (s *Service) workers() int {
	if s.maxWorkers > 0 {
		return s.maxWorkers
	}
	return runtime.NumCPU()
}

// symbolOutcome is one worker's result for one symbol.
type symbolOutcome struct {
	symbol string
	trades []backtest.Trade
	scan   signals.ScanResult
	err    error
}

// runPool fans symbols out to a bounded worker pool and collects every
// outcome. Worker panics are contained and surfaced as per-symbol errors.
func (s *Service) runPool(ctx context.Context, data map[string]SymbolData, process func(symbol string, sd SymbolData) symbolOutcome) []symbolOutcome {
	symbolChan := make(chan string, len(data))
	outcomeChan := make(chan symbolOutcome, len(data))

	var wg sync.WaitGroup
	for i := 0; i < s.workers(); i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for symbol := range symbolChan {
				if ctx.Err() != nil {
					outcomeChan <- symbolOutcome{symbol: symbol, err: ctx.Err()}
					continue
				}
				s.logger.Debug("worker processing symbol",
					zap.Int("worker_id", workerID),
					zap.String("symbol", symbol),
				)
				outcomeChan <- s.safeProcess(symbol, data[symbol], process)
			}
		}(i)
	}

	for symbol := range data {
		symbolChan <- symbol
	}
	close(symbolChan)

	go func() {
		wg.Wait()
		close(outcomeChan)
	}()

	outcomes := make([]symbolOutcome, 0, len(data))
	for o := range outcomeChan {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

func (s *Service) safeProcess(symbol string, sd SymbolData, process func(string, SymbolData) symbolOutcome) (out symbolOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = symbolOutcome{symbol: symbol, err: fmt.Errorf("symbol %s: %v", symbol, r)}
		}
	}()
	return process(symbol, sd)
}

// RunBacktest simulates every symbol concurrently and merges the trade
// ledgers into one result with summary statistics. Per-symbol failures are
// reported in FailedSymbols; the remaining symbols' trades still count.
func (s *Service) RunBacktest(ctx context.Context, data map[string]SymbolData) *BacktestResult {
	start := time.Now()
	jobID := uuid.New().String()
	s.metrics.IncBacktests()

	s.logger.Info("starting backtest job",
		zap.String("job_id", jobID),
		zap.Int("symbols", len(data)),
		zap.Int("workers", s.workers()),
	)

	outcomes := s.runPool(ctx, data, func(symbol string, sd SymbolData) symbolOutcome {
		trades := s.sim.RunSymbol(ctx, symbol, sd.Bars, sd.HTFBars)
		s.metrics.AddBarsProcessed(len(sd.Bars))
		return symbolOutcome{symbol: symbol, trades: trades}
	})

	result := &BacktestResult{
		JobID: jobID,
		Manifest: Manifest{
			JobID:         jobID,
			SettingsHash:  s.engine.Settings().Hash(),
			WarmupBars:    indicators.MinHistory,
			EngineVersion: EngineVersion,
			CreatedAt:     start.UnixMilli(),
		},
	}
	for _, o := range outcomes {
		if o.err != nil {
			s.metrics.IncSymbolFailures()
			s.logger.Error("symbol backtest failed",
				zap.String("job_id", jobID),
				zap.String("symbol", o.symbol),
				zap.Error(o.err),
			)
			result.FailedSymbols = append(result.FailedSymbols, o.symbol)
			continue
		}
		result.Trades = append(result.Trades, o.trades...)
	}

	// The merge order depends on worker scheduling; normalize it so equal
	// inputs always produce equal results.
	sort.SliceStable(result.Trades, func(i, j int) bool {
		if result.Trades[i].Symbol != result.Trades[j].Symbol {
			return result.Trades[i].Symbol < result.Trades[j].Symbol
		}
		return result.Trades[i].EntryTime < result.Trades[j].EntryTime
	})
	sort.Strings(result.FailedSymbols)

	result.Summary = performance.Analyze(result.Trades)
	result.ExecutionTime = time.Since(start)
	s.metrics.AddTrades(len(result.Trades))

	s.logger.Info("backtest job completed",
		zap.String("job_id", jobID),
		zap.Int("trades", len(result.Trades)),
		zap.Int("failed_symbols", len(result.FailedSymbols)),
		zap.Duration("execution_time", result.ExecutionTime),
	)
	return result
}

// RunScan evaluates the latest bar of every symbol concurrently.
func (s *Service) RunScan(ctx context.Context, data map[string]SymbolData) *ScanReport {
	start := time.Now()
	jobID := uuid.New().String()
	s.metrics.IncScans()

	s.logger.Info("starting scan job",
		zap.String("job_id", jobID),
		zap.Int("symbols", len(data)),
		zap.Int("workers", s.workers()),
	)

	outcomes := s.runPool(ctx, data, func(symbol string, sd SymbolData) symbolOutcome {
		return symbolOutcome{
			symbol: symbol,
			scan:   s.engine.GenerateSignals(symbol, sd.Bars, sd.HTFBars),
		}
	})

	report := &ScanReport{JobID: jobID}
	signalCount := 0
	for _, o := range outcomes {
		if o.err != nil {
			s.metrics.IncSymbolFailures()
			s.logger.Error("symbol scan failed",
				zap.String("job_id", jobID),
				zap.String("symbol", o.symbol),
				zap.Error(o.err),
			)
			report.FailedSymbols = append(report.FailedSymbols, o.symbol)
			continue
		}
		report.Results = append(report.Results, o.scan)
		signalCount += len(o.scan.Signals)
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Symbol < report.Results[j].Symbol
	})
	sort.Strings(report.FailedSymbols)

	report.ExecutionTime = time.Since(start)
	s.metrics.AddSignals(signalCount)

	s.logger.Info("scan job completed",
		zap.String("job_id", jobID),
		zap.Int("signals", signalCount),
		zap.Duration("execution_time", report.ExecutionTime),
	)
	return report
}
