// Package main runs the EMA/ATR scanner service: signal scans and backtests
// over an HTTP API, with ClickHouse bar storage and an optional Redis scan
// cache.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"ema-scanner/services/arrowexport"
	"ema-scanner/services/backtest"
	"ema-scanner/services/cache"
	"ema-scanner/services/clickhouse"
	"ema-scanner/services/config"
	"ema-scanner/services/market"
	"ema-scanner/services/monitoring"
	"ema-scanner/services/scanner"
	"ema-scanner/services/signals"
)

// scanRequest and backtestRequest are the JSON bodies of the two POST
// endpoints. Times are Unix milliseconds; Settings and Simulation fall back
// to defaults when omitted.
type scanRequest struct {
	Symbols      []string          `json:"symbols" binding:"required"`
	Timeframe    string            `json:"timeframe" binding:"required"`
	StartTime    int64             `json:"start_time" binding:"required"`
	EndTime      int64             `json:"end_time" binding:"required"`
	Settings     *signals.Settings `json:"settings"`
	HTFTimeframe string            `json:"htf_timeframe"`
}

type simulationRequest struct {
	EntryDelayMinutes int     `json:"entry_delay_minutes"`
	StopLossPercent   float64 `json:"stop_loss_percent"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
	MaxHoldDays       int     `json:"max_hold_days"`
	Commission        float64 `json:"commission"`
	MinConfidence     float64 `json:"min_confidence"`
}

type backtestRequest struct {
	scanRequest
	Simulation *simulationRequest `json:"simulation"`
}

// scannerService is the HTTP layer over the orchestrator.
type scannerService struct {
	cfg     *config.Config
	store   *clickhouse.Store
	cache   *cache.Cache
	metrics *monitoring.Metrics
	logger  *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*scanner.BacktestResult
}

func newScannerService(cfg *config.Config, logger *zap.Logger) (*scannerService, error) {
	store, err := clickhouse.NewStore(clickhouse.Config{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Table:    cfg.ClickHouse.Table,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ClickHouse store: %w", err)
	}

	svc := &scannerService{
		cfg:     cfg,
		store:   store,
		metrics: monitoring.NewMetrics(),
		logger:  logger,
		jobs:    make(map[string]*scanner.BacktestResult),
	}

	if cfg.Redis.Enabled {
		c := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			logger.Warn("redis unavailable, running without scan cache", zap.Error(err))
		} else {
			svc.cache = c
		}
	}
	return svc, nil
}

// resolveSettings validates request overrides or falls back to defaults.
func resolveSettings(req *signals.Settings) (signals.Settings, error) {
	if req == nil {
		return signals.Default(), nil
	}
	if err := req.Validate(); err != nil {
		return signals.Settings{}, err
	}
	return *req, nil
}

func resolveSimulation(req *simulationRequest) (backtest.Config, error) {
	cfg := backtest.DefaultConfig()
	if req == nil {
		return cfg, nil
	}
	cfg.EntryDelay = time.Duration(req.EntryDelayMinutes) * time.Minute
	cfg.StopLossPercent = req.StopLossPercent
	cfg.TakeProfitPercent = req.TakeProfitPercent
	cfg.MaxHoldDays = req.MaxHoldDays
	cfg.Commission = decimal.NewFromFloat(req.Commission)
	if req.MinConfidence > 0 {
		cfg.MinConfidence = req.MinConfidence
	}
	return cfg, cfg.Validate()
}

// loadSymbolData pulls base and higher-timeframe bars for every symbol. The
// HTF window is extended backwards so its indicators have warm-up history.
func (s *scannerService) loadSymbolData(ctx context.Context, req scanRequest, settings signals.Settings) (map[string]scanner.SymbolData, error) {
	tf, err := market.ParseTimeframe(req.Timeframe)
	if err != nil {
		return nil, err
	}
	htfName := req.HTFTimeframe
	if htfName == "" {
		htfName = string(settings.HigherTimeframe)
	}
	htf, err := market.ParseTimeframe(htfName)
	if err != nil {
		return nil, err
	}

	data := make(map[string]scanner.SymbolData, len(req.Symbols))
	for _, symbol := range req.Symbols {
		bars, err := s.store.LoadBars(ctx, symbol, tf, req.StartTime, req.EndTime)
		if err != nil {
			return nil, fmt.Errorf("load %s bars: %w", symbol, err)
		}
		bars, report := market.Clean(bars, tf, s.logger)
		if err := report.CheckSeries(); err != nil {
			s.logger.Warn("bar series rejected",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			continue
		}

		htfFrom := req.StartTime - int64(52)*htf.Duration().Milliseconds()
		htfBars, err := s.store.LoadBars(ctx, symbol, htf, htfFrom, req.EndTime)
		if err != nil {
			s.logger.Warn("higher timeframe bars unavailable",
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			htfBars = nil
		} else {
			htfBars, _ = market.Clean(htfBars, htf, s.logger)
		}

		data[symbol] = scanner.SymbolData{Bars: bars, HTFBars: htfBars}
	}
	return data, nil
}

func (s *scannerService) handleScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings, err := resolveSettings(req.Settings)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	engine, err := signals.NewEngine(settings, s.logger)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	settingsHash := settings.Hash()

	// Serve symbols with a fresh cached scan, run the rest.
	cached := make([]signals.ScanResult, 0, len(req.Symbols))
	misses := make([]string, 0, len(req.Symbols))
	for _, symbol := range req.Symbols {
		var result signals.ScanResult
		if s.cache != nil {
			hit, err := s.cache.Get(ctx, cache.ScanKey(symbol, settingsHash), &result)
			if err != nil {
				s.logger.Warn("cache read failed", zap.String("symbol", symbol), zap.Error(err))
			} else if hit {
				cached = append(cached, result)
				continue
			}
		}
		misses = append(misses, symbol)
	}

	var report *scanner.ScanReport
	if len(misses) > 0 {
		missReq := req
		missReq.Symbols = misses
		data, err := s.loadSymbolData(ctx, missReq, settings)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		svc := scanner.New(engine, nil, s.cfg.Engine.MaxWorkers, s.metrics, s.logger)
		report = svc.RunScan(ctx, data)
		if s.cache != nil {
			for _, result := range report.Results {
				if err := s.cache.Set(ctx, cache.ScanKey(result.Symbol, settingsHash), result); err != nil {
					s.logger.Warn("cache write failed", zap.String("symbol", result.Symbol), zap.Error(err))
				}
			}
		}
	} else {
		report = &scanner.ScanReport{JobID: uuid.NewString()}
	}
	report.Results = append(report.Results, cached...)

	var allSignals []signals.Signal
	for _, r := range report.Results {
		allSignals = append(allSignals, r.Signals...)
	}
	if err := s.store.InsertSignals(ctx, report.JobID, allSignals); err != nil {
		s.logger.Error("persisting signals failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, report)
}

func (s *scannerService) handleBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings, err := resolveSettings(req.Settings)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	simCfg, err := resolveSimulation(req.Simulation)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	engine, err := signals.NewEngine(settings, s.logger)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sim, err := backtest.NewSimulator(simCfg, engine, s.logger)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	data, err := s.loadSymbolData(ctx, req.scanRequest, settings)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	svc := scanner.New(engine, sim, s.cfg.Engine.MaxWorkers, s.metrics, s.logger)
	result := svc.RunBacktest(ctx, data)

	if err := s.store.InsertTrades(ctx, result.JobID, result.Trades); err != nil {
		s.logger.Error("persisting trades failed",
			zap.String("job_id", result.JobID),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	s.jobs[result.JobID] = result
	s.mu.Unlock()

	c.JSON(http.StatusOK, result)
}

func (s *scannerService) handleGetBacktest(c *gin.Context) {
	s.mu.RLock()
	result, ok := s.jobs[c.Param("job_id")]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *scannerService) handleExportBacktest(c *gin.Context) {
	s.mu.RLock()
	result, ok := s.jobs[c.Param("job_id")]
	s.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown job"})
		return
	}
	payload, err := arrowexport.EncodeTrades(result.Trades)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", payload)
}

func (s *scannerService) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   scanner.EngineVersion,
	})
}

func (s *scannerService) handleMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain")
	c.String(http.StatusOK, s.metrics.GetMetrics())
}

func (s *scannerService) setupRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/scan", s.handleScan)
		api.POST("/backtest", s.handleBacktest)
		api.GET("/backtest/:job_id", s.handleGetBacktest)
		api.GET("/backtest/:job_id/export", s.handleExportBacktest)
		api.GET("/health", s.handleHealthCheck)
		api.GET("/metrics", s.handleMetrics)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting scanner service",
		zap.String("version", scanner.EngineVersion),
		zap.String("environment", cfg.Environment),
	)

	service, err := newScannerService(cfg, logger)
	if err != nil {
		logger.Fatal("failed to create scanner service", zap.Error(err))
	}

	schemaCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := service.store.EnsureResultsSchema(schemaCtx); err != nil {
		logger.Warn("results schema not ready", zap.Error(err))
	}
	cancel()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	service.setupRoutes(router)

	go func() {
		logger.Info("starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := router.Run(fmt.Sprintf(":%d", cfg.Server.HTTPPort)); err != nil {
			logger.Fatal("failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if service.cache != nil {
		service.cache.Close()
	}
	service.store.Close()
	logger.Info("stopped")
}
