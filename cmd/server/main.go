// Package main serves backtests over HTTP so parameter sweeps can run
// without shipping CSV files to the box.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"structure-backtest/services/backtest"
	"structure-backtest/services/config"
	"structure-backtest/services/engine"
	"structure-backtest/services/report"
)

// BacktestService exposes the pipeline behind a REST surface.
type BacktestService struct {
	config *config.Config
	logger *zap.Logger
}

type barPayload struct {
	Timestamp time.Time `json:"timestamp" binding:"required"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

type backtestRequest struct {
	Symbol        string       `json:"symbol" binding:"required"`
	Bars          []barPayload `json:"bars" binding:"required"`
	InitialEquity float64      `json:"initial_equity"`

	// Optional per-request overrides.
	RRTarget      *float64 `json:"rr_target"`
	StopBufferATR *float64 `json:"stop_buffer_atr"`
	LongOnly      *bool    `json:"long_only"`
	RTHOnly       *bool    `json:"rth_only"`
}

type backtestResponse struct {
	JobID      string             `json:"job_id"`
	Symbol     string             `json:"symbol"`
	Summary    report.Summary     `json:"summary"`
	Trades     []engine.Trade     `json:"trades"`
	Rejections []engine.Rejection `json:"rejections"`
	ConfigHash string             `json:"config_hash"`
}

func (s *BacktestService) setupHTTPRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.POST("/backtest", s.handleBacktestRequest)
		api.GET("/health", s.handleHealthCheck)
	}
}

func (s *BacktestService) handleBacktestRequest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Bars) < 3 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "need at least 3 bars"})
		return
	}

	jobID := uuid.New().String()
	startTime := time.Now()
	s.logger.Info("backtest request",
		zap.String("job_id", jobID),
		zap.String("symbol", req.Symbol),
		zap.Int("bars", len(req.Bars)))

	bars := make([]engine.Bar, len(req.Bars))
	for i, b := range req.Bars {
		bars[i] = engine.Bar{
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })

	cfg := s.overriddenConfig(req)
	result, err := backtest.Run(req.Symbol, bars, cfg, s.logger)
	if err != nil {
		s.logger.Error("backtest request failed", zap.String("job_id", jobID), zap.Error(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	initial := req.InitialEquity
	if initial <= 0 {
		initial = 10000
	}
	summary := report.Summarize(result.Trades, result.Rejections, initial)

	s.logger.Info("backtest completed",
		zap.String("job_id", jobID),
		zap.Duration("execution_time", time.Since(startTime)),
		zap.Int("trades", summary.TotalTrades))

	c.JSON(http.StatusOK, backtestResponse{
		JobID:      jobID,
		Symbol:     result.Symbol,
		Summary:    summary,
		Trades:     result.Trades,
		Rejections: result.Rejections,
		ConfigHash: cfg.Hash(),
	})
}

// overriddenConfig clones the base config and applies request overrides so
// concurrent requests never mutate shared state.
func (s *BacktestService) overriddenConfig(req backtestRequest) *config.Config {
	cfg := *s.config
	if req.RRTarget != nil && *req.RRTarget > 0 {
		cfg.Strategy.RRTarget = *req.RRTarget
	}
	if req.StopBufferATR != nil && *req.StopBufferATR >= 0 {
		cfg.Strategy.StopBufferATR = *req.StopBufferATR
	}
	if req.LongOnly != nil {
		cfg.Strategy.LongOnly = *req.LongOnly
	}
	if req.RTHOnly != nil {
		cfg.Strategy.RTHOnly = *req.RTHOnly
	}
	return &cfg
}

func (s *BacktestService) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   engine.Version,
	})
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting backtest service",
		zap.String("version", engine.Version),
		zap.String("addr", cfg.Server.Addr))

	service := &BacktestService{config: cfg, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	service.setupHTTPRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}
	logger.Info("Server stopped")
}
