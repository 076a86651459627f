package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"structure-backtest/services/arrowpipeline"
	"structure-backtest/services/backtest"
	"structure-backtest/services/clickhouse"
	"structure-backtest/services/config"
	"structure-backtest/services/loader"
	"structure-backtest/services/report"
)

const defaultInitialEquity = 10000.0

func main() {
	inputPath := flag.String("input", "", "Path to OHLCV CSV")
	symbol := flag.String("symbol", "", "Instrument symbol, e.g. MNQ")
	configPath := flag.String("config", "config.yaml", "Path to YAML config")
	outDir := flag.String("out", "out", "Output directory for run artifacts")
	initialEquity := flag.Float64("initial-equity", defaultInitialEquity, "Starting equity for the KPI curve")
	flag.Parse()

	if strings.TrimSpace(*inputPath) == "" {
		fmt.Fprintln(os.Stderr, "error: --input is required")
		os.Exit(1)
	}
	if strings.TrimSpace(*symbol) == "" {
		fmt.Fprintln(os.Stderr, "error: --symbol is required")
		os.Exit(1)
	}
	if *initialEquity <= 0 {
		fmt.Fprintln(os.Stderr, "error: --initial-equity must be positive")
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error creating logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	bars, err := loader.LoadCSV(*inputPath)
	if err != nil {
		logger.Fatal("bar load failed", zap.Error(err))
	}
	logger.Info("bars loaded", zap.String("input", *inputPath), zap.Int("count", len(bars)))

	sym := strings.ToUpper(strings.TrimSpace(*symbol))
	result, err := backtest.Run(sym, bars, cfg, logger)
	if err != nil {
		logger.Fatal("run failed", zap.Error(err))
	}

	manifest := report.NewManifest(*inputPath, sym, cfg.Hash(), len(result.LowerBars), len(result.HigherBars))
	summary := report.Summarize(result.Trades, result.Rejections, *initialEquity)

	if err := report.Write(filepath.Join(*outDir, "manifest.json"), manifest); err != nil {
		logger.Fatal("manifest write failed", zap.Error(err))
	}
	if err := report.Write(filepath.Join(*outDir, "summary.json"), summary); err != nil {
		logger.Fatal("summary write failed", zap.Error(err))
	}
	if err := report.WriteTradesCSV(filepath.Join(*outDir, "trades.csv"), result.Trades); err != nil {
		logger.Fatal("trades write failed", zap.Error(err))
	}
	if err := report.WriteRejectionsCSV(filepath.Join(*outDir, "rejections.csv"), result.Rejections); err != nil {
		logger.Fatal("rejections write failed", zap.Error(err))
	}

	if cfg.Arrow.Enabled {
		pipe := arrowpipeline.NewPipeline(logger)
		if err := pipe.ExportFile(cfg.Arrow.OutFile, sym, result.LowerBars, result.AlignedStates); err != nil {
			logger.Fatal("arrow export failed", zap.Error(err))
		}
	}

	if cfg.ClickHouse.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sink, err := clickhouse.Open(ctx, clickhouse.Options{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		}, logger)
		if err != nil {
			logger.Fatal("clickhouse connect failed", zap.Error(err))
		}
		defer sink.Close()

		if err := sink.EnsureSchema(ctx); err != nil {
			logger.Fatal("clickhouse schema failed", zap.Error(err))
		}
		if err := sink.InsertTrades(ctx, manifest.RunID, result.Trades); err != nil {
			logger.Fatal("clickhouse trades insert failed", zap.Error(err))
		}
		if err := sink.InsertRejections(ctx, manifest.RunID, result.Rejections); err != nil {
			logger.Fatal("clickhouse rejections insert failed", zap.Error(err))
		}
	}

	logger.Info("backtest finished",
		zap.String("run_id", manifest.RunID),
		zap.Int("trades", summary.TotalTrades),
		zap.Float64("win_rate_pct", summary.WinRatePct),
		zap.Float64("total_pnl", summary.TotalPnL),
		zap.Float64("avg_r", summary.AvgRMultiple))
}
