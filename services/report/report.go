// Package report produces run artifacts: a manifest tying results to their
// inputs, a KPI summary, and CSV dumps of trades and rejections.
package report

import (
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"structure-backtest/services/engine"
)

// Manifest records provenance for one backtest run.
type Manifest struct {
	RunID         string    `json:"run_id"`
	GeneratedAt   time.Time `json:"generated_at"`
	InputFile     string    `json:"input_file"`
	Symbol        string    `json:"symbol"`
	ConfigHash    string    `json:"config_hash"`
	EngineVersion string    `json:"engine_version"`
	LowerBars     int       `json:"lower_bars"`
	HigherBars    int       `json:"higher_bars"`
}

// NewManifest builds a manifest with a fresh run ID.
func NewManifest(inputFile, symbol, configHash string, lowerBars, higherBars int) Manifest {
	return Manifest{
		RunID:         uuid.NewString(),
		GeneratedAt:   time.Now().UTC(),
		InputFile:     inputFile,
		Symbol:        symbol,
		ConfigHash:    configHash,
		EngineVersion: engine.Version,
		LowerBars:     lowerBars,
		HigherBars:    higherBars,
	}
}

// Summary aggregates trade outcomes for a run.
type Summary struct {
	TotalTrades     int     `json:"total_trades"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	WinRatePct      float64 `json:"win_rate_pct"`
	TotalPnL        float64 `json:"total_pnl"`
	ExpectancyAbs   float64 `json:"expectancy_abs"`
	AvgRMultiple    float64 `json:"avg_r_multiple"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	EquityStart     float64 `json:"equity_start"`
	EquityEnd       float64 `json:"equity_end"`
	TotalRejections int     `json:"total_rejections"`
}

// Summarize computes KPIs over closed trades with an additive equity curve
// starting from the given initial capital.
func Summarize(trades []engine.Trade, rejections []engine.Rejection, initial float64) Summary {
	s := Summary{
		TotalTrades:     len(trades),
		EquityStart:     initial,
		EquityEnd:       initial,
		TotalRejections: len(rejections),
	}

	var (
		sumR        float64
		capital     = initial
		peak        = initial
		maxDrawdown float64
		pnls        []float64
	)

	for _, tr := range trades {
		if tr.PnL > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		s.TotalPnL += tr.PnL
		sumR += tr.RMultiple
		pnls = append(pnls, tr.PnL)

		capital += tr.PnL
		if capital > peak {
			peak = capital
		}
		if peak > 0 {
			drawdown := (peak - capital) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	if s.TotalTrades > 0 {
		s.WinRatePct = float64(s.Wins) / float64(s.TotalTrades) * 100.0
		s.ExpectancyAbs = s.TotalPnL / float64(s.TotalTrades)
		s.AvgRMultiple = sumR / float64(s.TotalTrades)
	}

	if len(pnls) > 1 {
		mean := s.TotalPnL / float64(len(pnls))
		var sumSq float64
		for _, p := range pnls {
			diff := p - mean
			sumSq += diff * diff
		}
		variance := sumSq / float64(len(pnls)-1)
		if variance > 0 {
			s.SharpeRatio = (mean / math.Sqrt(variance)) * math.Sqrt(float64(len(pnls)))
		}
	}

	s.MaxDrawdownPct = maxDrawdown * 100.0
	s.EquityEnd = capital
	return s
}

// Write marshals v as indented JSON to path, creating parent directories.
func Write(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// WriteTradesCSV dumps the trade log to a CSV file.
func WriteTradesCSV(path string, trades []engine.Trade) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{
		"symbol", "side", "model", "entry_timestamp", "entry_price", "stop_price",
		"target_price", "exit_timestamp", "exit_price", "exit_reason", "pnl",
		"r_multiple", "entry_reasons",
	}
	if err := w.Write(headers); err != nil {
		return err
	}

	for _, tr := range trades {
		row := []string{
			tr.Symbol,
			tr.Side.String(),
			tr.Model,
			tr.EntryTime.Format(time.RFC3339),
			formatFloat(tr.EntryPrice),
			formatFloat(tr.StopPrice),
			formatFloat(tr.TargetPrice),
			tr.ExitTime.Format(time.RFC3339),
			formatFloat(tr.ExitPrice),
			tr.ExitReason,
			formatFloat(tr.PnL),
			formatFloat(tr.RMultiple),
			tr.EntryReasons,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteRejectionsCSV dumps the rejection log to a CSV file. An empty log
// writes nothing.
func WriteRejectionsCSV(path string, rejections []engine.Rejection) error {
	if len(rejections) == 0 {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp", "symbol", "hour", "reasons"}); err != nil {
		return err
	}
	for _, rej := range rejections {
		row := []string{
			rej.Timestamp.Format(time.RFC3339),
			rej.Symbol,
			strconv.Itoa(rej.Hour),
			rej.Reasons,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
