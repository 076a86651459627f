// Package backtest wires the full pipeline for one symbol: session
// annotation, higher-timeframe aggregation, structure detection,
// point-in-time alignment, feature assembly, and trade simulation.
package backtest

import (
	"fmt"

	"go.uber.org/zap"

	"structure-backtest/services/config"
	"structure-backtest/services/engine"
	"structure-backtest/services/features"
	"structure-backtest/services/loader"
)

// Result bundles everything one run produces, including the intermediate
// series that sinks and exports consume.
type Result struct {
	Symbol        string
	LowerBars     []engine.Bar
	HigherBars    []engine.Bar
	States        []engine.StructureState
	AlignedStates []*engine.StructureState
	Rows          []engine.FeatureRow
	Trades        []engine.Trade
	Rejections    []engine.Rejection
}

// Run executes the pipeline over ascending lower-timeframe bars.
func Run(symbol string, bars []engine.Bar, cfg *config.Config, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars for %s", symbol)
	}

	loc, err := cfg.SessionLocation()
	if err != nil {
		return nil, err
	}
	htf, err := cfg.HigherTimeframe()
	if err != nil {
		return nil, err
	}

	if cfg.Strategy.RTHOnly {
		filtered := bars[:0:0]
		for _, b := range bars {
			if features.SessionFields(b.Timestamp, loc).IsRTH {
				filtered = append(filtered, b)
			}
		}
		log.Info("session filter applied",
			zap.String("symbol", symbol),
			zap.Int("kept", len(filtered)),
			zap.Int("dropped", len(bars)-len(filtered)))
		bars = filtered
		if len(bars) == 0 {
			return nil, fmt.Errorf("no bars for %s inside regular trading hours", symbol)
		}
	}

	higher := loader.Resample(bars, htf)
	if len(higher) == 0 {
		return nil, fmt.Errorf("aggregation produced no higher-timeframe bars for %s", symbol)
	}

	htfATR := features.ATR(higher, cfg.Strategy.ATRPeriod)
	states, err := engine.BuildStructure(higher, htfATR, cfg.StructureParams())
	if err != nil {
		return nil, fmt.Errorf("structure scan: %w", err)
	}

	aligned, err := engine.AlignStates(bars, states)
	if err != nil {
		return nil, fmt.Errorf("state alignment: %w", err)
	}

	lowerATR := features.ATR(bars, cfg.Strategy.ATRPeriod)
	atrPct := features.ExpandingPercentile(lowerATR)
	liquidity := features.ComputeLiquidity(bars, loc)

	rows := make([]engine.FeatureRow, len(bars))
	for i, b := range bars {
		sess := features.SessionFields(b.Timestamp, loc)
		rows[i] = engine.FeatureRow{
			Bar:           b,
			Hour:          sess.Hour,
			SessionDate:   sess.SessionDate,
			State:         aligned[i],
			ATRPercentile: atrPct[i],
			SweptLevel:    liquidity[i].PrevDayLow,

			// The confirmation features come from external detectors
			// in live use. Their reference values keep model A as the
			// only data-driven path while B and C stay structural.
			FailedChochConfirmed: false,
			PullbackRespected:    true,
			InternalSweepReclaim: true,
		}
	}

	var risk *engine.RiskState
	simCfg := cfg.SimConfig()
	if simCfg.Guardrails != nil {
		risk = &engine.RiskState{}
	}
	sim, err := engine.Simulate(symbol, rows, simCfg, risk)
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", symbol, err)
	}

	log.Info("run complete",
		zap.String("symbol", symbol),
		zap.Int("lower_bars", len(bars)),
		zap.Int("higher_bars", len(higher)),
		zap.Int("trades", len(sim.Trades)),
		zap.Int("rejections", len(sim.Rejections)))

	return &Result{
		Symbol:        symbol,
		LowerBars:     bars,
		HigherBars:    higher,
		States:        states,
		AlignedStates: aligned,
		Rows:          rows,
		Trades:        sim.Trades,
		Rejections:    sim.Rejections,
	}, nil
}
