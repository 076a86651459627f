package engine

import (
	"fmt"
	"math"
	"strings"
)

// defaultStopBuffer substitutes for the ATR-scaled stop buffer while the
// volatility measure is still warming up.
const defaultStopBuffer = 0.01

// SimConfig controls stop/target placement and signal gating for a run.
type SimConfig struct {
	Signal SignalConfig

	// StopBufferATR scales the stop offset beyond the reference low/high.
	StopBufferATR float64
	// RRTarget is the reward:risk multiple for target placement.
	RRTarget float64

	// Guardrails, when set, wires AllowNewTrade into the entry check,
	// feeds OnTradeClose on every close, and resets counters at session
	// date boundaries. When nil the guardrail state machine is left to
	// the caller, matching the reference flow.
	Guardrails *GuardrailConfig
}

// SimResult holds the append-only outputs of a run.
type SimResult struct {
	Trades     []Trade
	Rejections []Rejection
}

// position exists only while the symbol is in-market.
type position struct {
	side    Side
	entry   float64
	stop    float64
	target  float64
	model   string
	reasons []string
	opened  int
}

// Simulate runs the single-position state machine over an ordered feature
// row stream. Per bar the exit check runs first (stop resolved before
// target), then the entry check; a symbol never exits and re-enters on the
// same bar. Processing starts at index 2 so the reference-bar stop
// calculation always has two prior bars.
func Simulate(symbol string, rows []FeatureRow, cfg SimConfig, risk *RiskState) (SimResult, error) {
	if len(rows) < 3 {
		return SimResult{}, fmt.Errorf("simulate %s: need at least 3 bars, got %d", symbol, len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if !rows[i].Bar.Timestamp.After(rows[i-1].Bar.Timestamp) {
			return SimResult{}, fmt.Errorf("simulate %s: bars not strictly increasing at index %d", symbol, i)
		}
	}

	var (
		res        SimResult
		pos        *position
		sessionDay = rows[2].SessionDate
	)

	for i := 2; i < len(rows); i++ {
		row := rows[i]
		bar := row.Bar

		if cfg.Guardrails != nil && risk != nil && row.SessionDate != sessionDay {
			risk.ResetDay()
			sessionDay = row.SessionDate
		}

		exited := false
		if pos != nil {
			hitStop, hitTarget := false, false
			if pos.side == SideLong {
				if bar.Low <= pos.stop {
					hitStop = true
				} else if bar.High >= pos.target {
					hitTarget = true
				}
			} else {
				if bar.High >= pos.stop {
					hitStop = true
				} else if bar.Low <= pos.target {
					hitTarget = true
				}
			}

			if hitStop || hitTarget {
				exitPrice := pos.target
				exitReason := ExitTargetHit
				if hitStop {
					exitPrice = pos.stop
					exitReason = ExitStopHit
				}

				pnl := exitPrice - pos.entry
				if pos.side == SideShort {
					pnl = pos.entry - exitPrice
				}
				r := 0.0
				if riskAmt := math.Abs(pos.entry - pos.stop); riskAmt > 0 {
					r = pnl / riskAmt
				}

				res.Trades = append(res.Trades, Trade{
					Symbol:       symbol,
					Side:         pos.side,
					EntryTime:    rows[pos.opened].Bar.Timestamp,
					ExitTime:     bar.Timestamp,
					EntryPrice:   pos.entry,
					ExitPrice:    exitPrice,
					StopPrice:    pos.stop,
					TargetPrice:  pos.target,
					PnL:          pnl,
					RMultiple:    r,
					Model:        pos.model,
					EntryReasons: strings.Join(pos.reasons, "|"),
					ExitReason:   exitReason,
				})

				if cfg.Guardrails != nil && risk != nil {
					risk.OnTradeClose(pnl, *cfg.Guardrails)
				}
				pos = nil
				exited = true
			}
		}

		if pos != nil || exited {
			continue
		}

		if cfg.Guardrails != nil && risk != nil && !risk.AllowNewTrade(*cfg.Guardrails) {
			res.Rejections = append(res.Rejections, Rejection{
				Timestamp: bar.Timestamp,
				Symbol:    symbol,
				Reasons:   ReasonRiskLocked,
				Hour:      row.Hour,
			})
			continue
		}

		dec := EvaluateSignal(symbol, row, cfg.Signal)
		if !dec.Signal {
			res.Rejections = append(res.Rejections, Rejection{
				Timestamp: bar.Timestamp,
				Symbol:    symbol,
				Reasons:   strings.Join(dec.Reasons, "|"),
				Hour:      row.Hour,
			})
			continue
		}

		prev := rows[i-1].Bar
		buffer := defaultStopBuffer
		if row.State != nil && row.State.ATR != nil {
			buffer = *row.State.ATR * cfg.StopBufferATR
		}

		entry := bar.Close
		var stop float64
		if dec.Side == SideLong {
			stop = math.Min(bar.Low, prev.Low) - buffer
		} else {
			stop = math.Max(bar.High, prev.High) + buffer
		}

		riskAmt := math.Abs(entry - stop)
		var target float64
		if dec.Side == SideLong {
			target = entry + cfg.RRTarget*riskAmt
		} else {
			target = entry - cfg.RRTarget*riskAmt
		}

		pos = &position{
			side:    dec.Side,
			entry:   entry,
			stop:    stop,
			target:  target,
			model:   dec.Model,
			reasons: dec.Reasons,
			opened:  i,
		}
	}

	return res, nil
}
