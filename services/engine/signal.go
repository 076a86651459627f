package engine

// Reason codes carried on every decision. The vocabulary is fixed for
// compatibility with downstream consumers.
const (
	ReasonSymbolBlocked    = "SYMBOL_BLOCKED"
	ReasonHourBlocked      = "HOUR_BLOCKED"
	ReasonBiasNone         = "BIAS_NONE"
	ReasonATRRegimeBlocked = "ATR_REGIME_BLOCKED"
	ReasonShortDisabled    = "SHORT_DISABLED"
	ReasonModelA           = "MODEL_A_SWEEP_RECLAIM"
	ReasonModelB           = "MODEL_B_FAILED_CHOCH"
	ReasonModelC           = "MODEL_C_CONT_PULLBACK"
	ReasonNoModelMatch     = "NO_MODEL_MATCH"

	// ReasonRiskLocked is emitted by the simulator only when guardrail
	// enforcement is wired into the entry check.
	ReasonRiskLocked = "RISK_LOCKED"
)

// SignalConfig gates entry decisions. Empty allowlists mean no restriction.
type SignalConfig struct {
	AllowedSymbols map[string]bool
	AllowedHours   map[int]bool

	EnableModelA bool
	EnableModelB bool
	EnableModelC bool

	LongOnly bool

	UseATRRegimeFilter bool
	ATRPctMin          float64
	ATRPctMax          float64

	// ReclaimBufferATR widens the model-A reclaim comparison by
	// ATR multiples. Zero means a raw close-versus-level test.
	ReclaimBufferATR float64
}

// SignalDecision is the outcome of evaluating one lower-timeframe bar.
// Reasons is never empty: it holds either the single blocking gate code,
// the matched model code, or NO_MODEL_MATCH.
type SignalDecision struct {
	Signal  bool
	Side    Side
	Model   string
	Reasons []string
}

func blocked(reason string) SignalDecision {
	return SignalDecision{Reasons: []string{reason}}
}

// EvaluateSignal runs the gate chain and entry models for a single bar.
// Gates run in fixed order and the first failing gate short-circuits.
// Models are tried in priority order A, B, C; the first pass wins.
func EvaluateSignal(symbol string, row FeatureRow, cfg SignalConfig) SignalDecision {
	if len(cfg.AllowedSymbols) > 0 && !cfg.AllowedSymbols[symbol] {
		return blocked(ReasonSymbolBlocked)
	}
	if len(cfg.AllowedHours) > 0 && !cfg.AllowedHours[row.Hour] {
		return blocked(ReasonHourBlocked)
	}

	if row.State == nil || !row.State.Bias.Tradable() {
		return blocked(ReasonBiasNone)
	}
	side := SideLong
	if row.State.Bias == BiasBear {
		side = SideShort
	}

	if cfg.UseATRRegimeFilter {
		pct := row.ATRPercentile
		if pct == nil || *pct < cfg.ATRPctMin || *pct > cfg.ATRPctMax {
			return blocked(ReasonATRRegimeBlocked)
		}
	}

	if cfg.LongOnly && side == SideShort {
		return blocked(ReasonShortDisabled)
	}

	if cfg.EnableModelA && modelASweepReclaim(row, side, cfg.ReclaimBufferATR) {
		return SignalDecision{Signal: true, Side: side, Model: "A", Reasons: []string{ReasonModelA}}
	}
	if cfg.EnableModelB && row.FailedChochConfirmed {
		return SignalDecision{Signal: true, Side: side, Model: "B", Reasons: []string{ReasonModelB}}
	}
	if cfg.EnableModelC && row.PullbackRespected && row.InternalSweepReclaim {
		return SignalDecision{Signal: true, Side: side, Model: "C", Reasons: []string{ReasonModelC}}
	}

	return blocked(ReasonNoModelMatch)
}

// modelASweepReclaim tests whether the bar closed back through the swept
// level in the trade direction.
func modelASweepReclaim(row FeatureRow, side Side, reclaimBufferATR float64) bool {
	if row.SweptLevel == nil {
		return false
	}
	buffer := 0.0
	if row.State.ATR != nil {
		buffer = *row.State.ATR * reclaimBufferATR
	}
	if side == SideLong {
		return row.Bar.Close > *row.SweptLevel+buffer
	}
	return row.Bar.Close < *row.SweptLevel-buffer
}
