// Package engine implements the core decision pipeline: higher-timeframe
// structure classification, point-in-time alignment, gated entry signals,
// single-position trade simulation, and intraday risk guardrails.
package engine

import "time"

// Version identifies the engine build recorded in run manifests.
const Version = "1.2.0"

// Bar represents a single OHLCV bar. Bars are immutable once ingested.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Side is the direction of a position or decision.
type Side int

const (
	SideFlat Side = iota
	SideLong
	SideShort
)

func (s Side) String() string {
	switch s {
	case SideLong:
		return "long"
	case SideShort:
		return "short"
	default:
		return "flat"
	}
}

// Bias is the directional state of the external structure.
type Bias int

const (
	BiasNone Bias = iota
	BiasRange
	BiasBull
	BiasBear
)

func (b Bias) String() string {
	switch b {
	case BiasRange:
		return "range"
	case BiasBull:
		return "bull"
	case BiasBear:
		return "bear"
	default:
		return "none"
	}
}

// Tradable reports whether the bias admits directional entries.
func (b Bias) Tradable() bool { return b == BiasBull || b == BiasBear }

// BreakFlag classifies a structural break on a single higher-timeframe bar.
type BreakFlag int

const (
	BreakNone BreakFlag = iota
	BreakBullBOS
	BreakBearBOS
	BreakBullCHOCH
	BreakBearCHOCH
)

func (f BreakFlag) String() string {
	switch f {
	case BreakBullBOS:
		return "bull_bos"
	case BreakBearBOS:
		return "bear_bos"
	case BreakBullCHOCH:
		return "bull_choch"
	case BreakBearCHOCH:
		return "bear_choch"
	default:
		return "none"
	}
}

// StructureState is the point-in-time snapshot produced for each
// higher-timeframe bar. It is fully determined at build time and never
// mutated afterward. Optional prices are nil until established.
type StructureState struct {
	Timestamp          time.Time
	ProtectedSwingHigh *float64
	ProtectedSwingLow  *float64
	Break              BreakFlag
	Bias               Bias
	ATR                *float64
}

// Exit reasons recorded on completed trades.
const (
	ExitStopHit   = "STOP_HIT"
	ExitTargetHit = "TARGET_HIT"
)

// Trade is an immutable record of a completed round trip.
type Trade struct {
	Symbol       string
	Side         Side
	EntryTime    time.Time
	ExitTime     time.Time
	EntryPrice   float64
	ExitPrice    float64
	StopPrice    float64
	TargetPrice  float64
	PnL          float64
	RMultiple    float64
	Model        string
	EntryReasons string
	ExitReason   string
}

// Rejection records a bar on which no position was opened, with the
// joined reason trail. Used for diagnosing signal scarcity.
type Rejection struct {
	Timestamp time.Time
	Symbol    string
	Reasons   string
	Hour      int
}

// FeatureRow is one lower-timeframe bar enriched with its aligned
// structure state and the externally computed model features.
type FeatureRow struct {
	Bar         Bar
	Hour        int
	SessionDate string
	State       *StructureState

	ATRPercentile        *float64
	SweptLevel           *float64
	FailedChochConfirmed bool
	PullbackRespected    bool
	InternalSweepReclaim bool
}
