package engine

// GuardrailConfig is the read-only intraday risk policy.
type GuardrailConfig struct {
	MaxTradesPerDay      int
	MaxDailyLossAbs      float64
	MaxConsecutiveLosses int
}

// RiskState tracks intraday counters and the lock flag. It is mutated
// exactly once per trade close via OnTradeClose and reset only by an
// explicit ResetDay call.
type RiskState struct {
	TradesToday       int
	DailyPnL          float64
	ConsecutiveLosses int
	Locked            bool
}

// AllowNewTrade reports whether a new entry is permitted. It is read-only:
// a breached threshold observed here does not set the lock.
func (s *RiskState) AllowNewTrade(cfg GuardrailConfig) bool {
	if s.Locked {
		return false
	}
	if s.TradesToday >= cfg.MaxTradesPerDay {
		return false
	}
	if s.DailyPnL <= -abs(cfg.MaxDailyLossAbs) {
		return false
	}
	if s.ConsecutiveLosses >= cfg.MaxConsecutiveLosses {
		return false
	}
	return true
}

// OnTradeClose applies a completed trade's P&L. A non-positive P&L counts
// as a loss. Once any threshold is breached the lock sticks until ResetDay.
func (s *RiskState) OnTradeClose(pnl float64, cfg GuardrailConfig) {
	s.TradesToday++
	s.DailyPnL += pnl
	if pnl <= 0 {
		s.ConsecutiveLosses++
	} else {
		s.ConsecutiveLosses = 0
	}

	if s.TradesToday >= cfg.MaxTradesPerDay ||
		s.DailyPnL <= -abs(cfg.MaxDailyLossAbs) ||
		s.ConsecutiveLosses >= cfg.MaxConsecutiveLosses {
		s.Locked = true
	}
}

// ResetDay zeroes all counters and unlocks.
func (s *RiskState) ResetDay() {
	s.TradesToday = 0
	s.DailyPnL = 0
	s.ConsecutiveLosses = 0
	s.Locked = false
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
