package features

import (
	"time"

	"structure-backtest/services/engine"
)

// DefaultSessionTimezone anchors session dates and entry hours to the
// exchange session.
const DefaultSessionTimezone = "America/New_York"

// SessionInfo carries the session-local fields of a single bar.
type SessionInfo struct {
	Hour        int
	Minute      int
	SessionDate string
	IsRTH       bool
}

// SessionFields converts a bar timestamp into session-local context.
// Regular trading hours span 09:30 through 16:00 inclusive.
func SessionFields(ts time.Time, loc *time.Location) SessionInfo {
	local := ts.In(loc)
	mins := local.Hour()*60 + local.Minute()
	return SessionInfo{
		Hour:        local.Hour(),
		Minute:      local.Minute(),
		SessionDate: local.Format("2006-01-02"),
		IsRTH:       mins >= 9*60+30 && mins <= 16*60,
	}
}

// LiquidityLevels holds the intraday and previous-session reference levels
// for one bar.
type LiquidityLevels struct {
	DayHighSoFar float64
	DayLowSoFar  float64
	PrevDayHigh  *float64
	PrevDayLow   *float64
}

// ComputeLiquidity derives running day extremes and previous-day high/low
// per bar. Previous-day levels are nil throughout the first session.
func ComputeLiquidity(bars []engine.Bar, loc *time.Location) []LiquidityLevels {
	out := make([]LiquidityLevels, len(bars))

	var (
		curDate            string
		dayHigh, dayLow    float64
		prevHigh, prevLow  *float64
		closedHi, closedLo float64
		haveClosed         bool
	)

	for i := range bars {
		date := bars[i].Timestamp.In(loc).Format("2006-01-02")
		if date != curDate {
			if curDate != "" {
				closedHi, closedLo = dayHigh, dayLow
				haveClosed = true
			}
			if haveClosed {
				h, l := closedHi, closedLo
				prevHigh, prevLow = &h, &l
			}
			curDate = date
			dayHigh = bars[i].High
			dayLow = bars[i].Low
		} else {
			if bars[i].High > dayHigh {
				dayHigh = bars[i].High
			}
			if bars[i].Low < dayLow {
				dayLow = bars[i].Low
			}
		}

		out[i] = LiquidityLevels{
			DayHighSoFar: dayHigh,
			DayLowSoFar:  dayLow,
			PrevDayHigh:  prevHigh,
			PrevDayLow:   prevLow,
		}
	}
	return out
}
