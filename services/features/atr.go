// Package features computes the derived bar features consumed by the
// decision pipeline: true range and ATR, ATR regime percentiles, and
// session/liquidity fields.
package features

import (
	"math"

	"structure-backtest/services/engine"
)

// DefaultATRPeriod matches the 14-bar simple ATR used throughout the system.
const DefaultATRPeriod = 14

// TrueRange returns the per-bar true range. The first bar has no previous
// close, so its true range is the plain high-low span.
func TrueRange(bars []engine.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i := range bars {
		hl := bars[i].High - bars[i].Low
		if i == 0 {
			tr[i] = hl
			continue
		}
		prevClose := bars[i-1].Close
		tr[i] = math.Max(hl, math.Max(math.Abs(bars[i].High-prevClose), math.Abs(bars[i].Low-prevClose)))
	}
	return tr
}

// ATR returns the simple moving average of true range. Entries are nil
// until a full period of bars has accumulated.
func ATR(bars []engine.Bar, period int) []*float64 {
	out := make([]*float64, len(bars))
	if period <= 0 || len(bars) < period {
		return out
	}
	tr := TrueRange(bars)

	var sum float64
	for i := range tr {
		sum += tr[i]
		if i >= period {
			sum -= tr[i-period]
		}
		if i >= period-1 {
			v := sum / float64(period)
			out[i] = &v
		}
	}
	return out
}

// ExpandingPercentile ranks each defined value against all defined values
// seen so far, as a percentage in [0, 100]. The window only ever grows
// backward in time, so the ranking is point-in-time correct.
func ExpandingPercentile(values []*float64) []*float64 {
	out := make([]*float64, len(values))
	seen := make([]float64, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		seen = append(seen, *v)
		atOrBelow := 0
		for _, s := range seen {
			if s <= *v {
				atOrBelow++
			}
		}
		pct := 100 * float64(atOrBelow) / float64(len(seen))
		out[i] = &pct
	}
	return out
}
