package engine

import "fmt"

// StructureParams controls break qualification on the higher timeframe.
type StructureParams struct {
	// DisplacementATRMult is the minimum close-beyond-level excursion,
	// expressed in ATR multiples, for a break to qualify.
	DisplacementATRMult float64
	// MinBreakCloseBufferATR is the close buffer beyond the pivot level,
	// expressed in ATR multiples.
	MinBreakCloseBufferATR float64
}

// DisplacementPass reports whether a move clears the volatility-normalized
// displacement filter. An undefined or non-positive ATR always fails.
func DisplacementPass(moveSize float64, atr *float64, thresholdMult float64) bool {
	if atr == nil || *atr <= 0 {
		return false
	}
	return moveSize >= thresholdMult**atr
}

// structureScan is the accumulator threaded through the bar sequence.
// Only the latest pivot on each side is needed to evaluate the next break.
type structureScan struct {
	lastPivotHigh int
	lastPivotLow  int
	protectedHigh *float64
	protectedLow  *float64
	bias          Bias
}

// BuildStructure scans ordered higher-timeframe bars and produces one
// StructureState per bar, in order. atrs must be parallel to bars and may
// hold nil entries during ATR warm-up.
func BuildStructure(bars []Bar, atrs []*float64, p StructureParams) ([]StructureState, error) {
	if len(atrs) != len(bars) {
		return nil, fmt.Errorf("structure: %d bars but %d atr values", len(bars), len(atrs))
	}
	if err := checkChronological(bars); err != nil {
		return nil, fmt.Errorf("structure: %w", err)
	}

	scan := structureScan{lastPivotHigh: -1, lastPivotLow: -1, bias: BiasNone}
	states := make([]StructureState, len(bars))

	for i := range bars {
		if isPivotHigh(bars, i) {
			scan.lastPivotHigh = i
		}
		if isPivotLow(bars, i) {
			scan.lastPivotLow = i
		}

		closeI := bars[i].Close
		atrI := atrs[i]
		flag := BreakNone

		// Bull break of the opposing pivot high. A qualifying bull break
		// commits for this bar; the bear side is then not evaluated.
		broke := false
		if scan.lastPivotHigh >= 0 && atrI != nil {
			level := bars[scan.lastPivotHigh].High
			buffer := *atrI * p.MinBreakCloseBufferATR
			move := closeI - level
			if closeI > level+buffer && DisplacementPass(move, atrI, p.DisplacementATRMult) {
				if scan.lastPivotLow >= 0 {
					low := bars[scan.lastPivotLow].Low
					scan.protectedLow = &low
				}
				if scan.bias == BiasBear {
					flag = BreakBullCHOCH
				} else {
					flag = BreakBullBOS
				}
				scan.bias = BiasBull
				broke = true
			}
		}

		if !broke && scan.lastPivotLow >= 0 && atrI != nil {
			level := bars[scan.lastPivotLow].Low
			buffer := *atrI * p.MinBreakCloseBufferATR
			move := level - closeI
			if closeI < level-buffer && DisplacementPass(move, atrI, p.DisplacementATRMult) {
				if scan.lastPivotHigh >= 0 {
					high := bars[scan.lastPivotHigh].High
					scan.protectedHigh = &high
				}
				if scan.bias == BiasBull {
					flag = BreakBearCHOCH
				} else {
					flag = BreakBearBOS
				}
				scan.bias = BiasBear
			}
		}

		bias := scan.bias
		if scan.protectedHigh == nil && scan.protectedLow == nil {
			bias = BiasNone
		}

		states[i] = StructureState{
			Timestamp:          bars[i].Timestamp,
			ProtectedSwingHigh: scan.protectedHigh,
			ProtectedSwingLow:  scan.protectedLow,
			Break:              flag,
			Bias:               bias,
			ATR:                atrI,
		}
	}

	return states, nil
}

// isPivotHigh reports a 3-bar local high. Bars at the series edges cannot
// be classified.
func isPivotHigh(bars []Bar, i int) bool {
	if i < 1 || i >= len(bars)-1 {
		return false
	}
	return bars[i].High > bars[i-1].High && bars[i].High > bars[i+1].High
}

func isPivotLow(bars []Bar, i int) bool {
	if i < 1 || i >= len(bars)-1 {
		return false
	}
	return bars[i].Low < bars[i-1].Low && bars[i].Low < bars[i+1].Low
}

func checkChronological(bars []Bar) error {
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			return fmt.Errorf("bars not strictly increasing at index %d (%s then %s)",
				i, bars[i-1].Timestamp, bars[i].Timestamp)
		}
	}
	return nil
}
