package engine

import (
	"testing"
	"time"
)

func htfBars(ohlc [][4]float64) []Bar {
	start := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	bars := make([]Bar, len(ohlc))
	for i, v := range ohlc {
		bars[i] = Bar{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      v[0],
			High:      v[1],
			Low:       v[2],
			Close:     v[3],
		}
	}
	return bars
}

func constATR(n int, v float64) []*float64 {
	out := make([]*float64, n)
	for i := range out {
		val := v
		out[i] = &val
	}
	return out
}

func TestDisplacementPass(t *testing.T) {
	atr := 1.0
	if !DisplacementPass(0.5, &atr, 0.2) {
		t.Fatal("expected 0.5 move to clear 0.2 ATR threshold")
	}
	if DisplacementPass(0.1, &atr, 0.2) {
		t.Fatal("expected 0.1 move to fail 0.2 ATR threshold")
	}
	if DisplacementPass(5.0, nil, 0.2) {
		t.Fatal("nil ATR must fail")
	}
	zero := 0.0
	if DisplacementPass(5.0, &zero, 0.2) {
		t.Fatal("non-positive ATR must fail")
	}
}

func TestBuildStructureBullBOSThenBearCHOCH(t *testing.T) {
	bars := htfBars([][4]float64{
		{100.0, 100.5, 99.5, 100.0},
		{100.2, 101.0, 100.0, 100.5}, // pivot high 101.0
		{100.4, 100.6, 99.0, 100.0},  // pivot low 99.0
		{100.2, 102.0, 99.5, 101.5},  // closes 0.5 beyond the pivot high
		{101.3, 102.5, 100.5, 101.0}, // pivot high 102.5
		{100.9, 101.2, 100.0, 100.4}, // pivot low 100.0
		{100.4, 100.8, 100.3, 100.5},
		{100.4, 100.6, 99.3, 99.4}, // closes 0.6 below the bull-leg pivot low
	})
	p := StructureParams{DisplacementATRMult: 0.2, MinBreakCloseBufferATR: 0.05}

	states, err := BuildStructure(bars, constATR(len(bars), 1.0), p)
	if err != nil {
		t.Fatal(err)
	}

	if states[2].Bias != BiasNone || states[2].Break != BreakNone {
		t.Fatalf("expected no structure before the first break, got %v/%v", states[2].Bias, states[2].Break)
	}

	if states[3].Break != BreakBullBOS {
		t.Fatalf("expected bull BOS at bar 3, got %v", states[3].Break)
	}
	if states[3].Bias != BiasBull {
		t.Fatalf("expected bull bias after BOS, got %v", states[3].Bias)
	}
	if states[3].ProtectedSwingLow == nil || *states[3].ProtectedSwingLow != 99.0 {
		t.Fatalf("expected protected swing low 99.0, got %v", states[3].ProtectedSwingLow)
	}

	if states[7].Break != BreakBearCHOCH {
		t.Fatalf("expected bear CHOCH at bar 7, got %v", states[7].Break)
	}
	if states[7].Bias != BiasBear {
		t.Fatalf("expected bear bias after CHOCH, got %v", states[7].Bias)
	}
	if states[7].ProtectedSwingHigh == nil || *states[7].ProtectedSwingHigh != 102.5 {
		t.Fatalf("expected protected swing high 102.5, got %v", states[7].ProtectedSwingHigh)
	}

	// Bias persists between breaks.
	if states[5].Bias != BiasBull {
		t.Fatalf("expected bull bias to persist at bar 5, got %v", states[5].Bias)
	}
}

func TestBuildStructureDisplacementFilterBlocksBreak(t *testing.T) {
	bars := htfBars([][4]float64{
		{100.0, 100.5, 99.5, 100.0},
		{100.2, 101.0, 100.0, 100.5},
		{100.4, 100.6, 99.0, 100.0},
		{100.2, 102.0, 99.5, 101.5},
	})
	p := StructureParams{DisplacementATRMult: 1.0, MinBreakCloseBufferATR: 0.05}

	states, err := BuildStructure(bars, constATR(len(bars), 1.0), p)
	if err != nil {
		t.Fatal(err)
	}
	for i, st := range states {
		if st.Break != BreakNone || st.Bias != BiasNone {
			t.Fatalf("bar %d: expected no break under strict displacement, got %v/%v", i, st.Break, st.Bias)
		}
	}
}

func TestBuildStructureNilATRNeverBreaks(t *testing.T) {
	bars := htfBars([][4]float64{
		{100.0, 100.5, 99.5, 100.0},
		{100.2, 101.0, 100.0, 100.5},
		{100.4, 100.6, 99.0, 100.0},
		{100.2, 103.0, 99.5, 102.5},
	})
	states, err := BuildStructure(bars, make([]*float64, len(bars)), StructureParams{DisplacementATRMult: 0.2})
	if err != nil {
		t.Fatal(err)
	}
	for i, st := range states {
		if st.Break != BreakNone {
			t.Fatalf("bar %d: break fired with undefined ATR", i)
		}
	}
}

func TestBuildStructureSimultaneousBreakCommitsBullOnly(t *testing.T) {
	// The pivot low (100.7) sits above the pivot high (100.0), so one close
	// in between qualifies on both sides at once. ATR stays undefined while
	// the pivots form, so no break can fire before the deciding bar.
	bars := htfBars([][4]float64{
		{99.0, 99.5, 98.5, 99.0},
		{99.5, 100.0, 99.0, 99.5},     // pivot high 100.0
		{99.5, 99.8, 99.2, 99.5},
		{100.95, 101.0, 100.9, 100.95},
		{101.0, 101.3, 100.7, 101.0},  // pivot low 100.7
		{101.0, 101.35, 100.8, 100.9},
		{100.4, 101.4, 100.1, 100.3},  // qualifies as bull break and bear break
	})
	atrs := make([]*float64, len(bars))
	last := 1.0
	atrs[len(bars)-1] = &last

	p := StructureParams{DisplacementATRMult: 0.2, MinBreakCloseBufferATR: 0.05}
	states, err := BuildStructure(bars, atrs, p)
	if err != nil {
		t.Fatal(err)
	}

	final := states[len(states)-1]
	if final.Break != BreakBullBOS {
		t.Fatalf("bull side must win the tie, got %v", final.Break)
	}
	if final.Bias != BiasBull {
		t.Fatalf("expected bull bias, got %v", final.Bias)
	}
	if final.ProtectedSwingLow == nil || *final.ProtectedSwingLow != 100.7 {
		t.Fatalf("expected protected swing low 100.7, got %v", final.ProtectedSwingLow)
	}
	// The superseded bear side must leave no trace.
	if final.ProtectedSwingHigh != nil {
		t.Fatalf("bear break leaked a protected swing high: %v", *final.ProtectedSwingHigh)
	}
}

func TestBuildStructureRejectsUnorderedBars(t *testing.T) {
	bars := htfBars([][4]float64{
		{100, 101, 99, 100},
		{100, 101, 99, 100},
	})
	bars[1].Timestamp = bars[0].Timestamp
	if _, err := BuildStructure(bars, constATR(2, 1.0), StructureParams{}); err == nil {
		t.Fatal("expected error for non-increasing timestamps")
	}
}
