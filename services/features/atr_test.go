package features

import (
	"testing"
	"time"

	"structure-backtest/services/engine"
)

func mkBars(ohlc [][4]float64) []engine.Bar {
	start := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	bars := make([]engine.Bar, len(ohlc))
	for i, v := range ohlc {
		bars[i] = engine.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      v[0], High: v[1], Low: v[2], Close: v[3],
		}
	}
	return bars
}

func TestTrueRangeFirstBarAndGaps(t *testing.T) {
	bars := mkBars([][4]float64{
		{100, 101, 99, 100},
		{103, 104, 102, 103}, // gap up: range vs prev close dominates
	})
	tr := TrueRange(bars)
	if tr[0] != 2.0 {
		t.Fatalf("first bar TR must be high-low, got %v", tr[0])
	}
	// max(104-102, |104-100|, |102-100|) = 4
	if tr[1] != 4.0 {
		t.Fatalf("expected gap TR 4.0, got %v", tr[1])
	}
}

func TestATRWarmupAndAverage(t *testing.T) {
	bars := mkBars([][4]float64{
		{100, 101, 99, 100}, // TR 2
		{100, 102, 98, 100}, // TR 4
		{100, 103, 97, 100}, // TR 6
		{100, 101, 99, 100}, // TR 2
	})
	atrs := ATR(bars, 3)
	if atrs[0] != nil || atrs[1] != nil {
		t.Fatal("ATR must be undefined during warm-up")
	}
	if atrs[2] == nil || *atrs[2] != 4.0 {
		t.Fatalf("expected ATR (2+4+6)/3=4.0, got %v", atrs[2])
	}
	if atrs[3] == nil || *atrs[3] != 4.0 {
		t.Fatalf("expected ATR (4+6+2)/3=4.0, got %v", atrs[3])
	}
}

func TestATRShortSeries(t *testing.T) {
	bars := mkBars([][4]float64{{100, 101, 99, 100}})
	for _, v := range ATR(bars, 14) {
		if v != nil {
			t.Fatal("ATR must stay undefined when the series is shorter than the period")
		}
	}
}

func TestExpandingPercentilePointInTime(t *testing.T) {
	vals := []*float64{nil, ptr(1.0), ptr(3.0), ptr(2.0)}
	pct := ExpandingPercentile(vals)

	if pct[0] != nil {
		t.Fatal("nil input must stay nil")
	}
	if *pct[1] != 100.0 {
		t.Fatalf("single observation ranks at 100, got %v", *pct[1])
	}
	if *pct[2] != 100.0 {
		t.Fatalf("new maximum ranks at 100, got %v", *pct[2])
	}
	// 2.0 against {1, 3, 2}: two values at or below.
	want := 100.0 * 2.0 / 3.0
	if diff := *pct[3] - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected %v, got %v", want, *pct[3])
	}
}

func ptr(v float64) *float64 { return &v }
