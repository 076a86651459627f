package loader

import (
	"testing"
	"time"

	"structure-backtest/services/engine"
)

func minuteBars(start time.Time, ohlcv [][5]float64) []engine.Bar {
	bars := make([]engine.Bar, len(ohlcv))
	for i, v := range ohlcv {
		bars[i] = engine.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      v[0], High: v[1], Low: v[2], Close: v[3], Volume: v[4],
		}
	}
	return bars
}

func TestResampleRightClosedRightLabeled(t *testing.T) {
	// Bars at :01 through :05 form one 5-minute bucket labeled :05.
	start := time.Date(2024, 3, 4, 14, 1, 0, 0, time.UTC)
	bars := minuteBars(start, [][5]float64{
		{100, 101, 99, 100.5, 1},
		{100.5, 102, 100, 101, 2},
		{101, 101.5, 98, 99, 3},
		{99, 100, 98.5, 99.5, 4},
		{99.5, 100.5, 99, 100, 5},
	})

	out := Resample(bars, 5*time.Minute)
	if len(out) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(out))
	}
	b := out[0]
	wantLabel := time.Date(2024, 3, 4, 14, 5, 0, 0, time.UTC)
	if !b.Timestamp.Equal(wantLabel) {
		t.Fatalf("expected right label %v, got %v", wantLabel, b.Timestamp)
	}
	if b.Open != 100 || b.High != 102 || b.Low != 98 || b.Close != 100 || b.Volume != 15 {
		t.Fatalf("wrong aggregate: %+v", b)
	}
}

func TestResampleBoundaryBarBelongsToEndingBucket(t *testing.T) {
	// A bar exactly at :05 closes the :05 bucket; :06 starts the :10 bucket.
	base := time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)
	bars := []engine.Bar{
		{Timestamp: base.Add(5 * time.Minute), Open: 1, High: 1, Low: 1, Close: 1},
		{Timestamp: base.Add(6 * time.Minute), Open: 2, High: 2, Low: 2, Close: 2},
	}

	out := Resample(bars, 5*time.Minute)
	if len(out) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(out))
	}
	if !out[0].Timestamp.Equal(base.Add(5 * time.Minute)) {
		t.Fatalf("boundary bar mislabeled: %v", out[0].Timestamp)
	}
	if !out[1].Timestamp.Equal(base.Add(10 * time.Minute)) {
		t.Fatalf("next bucket mislabeled: %v", out[1].Timestamp)
	}
}

func TestResampleSkipsEmptyBuckets(t *testing.T) {
	base := time.Date(2024, 3, 4, 14, 1, 0, 0, time.UTC)
	bars := []engine.Bar{
		{Timestamp: base, Open: 1, High: 1, Low: 1, Close: 1},
		{Timestamp: base.Add(30 * time.Minute), Open: 2, High: 2, Low: 2, Close: 2},
	}

	out := Resample(bars, 5*time.Minute)
	if len(out) != 2 {
		t.Fatalf("gaps must not synthesize buckets, got %d", len(out))
	}
}

func TestResampleEmptyInput(t *testing.T) {
	if out := Resample(nil, 5*time.Minute); out != nil {
		t.Fatal("expected nil for empty input")
	}
	if out := Resample([]engine.Bar{{}}, 0); out != nil {
		t.Fatal("expected nil for non-positive step")
	}
}
