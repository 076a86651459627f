package loader

import (
	"strings"
	"testing"
	"time"
)

func TestReadCSVEpochMillis(t *testing.T) {
	in := "timestamp,open,high,low,close,volume\n" +
		"1709560800000,100,101,99,100.5,12\n" +
		"1709560860000,100.5,102,100,101,8\n"

	bars, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	want := time.UnixMilli(1709560800000).UTC()
	if !bars[0].Timestamp.Equal(want) {
		t.Fatalf("expected %v, got %v", want, bars[0].Timestamp)
	}
	if bars[0].Close != 100.5 || bars[1].Volume != 8 {
		t.Fatalf("field mapping wrong: %+v", bars)
	}
}

func TestReadCSVTimeUTCColumn(t *testing.T) {
	in := "time_utc,open,high,low,close\n" +
		"2024-03-04T14:30:00Z,100,101,99,100.5\n"

	bars, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if bars[0].Volume != 0 {
		t.Fatal("missing volume column must default to 0")
	}
	if bars[0].Timestamp.Hour() != 14 || bars[0].Timestamp.Minute() != 30 {
		t.Fatalf("unexpected timestamp %v", bars[0].Timestamp)
	}
}

func TestReadCSVSortsAndDeduplicates(t *testing.T) {
	in := "timestamp,open,high,low,close\n" +
		"1709560860000,2,2,2,2\n" +
		"1709560800000,1,1,1,1\n" +
		"1709560860000,3,3,3,3\n" // duplicate timestamp, last row wins

	bars, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars after dedup, got %d", len(bars))
	}
	if !bars[0].Timestamp.Before(bars[1].Timestamp) {
		t.Fatal("bars must be ascending")
	}
	if bars[1].Close != 3 {
		t.Fatalf("dedup must keep the last row, got close %v", bars[1].Close)
	}
}

func TestReadCSVUTF8BOMHeader(t *testing.T) {
	in := "\ufefftimestamp,open,high,low,close\n" +
		"1709560800000,100,101,99,100.5\n"

	bars, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 || bars[0].Close != 100.5 {
		t.Fatalf("BOM-prefixed header not mapped: %+v", bars)
	}
}

func TestReadCSVShortRowFailsFast(t *testing.T) {
	in := "timestamp,open,high,low,close\n" +
		"1709560800000,100,101,99,100.5\n" +
		"1709560860000\n"

	_, err := ReadCSV(strings.NewReader(in))
	if err == nil {
		t.Fatal("expected error for truncated row")
	}
	if !strings.Contains(err.Error(), "row 2") {
		t.Fatalf("error must name the offending row, got %v", err)
	}
}

func TestReadCSVErrors(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := ReadCSV(strings.NewReader("timestamp,open,high,low\n")); err == nil {
		t.Fatal("expected error for missing close column")
	}
	if _, err := ReadCSV(strings.NewReader("timestamp,open,high,low,close\n")); err == nil {
		t.Fatal("expected error for header-only input")
	}
	in := "timestamp,open,high,low,close\n1709560800000,NaN,1,1,1\n"
	if _, err := ReadCSV(strings.NewReader(in)); err == nil {
		t.Fatal("expected error for non-finite price")
	}
}
