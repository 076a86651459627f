// Package loader ingests OHLCV bar files and prepares them for a run:
// decoding, column mapping, ordering, deduplication, and contract checks.
package loader

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"structure-backtest/services/engine"
)

// LoadCSV reads ordered bars from a CSV file. The file may be UTF-8 or
// UTF-16 with BOM. Required columns: open, high, low, close; timestamps
// come from a "time_utc" column (RFC 3339) or a "timestamp" /
// "timestamp_ms" / "open_time_ms" column (epoch milliseconds, with an
// RFC 3339 fallback). Bars are sorted ascending and duplicate timestamps
// keep the last row.
func LoadCSV(path string) ([]engine.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bars: %w", err)
	}
	defer f.Close()

	r, err := decodedReader(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	bars, err := ReadCSV(r)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return bars, nil
}

// decodedReader wraps the file with a UTF-16 decoder when a BOM is present.
func decodedReader(f *os.File) (io.Reader, error) {
	br := bufio.NewReader(f)
	head, _ := br.Peek(2)
	if len(head) >= 2 {
		if head[0] == 0xFF && head[1] == 0xFE {
			return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()), nil
		}
		if head[0] == 0xFE && head[1] == 0xFF {
			return transform.NewReader(br, unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()), nil
		}
	}
	return br, nil
}

// ReadCSV parses bars from an already-decoded CSV stream.
func ReadCSV(src io.Reader) ([]engine.Bar, error) {
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	colIdx := map[string]int{}
	for i, col := range header {
		colIdx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF")))] = i
	}
	for _, col := range []string{"open", "high", "low", "close"} {
		if _, ok := colIdx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	tsIdx, rfc3339 := -1, false
	switch {
	case has(colIdx, "time_utc"):
		tsIdx, rfc3339 = colIdx["time_utc"], true
	case has(colIdx, "timestamp"):
		tsIdx = colIdx["timestamp"]
	case has(colIdx, "timestamp_ms"):
		tsIdx = colIdx["timestamp_ms"]
	case has(colIdx, "open_time_ms"):
		tsIdx = colIdx["open_time_ms"]
	default:
		return nil, errors.New("missing timestamp, timestamp_ms, open_time_ms or time_utc column")
	}
	volIdx := -1
	if has(colIdx, "volume") {
		volIdx = colIdx["volume"]
	}

	// Volume stays optional; everything else must be present on every row.
	minFields := tsIdx
	for _, col := range []string{"open", "high", "low", "close"} {
		if colIdx[col] > minFields {
			minFields = colIdx[col]
		}
	}
	minFields++

	var bars []engine.Bar
	row := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if len(rec) < minFields {
			return nil, fmt.Errorf("row %d: %d columns, need at least %d", row, len(rec), minFields)
		}

		ts, err := parseTimestamp(strings.TrimSpace(rec[tsIdx]), rfc3339)
		if err != nil {
			return nil, fmt.Errorf("row %d timestamp: %w", row, err)
		}

		bar := engine.Bar{Timestamp: ts}
		for _, fld := range []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close},
		} {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[colIdx[fld.name]]), 64)
			if err != nil {
				return nil, fmt.Errorf("row %d %s: %w", row, fld.name, err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("row %d %s: non-finite value", row, fld.name)
			}
			*fld.dst = v
		}
		if volIdx >= 0 && volIdx < len(rec) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(rec[volIdx]), 64); err == nil {
				bar.Volume = v
			}
		}

		bars = append(bars, bar)
	}
	if len(bars) == 0 {
		return nil, errors.New("input has no bar rows")
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	uniq := bars[:0]
	for _, b := range bars {
		if len(uniq) > 0 && b.Timestamp.Equal(uniq[len(uniq)-1].Timestamp) {
			uniq[len(uniq)-1] = b
			continue
		}
		uniq = append(uniq, b)
	}
	return uniq, nil
}

func parseTimestamp(s string, rfc3339 bool) (time.Time, error) {
	s = strings.TrimPrefix(s, "\uFEFF")
	if rfc3339 {
		return time.Parse(time.RFC3339, s)
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}

func has(m map[string]int, k string) bool {
	_, ok := m[k]
	return ok
}
