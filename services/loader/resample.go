package loader

import (
	"time"

	"structure-backtest/services/engine"
)

// Resample aggregates bars into right-closed, right-labeled buckets of the
// given step. A bar at exactly the bucket boundary belongs to the bucket
// that ends there. Input must be ascending by timestamp.
func Resample(bars []engine.Bar, step time.Duration) []engine.Bar {
	if step <= 0 || len(bars) == 0 {
		return nil
	}

	out := make([]engine.Bar, 0, len(bars)/2+1)
	var cur engine.Bar
	var curEnd time.Time
	open := false

	flush := func() {
		if open {
			out = append(out, cur)
			open = false
		}
	}

	for _, b := range bars {
		end := b.Timestamp.Truncate(step)
		if b.Timestamp.After(end) {
			end = end.Add(step)
		}
		if !open || !end.Equal(curEnd) {
			flush()
			curEnd = end
			cur = engine.Bar{
				Timestamp: end,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			}
			open = true
			continue
		}
		if b.High > cur.High {
			cur.High = b.High
		}
		if b.Low < cur.Low {
			cur.Low = b.Low
		}
		cur.Close = b.Close
		cur.Volume += b.Volume
	}
	flush()
	return out
}
