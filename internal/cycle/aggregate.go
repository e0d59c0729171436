package cycle

import (
	"math"
	"slices"
	"time"
)

// DailyReference is the reference temperature of one populated day window.
type DailyReference struct {
	// Start is the beginning of the window [Start, Start+DayLength).
	Start time.Duration
	// End is the timestamp of the last reading inside the window.
	End time.Duration
	// Temperature is the mean of the lowest quartile of distinct values.
	Temperature float64
	// Samples is the number of readings in the window.
	Samples int
}

// Aggregate buckets readings into day windows and computes one reference
// temperature per populated day. Readings may be in any order.
func Aggregate(readings []Reading, p Params) []DailyReference {
	return p.aggregate(newReadingStore(readings))
}

// aggregate walks consecutive windows starting at the earliest reading.
// The first empty window ends the series; gaps are not bridged.
func (p Params) aggregate(store *readingStore) []DailyReference {
	if store.len() == 0 {
		return nil
	}

	var days []DailyReference
	start := store.first()
	for {
		end := start + p.DayLength
		lo, hi := store.window(start, end)
		if lo == hi {
			break
		}

		days = append(days, DailyReference{
			Start:       start,
			End:         store.timestamps[hi-1],
			Temperature: p.lowestQuartileMean(store.samples[lo:hi]),
			Samples:     hi - lo,
		})
		start = end
	}
	return days
}

// lowestQuartileMean averages the lowest QuartileFraction of the distinct
// temperatures in a day. At least one value is always used.
func (p Params) lowestQuartileMean(samples []sample) float64 {
	values := make([]Normal, 0, len(samples))
	for _, s := range samples {
		values = append(values, s.temperature)
	}
	slices.SortFunc(values, Normal.Compare)
	values = slices.CompactFunc(values, func(a, b Normal) bool { return a.Compare(b) == 0 })

	n := int(math.Floor(float64(len(values)) * p.QuartileFraction))
	n = max(n, 1)

	var sum float64
	for _, v := range values[:n] {
		sum += v.Float64()
	}
	return sum / float64(n)
}
