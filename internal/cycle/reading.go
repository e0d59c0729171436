package cycle

import (
	"slices"
	"time"
)

// Reading is a single sensor sample. Timestamp is a duration since an
// arbitrary epoch; CycleSense uses the Unix epoch (see TimestampOf).
type Reading struct {
	Temperature Normal
	HRV         time.Duration
	Timestamp   time.Duration
}

// TimestampOf converts a wall-clock time into a reading timestamp.
func TimestampOf(t time.Time) time.Duration {
	return time.Duration(t.UnixNano())
}

// TimeOf converts a reading timestamp back into a UTC time.
func TimeOf(ts time.Duration) time.Time {
	return time.Unix(0, int64(ts)).UTC()
}

type sample struct {
	temperature Normal
	hrv         time.Duration
}

// readingStore holds readings keyed by timestamp in ascending order.
// It is built once per invocation and never mutated afterwards.
type readingStore struct {
	timestamps []time.Duration
	samples    []sample
}

// newReadingStore collates readings by timestamp. On duplicate timestamps
// the reading that appears last in the input wins.
func newReadingStore(readings []Reading) *readingStore {
	byTime := make(map[time.Duration]sample, len(readings))
	for _, r := range readings {
		byTime[r.Timestamp] = sample{temperature: r.Temperature, hrv: r.HRV}
	}

	s := &readingStore{
		timestamps: make([]time.Duration, 0, len(byTime)),
		samples:    make([]sample, 0, len(byTime)),
	}
	for ts := range byTime {
		s.timestamps = append(s.timestamps, ts)
	}
	slices.Sort(s.timestamps)
	for _, ts := range s.timestamps {
		s.samples = append(s.samples, byTime[ts])
	}
	return s
}

func (s *readingStore) len() int {
	return len(s.timestamps)
}

// first returns the earliest timestamp. The store must not be empty.
func (s *readingStore) first() time.Duration {
	return s.timestamps[0]
}

// window returns the index range [lo, hi) of readings with from <= ts < to.
func (s *readingStore) window(from, to time.Duration) (lo, hi int) {
	lo, _ = slices.BinarySearch(s.timestamps, from)
	hi, _ = slices.BinarySearch(s.timestamps, to)
	return lo, hi
}
