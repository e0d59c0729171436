// Package cycle infers menstrual cycle phases from basal body temperature.
//
// The pipeline has four stages that run strictly in order: readings are
// collated by timestamp, aggregated into one reference temperature per day,
// classified day by day against a caller-supplied baseline, and finally
// scanned with multi-day lookahead into phase segments.
//
// All functions are pure and hold no shared state, so independent inputs
// can be processed concurrently.
package cycle

import "time"

// Detector runs the pipeline with a fixed set of parameters.
type Detector struct {
	params Params
}

// NewDetector validates p and returns a Detector.
func NewDetector(p Params) (*Detector, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Detector{params: p}, nil
}

// Params returns the detector's parameters.
func (d *Detector) Params() Params {
	return d.params
}

// Report holds every intermediate result of one run.
type Report struct {
	Days    []DailyReference
	Kinds   []DayKind
	Periods []Period
}

// Run executes the full pipeline. Fewer than two distinct readings give an
// empty report because no day-to-day comparison is possible.
func (d *Detector) Run(readings []Reading, baseline float64) Report {
	store := newReadingStore(readings)
	if store.len() < 2 {
		return Report{}
	}

	days := d.params.aggregate(store)
	kinds := d.params.Classify(days, baseline)
	return Report{
		Days:    days,
		Kinds:   kinds,
		Periods: d.params.Scan(kinds, baseline),
	}
}

// Detect returns only the phase segments of Run.
func (d *Detector) Detect(readings []Reading, baseline float64) []Period {
	return d.Run(readings, baseline).Periods
}

var defaultDetector = &Detector{params: DefaultParams()}

// Detect runs the pipeline with DefaultParams.
func Detect(readings []Reading, baseline float64) []Period {
	return defaultDetector.Detect(readings, baseline)
}

// MergeAdjacent joins consecutive segments with the same stage when the gap
// between them is at most maxGap. The engine never merges on its own; this
// is a presentation helper for callers.
func MergeAdjacent(periods []Period, maxGap time.Duration) []Period {
	if len(periods) == 0 {
		return nil
	}
	merged := make([]Period, 0, len(periods))
	merged = append(merged, periods[0])
	for _, p := range periods[1:] {
		last := &merged[len(merged)-1]
		if p.Stage == last.Stage && p.Start-last.End <= maxGap {
			last.End = max(last.End, p.End)
			continue
		}
		merged = append(merged, p)
	}
	return merged
}
