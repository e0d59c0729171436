package cycle

import (
	"math"
	"time"
)

// Kind is the provisional, single-day classification.
type Kind uint8

const (
	// KindStart is a day at or near baseline that begins or extends a low run.
	KindStart Kind = iota
	// KindMiddleUnchecked is a day above baseline within the physiological
	// band. It is a rise candidate that still needs multi-day confirmation.
	KindMiddleUnchecked
	// KindEnd is a day well below baseline, a possible return after a rise.
	KindEnd
	// KindUnknownOrCorrupted is a day outside every recognized band.
	KindUnknownOrCorrupted
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindMiddleUnchecked:
		return "middle_unchecked"
	case KindEnd:
		return "end"
	case KindUnknownOrCorrupted:
		return "unknown_or_corrupted"
	default:
		return "invalid"
	}
}

// DayKind is one classified day. Temperature is only meaningful for
// KindMiddleUnchecked; Start and End are zero for KindUnknownOrCorrupted.
type DayKind struct {
	Kind        Kind
	Start       time.Duration
	End         time.Duration
	Temperature float64
}

// Classify assigns a provisional kind to each day. Decisions are local to a
// day apart from the fold rule, which looks at the preceding kind only.
func (p Params) Classify(days []DailyReference, baseline float64) []DayKind {
	kinds := make([]DayKind, 0, len(days))
	for _, day := range days {
		var prev *DayKind
		if len(kinds) > 0 {
			prev = &kinds[len(kinds)-1]
		}
		kinds = append(kinds, p.classifyDay(day, baseline, prev))
	}
	return kinds
}

func (p Params) classifyDay(day DailyReference, baseline float64, prev *DayKind) DayKind {
	t := day.Temperature
	diff := math.Abs(t - baseline)

	switch {
	case t <= baseline && diff <= p.LowerBand:
		// A near-baseline dip that overlaps an unconfirmed rise is folded
		// into that rise instead of starting a new low run.
		if prev != nil && prev.Kind == KindMiddleUnchecked && day.Start+p.DayLength-prev.End <= p.DayLength {
			return DayKind{Kind: KindMiddleUnchecked, Start: day.Start, End: day.End, Temperature: t}
		}
		return DayKind{Kind: KindStart, Start: day.Start, End: day.End}
	case t <= baseline:
		return DayKind{Kind: KindEnd, Start: day.Start, End: day.End}
	case diff <= p.UpperBand:
		return DayKind{Kind: KindMiddleUnchecked, Start: day.Start, End: day.End, Temperature: t}
	default:
		// Also reached for NaN, which fails every comparison above.
		return DayKind{Kind: KindUnknownOrCorrupted}
	}
}
