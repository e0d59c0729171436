package cycle

import (
	"fmt"
	"math"
	"time"
)

// Stage is a confirmed cycle phase.
type Stage uint8

const (
	PreOvulation Stage = iota
	Ovulation
	PostOvulation
	PeriodStart
)

var stageNames = [...]string{
	PreOvulation:  "pre_ovulation",
	Ovulation:     "ovulation",
	PostOvulation: "post_ovulation",
	PeriodStart:   "period_start",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", s)
}

// Valid reports whether s is one of the four defined stages.
func (s Stage) Valid() bool {
	return int(s) < len(stageNames)
}

func (s Stage) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid stage %d", s)
	}
	return []byte(stageNames[s]), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	st, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ParseStage parses the snake_case stage name.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, fmt.Errorf("unknown stage %q", name)
}

// Period is one finalized phase segment.
type Period struct {
	Start time.Duration
	End   time.Duration
	Stage Stage
}

// scanState is the working state of one scan. The cursor i may advance by
// more than one day when lookahead days are consumed.
type scanState struct {
	p        Params
	baseline float64
	days     []DayKind
	i        int
	out      []Period
}

// Scan turns classified days into phase segments. It never fails: weak or
// corrupted evidence results in skipped days, not errors.
func (p Params) Scan(days []DayKind, baseline float64) []Period {
	s := &scanState{p: p, baseline: baseline, days: days}
	for s.i < len(s.days) {
		day := s.days[s.i]
		switch day.Kind {
		case KindStart:
			s.onStart(day)
			s.i++
		case KindMiddleUnchecked:
			s.onRise(day)
		case KindEnd:
			s.onEnd(day)
			s.i++
		default:
			s.i++
		}
	}
	return s.out
}

func (s *scanState) last() (Period, bool) {
	if len(s.out) == 0 {
		return Period{}, false
	}
	return s.out[len(s.out)-1], true
}

func (s *scanState) emit(start, end time.Duration, stage Stage) {
	s.out = append(s.out, Period{Start: start, End: end, Stage: stage})
}

// peekRise returns the end and temperature of days[idx] when it is an
// unconfirmed rise ending within one day length of after.
func (s *scanState) peekRise(after time.Duration, idx int) (time.Duration, float64, bool) {
	if idx < 0 || idx >= len(s.days) {
		return 0, 0, false
	}
	d := s.days[idx]
	if d.Kind != KindMiddleUnchecked || d.End-after > s.p.DayLength {
		return 0, 0, false
	}
	return d.End, d.Temperature, true
}

func (s *scanState) same(a, b float64) bool {
	return math.Abs(a-b) <= s.p.RiseDiff
}

func (s *scanState) onStart(day DayKind) {
	stage := PreOvulation
	if last, ok := s.last(); ok {
		switch {
		case last.Stage == PreOvulation || last.Stage == PeriodStart:
			stage = PreOvulation
		case last.Stage == PostOvulation && day.End-last.End <= s.p.DayLength:
			// Baseline right after sustained high temperature.
			stage = PeriodStart
		case last.Stage == PostOvulation:
			stage = PreOvulation
		default:
			// A conflicting low day is treated as noise.
			stage = last.Stage
		}
	}
	s.emit(day.Start, day.End, stage)
}

func (s *scanState) onRise(day DayKind) {
	last, ok := s.last()
	switch {
	case ok && last.Stage == Ovulation:
		s.confirmAfterOvulation(day)
	case ok && last.Stage == PostOvulation:
		s.extendPostOvulation(day)
	default:
		s.detectShift(day)
	}
}

// confirmAfterOvulation needs the next two days to be adjacent rises. A
// plateau confirms PostOvulation over all three days; a rise followed by a
// plateau keeps Ovulation for this day only.
func (s *scanState) confirmAfterOvulation(day DayKind) {
	end1, t1, ok := s.peekRise(day.End, s.i+1)
	if !ok {
		s.i++
		return
	}
	end2, t2, ok := s.peekRise(end1, s.i+ovulationConfirmDays)
	if !ok {
		s.i++
		return
	}

	t0 := day.Temperature
	switch {
	case s.same(t0, t1) && s.same(t0, t2):
		s.emit(day.Start, end2, PostOvulation)
		s.i += ovulationConfirmDays + 1
	case !s.same(t0, t1) && s.same(t1, t2):
		s.emit(day.Start, day.End, Ovulation)
		s.i++
	default:
		s.i++
	}
}

// extendPostOvulation grows the segment through the immediately following
// rises that stay within RiseDiff of this day's temperature. Unlike the
// lookahead checks, the extension is not bounded by the distance between
// the days' last readings.
func (s *scanState) extendPostOvulation(day DayKind) {
	end := day.End
	s.i++
	for s.i < len(s.days) {
		next := s.days[s.i]
		if next.Kind != KindMiddleUnchecked || !s.same(next.Temperature, day.Temperature) {
			break
		}
		end = next.End
		s.i++
	}
	s.emit(day.Start, end, PostOvulation)
}

// detectShift inspects up to shiftWindowDays consecutive pairs after an
// unconfirmed rise. Two growing pairs mean Ovulation, two flat pairs mean
// PostOvulation; anything else leaves the day unlabeled.
func (s *scanState) detectShift(day DayKind) {
	var growth, flat int
	end := day.End
	furthest := s.i

	for j := range shiftWindowDays {
		prevEnd, prevT, ok := s.peekRise(end, s.i+j)
		if !ok {
			break
		}
		nextEnd, nextT, ok := s.peekRise(prevEnd, s.i+j+1)
		if !ok {
			break
		}

		switch {
		case nextT > prevT && nextT-prevT > s.p.RiseDiff:
			growth++
		case s.same(nextT, prevT):
			flat++
		default:
			continue
		}
		end = nextEnd
		furthest = s.i + j + 1
	}

	switch {
	case growth >= minConfirmingPairs:
		s.emit(day.Start, end, Ovulation)
		s.i = furthest + 1
	case flat >= minConfirmingPairs:
		s.emit(day.Start, end, PostOvulation)
		s.i = furthest + 1
	default:
		s.i++
	}
}

// onEnd handles a day well below baseline. Right after PostOvulation it marks
// the period start; otherwise the next raw days must hold at least two
// low unconfirmed readings.
func (s *scanState) onEnd(day DayKind) {
	if last, ok := s.last(); ok && last.Stage == PostOvulation && day.End-last.End <= s.p.DayLength {
		s.emit(day.Start, day.End, PeriodStart)
		return
	}

	lo := s.i + 1
	hi := min(lo+periodStartDays, len(s.days))
	var low int
	for _, next := range s.days[lo:hi] {
		if next.Kind == KindMiddleUnchecked && next.Temperature <= s.baseline {
			low++
		}
	}
	if low >= periodStartMinDays {
		s.emit(day.Start, day.End, PeriodStart)
	}
}
