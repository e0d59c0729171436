package cycle

import (
	"errors"
	"fmt"
	"time"
)

// Day is the length of one aggregation window.
const Day = 24 * time.Hour

// Contract values for the heuristics. They are tuning constants, not
// clinical thresholds, and can be overridden through Params.
const (
	DefaultQuartileFraction = 0.25
	DefaultRiseDiff         = 0.1
	DefaultLowerBand        = 0.3
	DefaultUpperBand        = 0.7
)

// Lookahead sizes used by the phase scanner.
const (
	ovulationConfirmDays = 2
	shiftWindowDays      = 3
	periodStartDays      = 3
	periodStartMinDays   = 2
	minConfirmingPairs   = 2
)

// ErrInvalidParams is wrapped by Params.Validate.
var ErrInvalidParams = errors.New("invalid cycle parameters")

// Params holds the tunable thresholds of the engine.
type Params struct {
	// DayLength is the aggregation window and the adjacency bound used when
	// deciding whether two days belong to the same run.
	DayLength time.Duration
	// QuartileFraction selects how many of the lowest distinct temperatures
	// of a day are averaged (floored, at least one).
	QuartileFraction float64
	// RiseDiff is the smallest day-to-day change counted as a rise.
	RiseDiff float64
	// LowerBand is how far below baseline a day may be and still count as
	// near baseline.
	LowerBand float64
	// UpperBand is the largest rise above baseline treated as physiological.
	UpperBand float64
}

// DefaultParams returns the contract values.
func DefaultParams() Params {
	return Params{
		DayLength:        Day,
		QuartileFraction: DefaultQuartileFraction,
		RiseDiff:         DefaultRiseDiff,
		LowerBand:        DefaultLowerBand,
		UpperBand:        DefaultUpperBand,
	}
}

// Validate checks that every threshold is usable.
func (p Params) Validate() error {
	switch {
	case p.DayLength <= 0:
		return fmt.Errorf("%w: day length must be positive", ErrInvalidParams)
	case p.QuartileFraction <= 0 || p.QuartileFraction > 1:
		return fmt.Errorf("%w: quartile fraction must be in (0, 1]", ErrInvalidParams)
	case p.RiseDiff <= 0:
		return fmt.Errorf("%w: rise diff must be positive", ErrInvalidParams)
	case p.LowerBand < 0:
		return fmt.Errorf("%w: lower band must not be negative", ErrInvalidParams)
	case p.UpperBand <= 0:
		return fmt.Errorf("%w: upper band must be positive", ErrInvalidParams)
	}
	return nil
}
