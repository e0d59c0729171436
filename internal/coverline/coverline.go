// Package coverline derives a baseline temperature from daily references
// when the caller has none.
package coverline

import (
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/stat"

	"github.com/claude/cyclesense/internal/cycle"
)

// DefaultWindow is the number of leading days averaged into the coverline.
const DefaultWindow = 6

// Method names accepted by Compute.
const (
	MethodMean   = "mean"
	MethodMedian = "median"
)

var (
	ErrNotEnoughDays = errors.New("not enough daily references for coverline")
	ErrUnknownMethod = errors.New("unknown coverline method")
)

// FromDaily returns the mean of the first window daily temperatures.
func FromDaily(days []cycle.DailyReference, window int) (float64, error) {
	temps, err := leading(days, window)
	if err != nil {
		return 0, err
	}
	return stat.Mean(temps, nil), nil
}

// Robust returns the median of the first window daily temperatures. For an
// even window the lower of the two middle values is used.
func Robust(days []cycle.DailyReference, window int) (float64, error) {
	temps, err := leading(days, window)
	if err != nil {
		return 0, err
	}
	slices.Sort(temps)
	return stat.Quantile(0.5, stat.Empirical, temps, nil), nil
}

// Compute dispatches on a method name. An empty method means MethodMean.
func Compute(method string, days []cycle.DailyReference, window int) (float64, error) {
	switch method {
	case "", MethodMean:
		return FromDaily(days, window)
	case MethodMedian:
		return Robust(days, window)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
}

// Trend fits a line through all daily temperatures and returns its slope
// in degrees per day.
func Trend(days []cycle.DailyReference) (float64, error) {
	if len(days) < 2 {
		return 0, ErrNotEnoughDays
	}
	xs := make([]float64, len(days))
	ys := make([]float64, len(days))
	origin := days[0].Start
	for i, d := range days {
		xs[i] = float64(d.Start-origin) / float64(cycle.Day)
		ys[i] = d.Temperature
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope, nil
}

func leading(days []cycle.DailyReference, window int) ([]float64, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	if len(days) < window {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNotEnoughDays, len(days), window)
	}
	temps := make([]float64, window)
	for i, d := range days[:window] {
		temps[i] = d.Temperature
	}
	return temps, nil
}
