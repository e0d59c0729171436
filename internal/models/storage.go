package models

import (
	"time"

	"github.com/google/uuid"
)

// HealthMetricRow is a row ready for insertion into the health_metrics table.
type HealthMetricRow struct {
	Time       time.Time `json:"time"`
	UserID     int       `json:"user_id"`
	MetricName string    `json:"metric_name"`
	Source     string    `json:"source"`
	Units      string    `json:"units"`
	Qty        *float64  `json:"qty,omitempty"`
	MinVal     *float64  `json:"min,omitempty"`
	AvgVal     *float64  `json:"avg,omitempty"`
	MaxVal     *float64  `json:"max,omitempty"`
}

// Value returns the representative value of the row: qty when present,
// otherwise the average.
func (r HealthMetricRow) Value() (float64, bool) {
	switch {
	case r.Qty != nil:
		return *r.Qty, true
	case r.AvgVal != nil:
		return *r.AvgVal, true
	}
	return 0, false
}

// CycleSample is a temperature sample paired with the nearest HRV sample.
type CycleSample struct {
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
	HRVMs       *float64  `json:"hrv_ms,omitempty"`
}

// SampleQuery selects the metrics used to build cycle samples.
type SampleQuery struct {
	Start             time.Time
	End               time.Time
	TemperatureMetric string
	HRVMetric         string
	// PairWindow bounds the distance between a temperature sample and the
	// HRV sample paired with it.
	PairWindow time.Duration
}

// CycleAnalysisRow is a row of the cycle_analyses table.
type CycleAnalysisRow struct {
	ID             uuid.UUID `json:"id"`
	UserID         int       `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
	RangeStart     time.Time `json:"range_start"`
	RangeEnd       time.Time `json:"range_end"`
	Baseline       float64   `json:"baseline"`
	BaselineSource string    `json:"baseline_source"`
	Readings       int       `json:"readings"`
	Rejected       int       `json:"rejected"`
	Days           int       `json:"days"`
	Merged         bool      `json:"merged"`
}

// CyclePhaseRow is a row of the cycle_phases table.
type CyclePhaseRow struct {
	AnalysisID uuid.UUID `json:"analysis_id"`
	UserID     int       `json:"user_id"`
	Seq        int       `json:"seq"`
	Stage      string    `json:"stage"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
}
