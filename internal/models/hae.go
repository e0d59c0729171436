package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// HAETime handles the Health Auto Export date format: "2006-01-02 15:04:05 -0700"
// Also handles the date-only format "2006-01-02" used by daily aggregates.
type HAETime struct {
	time.Time
}

const (
	HAETimeLayout     = "2006-01-02 15:04:05 -0700"
	HAEDateOnlyLayout = "2006-01-02"
)

func (t *HAETime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return t.Parse(s)
}

func (t HAETime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(HAETimeLayout))
}

// Parse parses a HAE time string, trying full datetime first, then date-only.
func (t *HAETime) Parse(s string) error {
	parsed, err := time.Parse(HAETimeLayout, s)
	if err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err2 := time.Parse(HAEDateOnlyLayout, s)
	if err2 == nil {
		t.Time = parsed
		return nil
	}
	return fmt.Errorf("cannot parse HAE time %q: %w", s, err)
}

// ParseHAETime parses a HAE time string into a time.Time.
func ParseHAETime(s string) (time.Time, error) {
	var t HAETime
	if err := t.Parse(s); err != nil {
		return time.Time{}, err
	}
	return t.Time, nil
}

// HAEPayload is the top-level REST API JSON structure.
type HAEPayload struct {
	Data HAEData `json:"data"`
}

// HAEData contains the arrays of health data. Workouts sent by the exporter
// are ignored.
type HAEData struct {
	Metrics []HAEMetric `json:"metrics"`
}

// HAEMetric is a single metric entry with name, units, and data points.
type HAEMetric struct {
	Name  string            `json:"name"`
	Units string            `json:"units"`
	Data  []json.RawMessage `json:"data"`
}

// HAEMetricDataPoint is a standard metric data point with qty.
type HAEMetricDataPoint struct {
	Date   HAETime `json:"date"`
	Qty    float64 `json:"qty"`
	Source string  `json:"source,omitempty"`
}

// HAEHeartRateDataPoint has Min/Avg/Max fields (capitalized in HAE JSON).
type HAEHeartRateDataPoint struct {
	Date   HAETime `json:"date"`
	Min    float64 `json:"Min"`
	Avg    float64 `json:"Avg"`
	Max    float64 `json:"Max"`
	Source string  `json:"source,omitempty"`
}
