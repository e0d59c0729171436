package hae

import (
	"encoding/json"

	"github.com/claude/cyclesense/internal/models"
)

// MetricShape describes the data point structure for a metric.
type MetricShape int

const (
	ShapeQty       MetricShape = iota // Standard: {"qty": N}
	ShapeMinAvgMax                    // Heart rate: {"Min": N, "Avg": N, "Max": N}
)

// DetectMetricShape returns the expected data point shape for a metric name.
func DetectMetricShape(name string) MetricShape {
	if name == models.MetricHeartRate {
		return ShapeMinAvgMax
	}
	return ShapeQty
}

// DetectShape refines DetectMetricShape by probing the data point. Some
// exporter versions summarize HRV and temperature as Min/Avg/Max.
func DetectShape(name string, raw json.RawMessage) MetricShape {
	if shape := DetectMetricShape(name); shape != ShapeQty {
		return shape
	}
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return ShapeQty
	}
	if _, ok := keys["qty"]; ok {
		return ShapeQty
	}
	if _, ok := keys["Avg"]; ok {
		return ShapeMinAvgMax
	}
	return ShapeQty
}
