package hae

import (
	"encoding/json"
	"math"
	"testing"
)

// TestDetectMetricShapeHeartRate verifies that heart_rate is detected as Min/Avg/Max shape.
func TestDetectMetricShapeHeartRate(t *testing.T) {
	if got := DetectMetricShape("heart_rate"); got != ShapeMinAvgMax {
		t.Errorf("heart_rate shape = %d, want ShapeMinAvgMax", got)
	}
}

// TestDetectMetricShapeQtyDefault verifies that all other metrics default to qty shape.
func TestDetectMetricShapeQtyDefault(t *testing.T) {
	for _, name := range []string{"resting_heart_rate", "basal_body_temperature", "heart_rate_variability"} {
		if got := DetectMetricShape(name); got != ShapeQty {
			t.Errorf("%s shape = %d, want ShapeQty", name, got)
		}
	}
}

// TestDetectShapeProbe verifies summarized HRV points are recognized by their keys.
func TestDetectShapeProbe(t *testing.T) {
	tests := []struct {
		raw  string
		want MetricShape
	}{
		{`{"date":"2024-02-06 06:00:00 +0100","qty":48}`, ShapeQty},
		{`{"date":"2024-02-06 06:00:00 +0100","Min":30,"Avg":48,"Max":70}`, ShapeMinAvgMax},
		{`not json`, ShapeQty},
	}
	for _, tt := range tests {
		if got := DetectShape("heart_rate_variability", json.RawMessage(tt.raw)); got != tt.want {
			t.Errorf("DetectShape(%s) = %d, want %d", tt.raw, got, tt.want)
		}
	}
}

// TestConvertMetricQty verifies conversion of a standard qty metric data point.
func TestConvertMetricQty(t *testing.T) {
	raw := json.RawMessage(`{"date":"2024-02-06 14:30:00 -0800","qty":58}`)
	row, err := convertMetricDataPoint("resting_heart_rate", "bpm", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.Qty == nil || *row.Qty != 58 {
		t.Errorf("qty = %v, want 58", row.Qty)
	}
	if row.MetricName != "resting_heart_rate" || row.Units != "bpm" {
		t.Errorf("name/units = %q/%q", row.MetricName, row.Units)
	}
}

// TestConvertMetricMinAvgMax verifies conversion of heart rate (Min/Avg/Max) data.
func TestConvertMetricMinAvgMax(t *testing.T) {
	raw := json.RawMessage(`{"date":"2024-02-06 14:30:00 -0800","Min":65,"Avg":72,"Max":85}`)
	row, err := convertMetricDataPoint("heart_rate", "bpm", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.MinVal == nil || *row.MinVal != 65 {
		t.Errorf("min = %v, want 65", row.MinVal)
	}
	if row.AvgVal == nil || *row.AvgVal != 72 {
		t.Errorf("avg = %v, want 72", row.AvgVal)
	}
	if row.MaxVal == nil || *row.MaxVal != 85 {
		t.Errorf("max = %v, want 85", row.MaxVal)
	}
	if row.Qty != nil {
		t.Errorf("qty should be nil for heart_rate, got %v", row.Qty)
	}
}

// TestConvertTemperatureFahrenheit verifies temperatures are stored in Celsius.
func TestConvertTemperatureFahrenheit(t *testing.T) {
	raw := json.RawMessage(`{"date":"2024-02-06 06:30:00 -0800","qty":97.7,"source":"Oura"}`)
	row, err := convertMetricDataPoint("basal_body_temperature", "degF", raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row.Qty == nil || math.Abs(*row.Qty-36.5) > 1e-9 {
		t.Errorf("qty = %v, want 36.5", row.Qty)
	}
	if row.Units != "degC" {
		t.Errorf("units = %q, want degC", row.Units)
	}
	if row.Source != "Oura" {
		t.Errorf("source = %q, want Oura", row.Source)
	}
}

// TestConvertMissingDate verifies points without a date are rejected.
func TestConvertMissingDate(t *testing.T) {
	if _, err := convertMetricDataPoint("basal_body_temperature", "degC", json.RawMessage(`{"qty":36.4}`)); err == nil {
		t.Fatal("expected error for missing date")
	}
}
