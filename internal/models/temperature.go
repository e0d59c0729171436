package models

import "strings"

// Metric names used by the cycle analysis.
const (
	MetricBasalBodyTemperature = "basal_body_temperature"
	MetricBodyTemperature      = "body_temperature"
	MetricHRV                  = "heart_rate_variability"
	MetricHeartRate            = "heart_rate"
	MetricRestingHeartRate     = "resting_heart_rate"
)

// UnitCelsius is the unit temperatures are stored in.
const UnitCelsius = "degC"

// IsTemperatureMetric reports whether name holds body temperature readings.
func IsTemperatureMetric(name string) bool {
	return name == MetricBasalBodyTemperature || name == MetricBodyTemperature
}

// NormalizeTemperature converts a temperature to degrees Celsius. Health
// Auto Export reports "degF" or "°F" for Fahrenheit and "degC" or "°C" for
// Celsius; anything else is assumed to be Celsius already.
func NormalizeTemperature(value float64, units string) (float64, string) {
	switch strings.ToLower(strings.TrimSpace(units)) {
	case "degf", "°f", "f", "fahrenheit":
		return (value - 32) * 5 / 9, UnitCelsius
	}
	return value, UnitCelsius
}
