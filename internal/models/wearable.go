package models

import "time"

// WearableRecord is one line of a wearable thermometer export.
type WearableRecord struct {
	Time         time.Time
	TemperatureC float64
	// HRVMs is nil when the device did not report HRV for this sample.
	HRVMs *float64
}
