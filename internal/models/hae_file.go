package models

import "time"

// AppleEpochOffset is the number of seconds between the Unix epoch and the
// Core Data reference date (2001-01-01 UTC).
const AppleEpochOffset int64 = 978307200

// AppleTimestampToTime converts seconds since 2001-01-01 UTC to a time.Time.
func AppleTimestampToTime(appleTS float64) time.Time {
	sec := int64(appleTS)
	nsec := int64((appleTS - float64(sec)) * 1e9)
	return time.Unix(sec+AppleEpochOffset, nsec).UTC()
}

// HAEFileMetric is the root JSON structure of a metric .hae file.
type HAEFileMetric struct {
	Metric string             `json:"metric"`
	Date   float64            `json:"date"`
	Data   []HAEFileDataPoint `json:"data"`
}

// HAEFileDataPoint is a single sample. Most metrics carry Qty; heart rate
// carries lowercase min/avg/max.
type HAEFileDataPoint struct {
	Metric  string          `json:"metric"`
	Start   float64         `json:"start"`
	End     float64         `json:"end"`
	Unit    string          `json:"unit"`
	Qty     *float64        `json:"qty,omitempty"`
	Min     *float64        `json:"min,omitempty"`
	Avg     *float64        `json:"avg,omitempty"`
	Max     *float64        `json:"max,omitempty"`
	Sources []HAEFileSource `json:"sources,omitempty"`
}

// HAEFileSource identifies the data source device.
type HAEFileSource struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
}

// SourceName returns the first source's name, or empty string.
func (dp *HAEFileDataPoint) SourceName() string {
	if len(dp.Sources) > 0 {
		return dp.Sources[0].Name
	}
	return ""
}

// StartTime returns the sample start as a UTC time.
func (dp *HAEFileDataPoint) StartTime() time.Time {
	return AppleTimestampToTime(dp.Start)
}
