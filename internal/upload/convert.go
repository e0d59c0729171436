package upload

import (
	"encoding/json"

	"github.com/claude/cyclesense/internal/models"
)

// convertMetric converts an HAEFileMetric to REST API HAEMetric format.
// Temperatures are sent in Celsius; samples without a value are dropped.
func convertMetric(file models.HAEFileMetric, metricName string) (models.HAEMetric, error) {
	metric := models.HAEMetric{Name: metricName}
	isHeartRate := metricName == models.MetricHeartRate
	isTemperature := models.IsTemperatureMetric(metricName)

	var data []json.RawMessage
	for _, dp := range file.Data {
		date := models.HAETime{Time: dp.StartTime()}
		units := dp.Unit

		var point any
		switch {
		case isHeartRate:
			if dp.Avg == nil {
				continue
			}
			point = models.HAEHeartRateDataPoint{
				Date:   date,
				Min:    safeFloat(dp.Min),
				Avg:    *dp.Avg,
				Max:    safeFloat(dp.Max),
				Source: dp.SourceName(),
			}
		case dp.Qty == nil:
			continue
		case isTemperature:
			var c float64
			c, units = models.NormalizeTemperature(*dp.Qty, dp.Unit)
			point = models.HAEMetricDataPoint{Date: date, Qty: c, Source: dp.SourceName()}
		default:
			point = models.HAEMetricDataPoint{Date: date, Qty: *dp.Qty, Source: dp.SourceName()}
		}

		raw, err := json.Marshal(point)
		if err != nil {
			return metric, err
		}
		data = append(data, raw)

		if metric.Units == "" {
			metric.Units = units
		}
	}

	metric.Data = data
	return metric, nil
}

// safeFloat dereferences a float pointer, returning 0 if nil.
func safeFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
