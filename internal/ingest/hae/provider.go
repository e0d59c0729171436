package hae

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/claude/cyclesense/internal/ingest"
	"github.com/claude/cyclesense/internal/models"
)

// Provider processes Health Auto Export REST API payloads.
type Provider struct {
	db  ingest.Store
	log *slog.Logger
}

// NewProvider creates a new HAE ingest provider.
func NewProvider(db ingest.Store, log *slog.Logger) *Provider {
	return &Provider{db: db, log: log}
}

// Ingest processes an HAE JSON payload and stores accepted metrics.
func (p *Provider) Ingest(ctx context.Context, payload *models.HAEPayload, userID int) (*ingest.Result, error) {
	result := &ingest.Result{}

	if len(payload.Data.Metrics) > 0 {
		if err := p.processMetrics(ctx, payload.Data.Metrics, userID, result); err != nil {
			return result, fmt.Errorf("processing metrics: %w", err)
		}
	}

	if len(result.RejectedNames) > 0 {
		result.Message = fmt.Sprintf(
			"Some metrics were rejected because they are not in the allowlist: %v. "+
				"Accepted metrics are stored. Check GET /api/v1/allowlist for the full list.",
			result.RejectedNames)
	}

	return result, nil
}

func (p *Provider) processMetrics(ctx context.Context, metrics []models.HAEMetric, userID int, result *ingest.Result) error {
	var healthRows []models.HealthMetricRow
	rejectedSet := map[string]bool{}

	for _, m := range metrics {
		allowed, err := p.db.IsMetricAllowed(ctx, m.Name)
		if err != nil {
			return fmt.Errorf("checking allowlist for %s: %w", m.Name, err)
		}
		if !allowed {
			if !rejectedSet[m.Name] {
				result.RejectedNames = append(result.RejectedNames, m.Name)
				rejectedSet[m.Name] = true
			}
			result.MetricsRejected += len(m.Data)
			continue
		}

		for _, raw := range m.Data {
			result.MetricsReceived++

			row, err := convertMetricDataPoint(m.Name, m.Units, raw)
			if err != nil {
				p.log.Warn("skipping data point", "metric", m.Name, "error", err)
				continue
			}
			row.UserID = userID
			healthRows = append(healthRows, *row)
		}
	}

	if len(healthRows) > 0 {
		inserted, err := p.db.InsertHealthMetrics(ctx, healthRows)
		if err != nil {
			return fmt.Errorf("inserting health metrics: %w", err)
		}
		result.MetricsInserted = inserted
		result.MetricsSkipped = int64(len(healthRows)) - inserted
	}

	return nil
}

// convertMetricDataPoint detects the shape of a metric data point and converts it to a HealthMetricRow.
// Temperatures are stored in Celsius.
func convertMetricDataPoint(name, units string, raw json.RawMessage) (*models.HealthMetricRow, error) {
	row := &models.HealthMetricRow{
		MetricName: name,
		Units:      units,
		Source:     "Health Auto Export",
	}

	convert := func(v float64) *float64 { return &v }
	if models.IsTemperatureMetric(name) {
		convert = func(v float64) *float64 {
			c, _ := models.NormalizeTemperature(v, units)
			return &c
		}
		row.Units = models.UnitCelsius
	}

	switch DetectShape(name, raw) {
	case ShapeMinAvgMax:
		var dp models.HAEHeartRateDataPoint
		if err := json.Unmarshal(raw, &dp); err != nil {
			return nil, fmt.Errorf("parsing min/avg/max: %w", err)
		}
		row.Time = dp.Date.Time
		row.MinVal = convert(dp.Min)
		row.AvgVal = convert(dp.Avg)
		row.MaxVal = convert(dp.Max)
		if dp.Source != "" {
			row.Source = dp.Source
		}

	default: // ShapeQty
		var dp models.HAEMetricDataPoint
		if err := json.Unmarshal(raw, &dp); err != nil {
			return nil, fmt.Errorf("parsing qty: %w", err)
		}
		row.Time = dp.Date.Time
		row.Qty = convert(dp.Qty)
		if dp.Source != "" {
			row.Source = dp.Source
		}
	}

	if row.Time.IsZero() {
		return nil, fmt.Errorf("data point has no date")
	}
	return row, nil
}
