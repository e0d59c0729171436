package wearable

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/claude/cyclesense/internal/ingest"
	"github.com/claude/cyclesense/internal/models"
)

const sourceName = "Wearable CSV"

// Provider processes wearable thermometer CSV exports.
type Provider struct {
	db                ingest.Store
	log               *slog.Logger
	temperatureMetric string
	hrvMetric         string
}

// NewProvider creates a wearable ingest provider that stores temperatures
// and HRV values under the given metric names.
func NewProvider(db ingest.Store, log *slog.Logger, temperatureMetric, hrvMetric string) *Provider {
	return &Provider{
		db:                db,
		log:               log,
		temperatureMetric: temperatureMetric,
		hrvMetric:         hrvMetric,
	}
}

// Ingest parses a CSV export and stores one temperature row per line plus
// an HRV row when the line carries one.
func (p *Provider) Ingest(ctx context.Context, r io.Reader, loc *time.Location, userID int) (*ingest.Result, error) {
	records, skipped, err := Parse(r, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing CSV: %w", err)
	}
	if skipped > 0 {
		p.log.Warn("skipped malformed wearable lines", "count", skipped)
	}

	result := &ingest.Result{LinesSkipped: skipped}
	allowTemp, err := p.allowed(ctx, p.temperatureMetric, result)
	if err != nil {
		return nil, err
	}
	allowHRV, err := p.allowed(ctx, p.hrvMetric, result)
	if err != nil {
		return nil, err
	}

	var rows []models.HealthMetricRow
	for _, rec := range records {
		if allowTemp {
			temp := rec.TemperatureC
			rows = append(rows, models.HealthMetricRow{
				Time:       rec.Time,
				UserID:     userID,
				MetricName: p.temperatureMetric,
				Source:     sourceName,
				Units:      models.UnitCelsius,
				Qty:        &temp,
			})
		} else {
			result.MetricsRejected++
		}
		if rec.HRVMs == nil {
			continue
		}
		if allowHRV {
			hrv := *rec.HRVMs
			rows = append(rows, models.HealthMetricRow{
				Time:       rec.Time,
				UserID:     userID,
				MetricName: p.hrvMetric,
				Source:     sourceName,
				Units:      "ms",
				Qty:        &hrv,
			})
		} else {
			result.MetricsRejected++
		}
	}

	result.MetricsReceived = len(rows)
	if len(rows) > 0 {
		inserted, err := p.db.InsertHealthMetrics(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("inserting wearable samples: %w", err)
		}
		result.MetricsInserted = inserted
		result.MetricsSkipped = int64(len(rows)) - inserted
	}

	if len(result.RejectedNames) > 0 {
		result.Message = fmt.Sprintf("Metrics not in the allowlist were dropped: %v.", result.RejectedNames)
	}
	return result, nil
}

func (p *Provider) allowed(ctx context.Context, metric string, result *ingest.Result) (bool, error) {
	ok, err := p.db.IsMetricAllowed(ctx, metric)
	if err != nil {
		return false, fmt.Errorf("checking allowlist for %s: %w", metric, err)
	}
	if !ok {
		result.RejectedNames = append(result.RejectedNames, metric)
	}
	return ok, nil
}
