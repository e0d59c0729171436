package ingest

import (
	"context"

	"github.com/claude/cyclesense/internal/models"
)

// Store is the storage surface used by ingest providers.
type Store interface {
	IsMetricAllowed(ctx context.Context, metricName string) (bool, error)
	InsertHealthMetrics(ctx context.Context, rows []models.HealthMetricRow) (int64, error)
}

// Result holds the outcome of an ingest operation.
type Result struct {
	MetricsReceived int      `json:"metrics_received"`
	MetricsInserted int64    `json:"metrics_inserted"`
	MetricsSkipped  int64    `json:"metrics_skipped"`
	MetricsRejected int      `json:"metrics_rejected"`
	RejectedNames   []string `json:"rejected_names,omitempty"`

	// LinesSkipped counts unparseable lines of file-based imports.
	LinesSkipped int `json:"lines_skipped,omitempty"`

	Message string `json:"message,omitempty"`
}
