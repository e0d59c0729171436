package mcp

import (
	"context"
	"time"

	"github.com/claude/cyclesense/internal/analysis"
	"github.com/claude/cyclesense/internal/models"
	"github.com/claude/cyclesense/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both LocalSource and
// HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	GetTimeSeries(ctx context.Context, metricName string, start, end time.Time, bucketSize string, userID int) ([]storage.TimeSeriesPoint, error)
	GetLatestMetrics(ctx context.Context, userID int) ([]models.HealthMetricRow, error)
	GetAllowedMetrics(ctx context.Context) ([]storage.AllowedMetric, error)
	ListCycleAnalyses(ctx context.Context, userID, limit int) ([]models.CycleAnalysisRow, error)
	CyclePhases(ctx context.Context, req analysis.Request) (*analysis.Result, error)
	DailyTemperatures(ctx context.Context, req analysis.Request) ([]analysis.Day, error)
}

// LocalSource serves MCP tools from the database in-process.
type LocalSource struct {
	*storage.DB
	Analysis *analysis.Service
}

// Compile-time check: LocalSource satisfies DataSource.
var _ DataSource = LocalSource{}

func (l LocalSource) CyclePhases(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	return l.Analysis.Run(ctx, req)
}

func (l LocalSource) DailyTemperatures(ctx context.Context, req analysis.Request) ([]analysis.Day, error) {
	return l.Analysis.Daily(ctx, req)
}
