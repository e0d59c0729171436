package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/claude/cyclesense/internal/ingest"
	"github.com/claude/cyclesense/internal/models"
)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesErrored   int

	MetricsReceived   int
	MetricsInserted   int64
	MetricsDuplicated int64

	RejectedMetrics []string
}

// Importer reads .hae files from an AutoSync directory and inserts data into the DB.
type Importer struct {
	db     ingest.Store
	log    *slog.Logger
	userID int
	dryRun bool
	stats  Stats

	// decode turns a file on disk into JSON bytes.
	decode func(path string) ([]byte, error)
}

// New creates a new Importer that stores samples for userID.
func New(db ingest.Store, log *slog.Logger, userID int, dryRun bool) *Importer {
	return &Importer{db: db, log: log, userID: userID, dryRun: dryRun, decode: DecompressLZFSE}
}

// Import processes all metric .hae files under the given AutoSync directory.
func (imp *Importer) Import(ctx context.Context, autoSyncDir string) (*Stats, error) {
	healthDir := filepath.Join(autoSyncDir, "HealthMetrics")
	if _, err := os.Stat(healthDir); err != nil {
		return &imp.stats, fmt.Errorf("no HealthMetrics directory in %s: %w", autoSyncDir, err)
	}
	if err := imp.importHealthMetrics(ctx, healthDir); err != nil {
		return &imp.stats, fmt.Errorf("importing health metrics: %w", err)
	}
	return &imp.stats, nil
}

// importHealthMetrics walks HealthMetrics/ subdirectories and imports each metric.
func (imp *Importer) importHealthMetrics(ctx context.Context, healthDir string) error {
	entries, err := os.ReadDir(healthDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", healthDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metricName := entry.Name()

		allowed, err := imp.db.IsMetricAllowed(ctx, metricName)
		if err != nil {
			return fmt.Errorf("checking allowlist for %s: %w", metricName, err)
		}
		if !allowed {
			imp.stats.RejectedMetrics = append(imp.stats.RejectedMetrics, metricName)
			imp.log.Info("skipping metric (not in allowlist)", "metric", metricName)
			continue
		}

		if err := imp.importMetricDir(ctx, filepath.Join(healthDir, metricName), metricName); err != nil {
			return fmt.Errorf("importing %s: %w", metricName, err)
		}
	}

	return nil
}

// importMetricDir imports all .hae files in a single metric's directory.
func (imp *Importer) importMetricDir(ctx context.Context, dir, metricName string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.hae"))
	if err != nil {
		return err
	}

	for _, f := range files {
		data, err := imp.decode(f)
		if err != nil {
			imp.log.Warn("decompress failed", "file", f, "error", err)
			imp.stats.FilesErrored++
			continue
		}

		var file models.HAEFileMetric
		if err := json.Unmarshal(data, &file); err != nil {
			imp.log.Warn("parse failed", "file", f, "error", err)
			imp.stats.FilesErrored++
			continue
		}

		rows := ConvertMetricFile(metricName, &file, imp.userID)
		if len(rows) == 0 {
			imp.stats.FilesSkipped++
			continue
		}

		imp.stats.FilesProcessed++
		imp.stats.MetricsReceived += len(rows)
		if imp.dryRun {
			imp.stats.MetricsInserted += int64(len(rows))
			continue
		}

		inserted, err := imp.db.InsertHealthMetrics(ctx, rows)
		if err != nil {
			return fmt.Errorf("inserting %s from %s: %w", metricName, filepath.Base(f), err)
		}
		imp.stats.MetricsInserted += inserted
		imp.stats.MetricsDuplicated += int64(len(rows)) - inserted
	}

	return nil
}

// ConvertMetricFile turns the samples of a metric file into rows. Heart
// rate keeps min/avg/max, temperatures are converted to Celsius, and samples
// without a value are dropped.
func ConvertMetricFile(metricName string, file *models.HAEFileMetric, userID int) []models.HealthMetricRow {
	var rows []models.HealthMetricRow
	for _, dp := range file.Data {
		row := models.HealthMetricRow{
			Time:       dp.StartTime(),
			UserID:     userID,
			MetricName: metricName,
			Source:     dp.SourceName(),
			Units:      dp.Unit,
		}

		switch {
		case metricName == models.MetricHeartRate:
			if dp.Avg == nil {
				continue
			}
			row.MinVal = dp.Min
			row.AvgVal = dp.Avg
			row.MaxVal = dp.Max
		case dp.Qty == nil:
			continue
		case models.IsTemperatureMetric(metricName):
			c, units := models.NormalizeTemperature(*dp.Qty, dp.Unit)
			row.Qty = &c
			row.Units = units
		default:
			row.Qty = dp.Qty
		}

		rows = append(rows, row)
	}
	return rows
}
