package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/claude/cyclesense/internal/importer"
	"github.com/claude/cyclesense/internal/models"
)

// lastRunKey is the sync_state key holding the finish time of the last upload.
const lastRunKey = "last_upload"

// Sender is the server surface the uploader needs. *Client implements it.
type Sender interface {
	FetchAllowlist(ctx context.Context) (map[string]bool, error)
	SendPayload(ctx context.Context, payload models.HAEPayload) error
}

// Stats tracks upload progress.
type Stats struct {
	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	MetricPointsSent int
	PayloadsSent     int

	RejectedMetrics []string
}

// Uploader walks an AutoSync directory, converts .hae files to REST API format,
// and POSTs them to the CycleSense server.
type Uploader struct {
	client    Sender
	state     *StateDB
	autoSync  string
	dryRun    bool
	batchSize int
	log       *slog.Logger
	stats     Stats

	decode func(path string) ([]byte, error)
}

// New creates a new Uploader.
func New(client Sender, state *StateDB, autoSyncDir string, dryRun bool, batchSize int, log *slog.Logger) *Uploader {
	if batchSize <= 0 {
		batchSize = 2000
	}
	return &Uploader{
		client:    client,
		state:     state,
		autoSync:  autoSyncDir,
		dryRun:    dryRun,
		batchSize: batchSize,
		log:       log,
		decode:    importer.DecompressLZFSE,
	}
}

// Run executes the upload pipeline.
func (u *Uploader) Run(ctx context.Context) (*Stats, error) {
	// Dry runs accept every metric and never contact the server.
	var allowlist map[string]bool
	if !u.dryRun {
		var err error
		allowlist, err = u.client.FetchAllowlist(ctx)
		if err != nil {
			return &u.stats, fmt.Errorf("fetching allowlist: %w", err)
		}
		u.log.Info("fetched allowlist", "metrics", len(allowlist))
	}

	healthDir := filepath.Join(u.autoSync, "HealthMetrics")
	if _, err := os.Stat(healthDir); err != nil {
		return &u.stats, fmt.Errorf("no HealthMetrics directory in %s: %w", u.autoSync, err)
	}
	if err := u.processMetrics(ctx, healthDir, allowlist); err != nil {
		return &u.stats, fmt.Errorf("processing metrics: %w", err)
	}

	if !u.dryRun {
		if err := u.state.SetSyncState(lastRunKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
			u.log.Warn("failed to save sync state", "error", err)
		}
	}
	return &u.stats, nil
}

// LastRun returns when the last non-dry upload finished, or the zero time.
func (u *Uploader) LastRun() (time.Time, error) {
	v, err := u.state.GetSyncState(lastRunKey)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}

// processMetrics walks HealthMetrics/ subdirectories and uploads each metric.
func (u *Uploader) processMetrics(ctx context.Context, healthDir string, allowlist map[string]bool) error {
	entries, err := os.ReadDir(healthDir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", healthDir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		metricName := entry.Name()

		if allowlist != nil && !allowlist[metricName] {
			u.stats.RejectedMetrics = append(u.stats.RejectedMetrics, metricName)
			continue
		}

		if err := u.processMetricDir(ctx, filepath.Join(healthDir, metricName), metricName); err != nil {
			return fmt.Errorf("processing %s: %w", metricName, err)
		}
	}

	return nil
}

// fileInfo tracks a file's metadata for state DB operations.
type fileInfo struct {
	relPath string
	size    int64
	hash    string
}

// processMetricDir processes all .hae files in a single metric's directory.
func (u *Uploader) processMetricDir(ctx context.Context, dir, metricName string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.hae"))
	if err != nil {
		return err
	}

	var allPoints []json.RawMessage
	var newFiles []fileInfo
	var units string

	for _, f := range files {
		u.stats.FilesTotal++

		relPath, _ := filepath.Rel(u.autoSync, f)
		info, err := os.Stat(f)
		if err != nil {
			u.log.Warn("stat failed", "file", f, "error", err)
			u.stats.FilesErrored++
			continue
		}

		hash, err := HashFile(f)
		if err != nil {
			u.log.Warn("hash failed", "file", f, "error", err)
			u.stats.FilesErrored++
			continue
		}

		uploaded, err := u.state.IsUploaded(relPath, info.Size(), hash)
		if err != nil {
			u.log.Warn("state check failed", "file", f, "error", err)
			u.stats.FilesErrored++
			continue
		}
		if uploaded {
			u.stats.FilesSkipped++
			continue
		}

		data, err := u.decode(f)
		if err != nil {
			u.log.Warn("decompress failed", "file", f, "error", err)
			u.stats.FilesErrored++
			continue
		}

		var file models.HAEFileMetric
		if err := json.Unmarshal(data, &file); err != nil {
			u.log.Warn("parse failed", "file", f, "error", err)
			u.stats.FilesErrored++
			continue
		}

		metric, err := convertMetric(file, metricName)
		if err != nil {
			u.log.Warn("convert failed", "file", f, "error", err)
			u.stats.FilesErrored++
			continue
		}
		if len(metric.Data) == 0 {
			u.stats.FilesSkipped++
			// Remember empty files so they are not decoded again.
			if !u.dryRun {
				_ = u.state.MarkUploaded(relPath, info.Size(), hash)
			}
			continue
		}

		allPoints = append(allPoints, metric.Data...)
		if units == "" {
			units = metric.Units
		}
		newFiles = append(newFiles, fileInfo{relPath: relPath, size: info.Size(), hash: hash})
	}

	if len(allPoints) == 0 {
		return nil
	}

	for i := 0; i < len(allPoints); i += u.batchSize {
		end := min(i+u.batchSize, len(allPoints))
		batch := allPoints[i:end]

		payload := models.HAEPayload{
			Data: models.HAEData{
				Metrics: []models.HAEMetric{{
					Name:  metricName,
					Units: units,
					Data:  batch,
				}},
			},
		}

		if u.dryRun {
			u.log.Info("dry-run: would send", "metric", metricName, "points", len(batch))
		} else {
			if err := u.client.SendPayload(ctx, payload); err != nil {
				return fmt.Errorf("sending %s batch: %w", metricName, err)
			}
			u.stats.PayloadsSent++
		}
		u.stats.MetricPointsSent += len(batch)
	}

	for _, fi := range newFiles {
		if !u.dryRun {
			if err := u.state.MarkUploaded(fi.relPath, fi.size, fi.hash); err != nil {
				u.log.Warn("failed to mark uploaded", "file", fi.relPath, "error", err)
			}
		}
		u.stats.FilesUploaded++
	}

	u.log.Info("uploaded metric",
		"metric", metricName,
		"files", len(newFiles),
		"points", len(allPoints),
	)

	return nil
}

// ResolveAutoSync resolves the AutoSync directory from a user-provided path.
// If the path contains an AutoSync subdirectory, returns its path.
// Otherwise returns the original path.
func ResolveAutoSync(path string) string {
	if filepath.Base(path) == "AutoSync" {
		return path
	}
	candidate := filepath.Join(path, "AutoSync")
	if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
		return candidate
	}
	parts := strings.Split(path, string(filepath.Separator))
	for i, part := range parts {
		if part == "AutoSync" {
			return filepath.Join(string(filepath.Separator), filepath.Join(parts[:i+1]...))
		}
	}
	return path
}
