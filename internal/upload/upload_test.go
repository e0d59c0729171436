package upload

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/claude/cyclesense/internal/models"
)

type fakeSender struct {
	allowlist map[string]bool
	payloads  []models.HAEPayload
}

func (f *fakeSender) FetchAllowlist(context.Context) (map[string]bool, error) {
	return f.allowlist, nil
}

func (f *fakeSender) SendPayload(_ context.Context, p models.HAEPayload) error {
	f.payloads = append(f.payloads, p)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeMetricFile stores an uncompressed metric file under
// root/HealthMetrics/<metric>/<name>.
func writeMetricFile(t *testing.T, root, metric, name string, file models.HAEFileMetric) {
	t.Helper()
	dir := filepath.Join(root, "HealthMetrics", metric)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestUploader(t *testing.T, sender Sender, root string, dryRun bool, batch int) *Uploader {
	t.Helper()
	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { state.Close() })

	u := New(sender, state, root, dryRun, batch, testLogger())
	u.decode = os.ReadFile
	return u
}

func TestUploaderRun(t *testing.T) {
	root := t.TempDir()
	writeMetricFile(t, root, models.MetricBasalBodyTemperature, "20250301.hae", models.HAEFileMetric{
		Data: []models.HAEFileDataPoint{
			{Start: 762500000, Unit: "degC", Qty: floatPtr(36.4)},
			{Start: 762586400, Unit: "degC", Qty: floatPtr(36.5)},
			{Start: 762672800, Unit: "degC", Qty: floatPtr(36.6)},
		},
	})
	writeMetricFile(t, root, "step_count", "20250301.hae", models.HAEFileMetric{
		Data: []models.HAEFileDataPoint{{Start: 762500000, Unit: "count", Qty: floatPtr(100)}},
	})

	sender := &fakeSender{allowlist: map[string]bool{models.MetricBasalBodyTemperature: true}}
	u := newTestUploader(t, sender, root, false, 2)

	stats, err := u.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.MetricPointsSent != 3 || stats.PayloadsSent != 2 {
		t.Errorf("sent %d points in %d payloads, want 3 in 2", stats.MetricPointsSent, stats.PayloadsSent)
	}
	if stats.FilesUploaded != 1 {
		t.Errorf("FilesUploaded = %d, want 1", stats.FilesUploaded)
	}
	if !slices.Equal(stats.RejectedMetrics, []string{"step_count"}) {
		t.Errorf("RejectedMetrics = %v, want [step_count]", stats.RejectedMetrics)
	}
	if got := sender.payloads[0].Data.Metrics[0].Name; got != models.MetricBasalBodyTemperature {
		t.Errorf("payload metric = %q", got)
	}

	last, err := u.LastRun()
	if err != nil {
		t.Fatal(err)
	}
	if last.IsZero() || time.Since(last) > time.Minute {
		t.Errorf("LastRun = %v, want recent", last)
	}

	// Second run sends nothing because the file is remembered.
	u.stats = Stats{}
	stats, err = u.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesSkipped != 1 || stats.MetricPointsSent != 0 {
		t.Errorf("second run: skipped=%d sent=%d, want 1/0", stats.FilesSkipped, stats.MetricPointsSent)
	}
	if len(sender.payloads) != 2 {
		t.Errorf("payloads = %d, want 2", len(sender.payloads))
	}
}

func TestUploaderDryRun(t *testing.T) {
	root := t.TempDir()
	writeMetricFile(t, root, models.MetricHRV, "a.hae", models.HAEFileMetric{
		Data: []models.HAEFileDataPoint{{Start: 762500000, Unit: "ms", Qty: floatPtr(42)}},
	})

	sender := &fakeSender{}
	u := newTestUploader(t, sender, root, true, 0)

	stats, err := u.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.MetricPointsSent != 1 {
		t.Errorf("MetricPointsSent = %d, want 1", stats.MetricPointsSent)
	}
	if len(sender.payloads) != 0 {
		t.Errorf("dry run sent %d payloads", len(sender.payloads))
	}
	if last, _ := u.LastRun(); !last.IsZero() {
		t.Errorf("dry run recorded LastRun %v", last)
	}
}

func TestUploaderBrokenFile(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "HealthMetrics", models.MetricHRV)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.hae"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	u := newTestUploader(t, &fakeSender{allowlist: map[string]bool{models.MetricHRV: true}}, root, false, 10)
	stats, err := u.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.FilesErrored != 1 {
		t.Errorf("FilesErrored = %d, want 1", stats.FilesErrored)
	}
}

func TestUploaderMissingHealthMetrics(t *testing.T) {
	u := newTestUploader(t, &fakeSender{}, t.TempDir(), true, 10)
	if _, err := u.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing HealthMetrics directory")
	}
}

func TestResolveAutoSync(t *testing.T) {
	root := t.TempDir()
	auto := filepath.Join(root, "AutoSync")
	if err := os.Mkdir(auto, 0o755); err != nil {
		t.Fatal(err)
	}

	if got := ResolveAutoSync(root); got != auto {
		t.Errorf("ResolveAutoSync(root) = %q, want %q", got, auto)
	}
	if got := ResolveAutoSync(auto); got != auto {
		t.Errorf("ResolveAutoSync(auto) = %q, want %q", got, auto)
	}
	other := filepath.Join(root, "elsewhere")
	if got := ResolveAutoSync(other); got != other {
		t.Errorf("ResolveAutoSync(other) = %q, want %q", got, other)
	}
}

func TestClientSendPayloadRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			t.Errorf("missing api key header")
		}
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	c.backoff = time.Millisecond
	if err := c.SendPayload(context.Background(), models.HAEPayload{}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClientSendPayloadNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	c.backoff = time.Millisecond
	if err := c.SendPayload(context.Background(), models.HAEPayload{}); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestClientFetchAllowlist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/allowlist" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[{"metric_name":"basal_body_temperature","enabled":true},{"metric_name":"heart_rate","enabled":false}]`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, "").FetchAllowlist(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !got["basal_body_temperature"] || got["heart_rate"] || len(got) != 1 {
		t.Errorf("allowlist = %v", got)
	}
}
