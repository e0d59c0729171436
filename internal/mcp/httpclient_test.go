package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/claude/cyclesense/internal/analysis"
	"github.com/claude/cyclesense/internal/cycle"
	"github.com/claude/cyclesense/internal/models"
	"github.com/claude/cyclesense/internal/storage"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			t.Errorf("unexpected request path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestGetTimeSeries verifies the HTTP client sends the right query params
// and correctly parses the JSON array response.
func TestGetTimeSeries(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/timeseries": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("metric"); got != "basal_body_temperature" {
				t.Errorf("metric=%q, want basal_body_temperature", got)
			}
			if got := r.URL.Query().Get("agg"); got != "daily" {
				t.Errorf("agg=%q, want daily", got)
			}

			avg := 36.4
			writeTestJSON(t, w, []storage.TimeSeriesPoint{
				{Time: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Avg: &avg, Count: 10},
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)

	points, err := client.GetTimeSeries(context.Background(), "basal_body_temperature", start, end, "1 day", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1", len(points))
	}
	if points[0].Count != 10 {
		t.Errorf("count=%d, want 10", points[0].Count)
	}
}

// TestCyclePhases verifies the analysis request is encoded as query params
// and the result decodes with typed stages.
func TestCyclePhases(t *testing.T) {
	day := time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC)
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/cycle/phases": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if got := q.Get("baseline"); got != "36.45" {
				t.Errorf("baseline=%q, want 36.45", got)
			}
			if got := q.Get("merge"); got != "true" {
				t.Errorf("merge=%q, want true", got)
			}
			if q.Has("persist") {
				t.Error("persist should be omitted")
			}
			writeTestJSON(t, w, analysis.Result{
				Baseline:       36.45,
				BaselineSource: analysis.BaselineRequest,
				Phases:         []analysis.Phase{{Stage: cycle.PostOvulation, Start: day, End: day}},
			})
		},
	})
	defer ts.Close()

	baseline := 36.45
	res, err := NewHTTPClient(ts.URL).CyclePhases(context.Background(), analysis.Request{
		Start:    day.AddDate(0, 0, -30),
		End:      day,
		Baseline: &baseline,
		Merge:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Phases) != 1 || res.Phases[0].Stage != cycle.PostOvulation {
		t.Errorf("phases = %+v", res.Phases)
	}
}

// TestCyclePhasesNoBaseline verifies a 422 maps back to ErrNoBaseline.
func TestCyclePhasesNoBaseline(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/cycle/phases": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"no baseline available"}`))
		},
	})
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL).CyclePhases(context.Background(), analysis.Request{})
	if !errors.Is(err, analysis.ErrNoBaseline) {
		t.Errorf("err = %v, want ErrNoBaseline", err)
	}
}

func TestDailyTemperatures(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/cycle/daily": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("start") == "" {
				t.Error("missing start")
			}
			writeTestJSON(t, w, []analysis.Day{{Temperature: 36.3, Samples: 4}})
		},
	})
	defer ts.Close()

	days, err := NewHTTPClient(ts.URL).DailyTemperatures(context.Background(), analysis.Request{
		Start: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 1 || days[0].Samples != 4 {
		t.Errorf("days = %+v", days)
	}
}

func TestListCycleAnalyses(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/cycle/analyses": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "3" {
				t.Errorf("limit=%q, want 3", got)
			}
			writeTestJSON(t, w, []models.CycleAnalysisRow{{Baseline: 36.5, Days: 28}})
		},
	})
	defer ts.Close()

	rows, err := NewHTTPClient(ts.URL).ListCycleAnalyses(context.Background(), 1, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Days != 28 {
		t.Errorf("rows = %+v", rows)
	}
}

// TestGetLatestMetrics verifies the latest endpoint is decoded as a flat array.
func TestGetLatestMetrics(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/metrics/latest": func(w http.ResponseWriter, _ *http.Request) {
			qty := 36.6
			writeTestJSON(t, w, []models.HealthMetricRow{{MetricName: "basal_body_temperature", Qty: &qty}})
		},
	})
	defer ts.Close()

	rows, err := NewHTTPClient(ts.URL).GetLatestMetrics(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].MetricName != "basal_body_temperature" {
		t.Errorf("rows = %+v", rows)
	}
}

// TestGetAllowedMetrics verifies the allowlist endpoint returns a flat array.
func TestGetAllowedMetrics(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/allowlist": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, []storage.AllowedMetric{
				{MetricName: "heart_rate_variability", Category: "cardio", Enabled: true},
			})
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	metrics, err := client.GetAllowedMetrics(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(metrics) != 1 {
		t.Fatalf("got %d metrics, want 1", len(metrics))
	}
	if metrics[0].MetricName != "heart_rate_variability" {
		t.Errorf("metric_name=%q, want heart_rate_variability", metrics[0].MetricName)
	}
}

// TestBucketToAgg verifies the bucket-to-agg mapping used for timeseries requests.
func TestBucketToAgg(t *testing.T) {
	cases := []struct {
		bucket string
		want   string
	}{
		{"1 hour", "hourly"},
		{"1 day", "daily"},
		{"1 week", "weekly"},
		{"1 month", "monthly"},
		{"", "daily"},
	}
	for _, tc := range cases {
		if got := bucketToAgg(tc.bucket); got != tc.want {
			t.Errorf("bucketToAgg(%q) = %q, want %q", tc.bucket, got, tc.want)
		}
	}
}

// TestHTTPClientServerError verifies the client returns an error on non-200 responses.
func TestHTTPClientServerError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/allowlist": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"database down"}`))
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL)
	if _, err := client.GetAllowedMetrics(context.Background()); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
