package analysis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/claude/cyclesense/internal/config"
	"github.com/claude/cyclesense/internal/cycle"
	"github.com/claude/cyclesense/internal/models"
)

type fakeSource struct {
	samples []models.CycleSample
	query   models.SampleQuery
	err     error
}

func (f *fakeSource) QueryCycleSamples(_ context.Context, _ int, q models.SampleQuery) ([]models.CycleSample, error) {
	f.query = q
	return f.samples, f.err
}

type fakeStore struct {
	analyses []models.CycleAnalysisRow
	phases   [][]models.CyclePhaseRow
}

func (f *fakeStore) InsertCycleAnalysis(_ context.Context, a models.CycleAnalysisRow, phases []models.CyclePhaseRow) error {
	f.analyses = append(f.analyses, a)
	f.phases = append(f.phases, phases)
	return nil
}

var origin = time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

func samples(temps ...float64) []models.CycleSample {
	out := make([]models.CycleSample, len(temps))
	for i, t := range temps {
		hrv := 40.0 + float64(i)
		out[i] = models.CycleSample{Time: origin.Add(time.Duration(i) * 24 * time.Hour), Temperature: t, HRVMs: &hrv}
	}
	return out
}

func newTestService(t *testing.T, src ReadingSource, store ResultStore, cfg config.CycleConfig) *Service {
	t.Helper()
	svc, err := New(src, store, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func ptr(v float64) *float64 { return &v }

// TestRunWithRequestBaseline verifies an explicit baseline wins and phases are
// reported in wall-clock time.
func TestRunWithRequestBaseline(t *testing.T) {
	src := &fakeSource{samples: samples(36.3, 36.3, 36.3, 36.7, 36.9, 37.1)}
	cfg := config.DefaultCycleConfig()
	cfg.Baseline = ptr(36.0)
	svc := newTestService(t, src, nil, cfg)

	res, err := svc.Run(context.Background(), Request{UserID: 1, Baseline: ptr(36.5)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Baseline != 36.5 || res.BaselineSource != BaselineRequest {
		t.Errorf("baseline = %g (%s), want 36.5 (request)", res.Baseline, res.BaselineSource)
	}
	if len(res.Phases) != 4 {
		t.Fatalf("phases = %d, want 4: %+v", len(res.Phases), res.Phases)
	}
	ov := res.Phases[3]
	if ov.Stage != cycle.Ovulation {
		t.Errorf("last stage = %v, want ovulation", ov.Stage)
	}
	if !ov.Start.Equal(origin.Add(3*24*time.Hour)) || !ov.End.Equal(origin.Add(5*24*time.Hour)) {
		t.Errorf("ovulation = %v..%v", ov.Start, ov.End)
	}
	if cur, ok := res.Current(); !ok || cur != ov {
		t.Errorf("Current() = %+v, %v", cur, ok)
	}
	if src.query.TemperatureMetric != "basal_body_temperature" || src.query.PairWindow != 2*time.Hour {
		t.Errorf("query = %+v", src.query)
	}
}

// TestRunUsesConfiguredBaseline verifies the config baseline applies when the
// request has none.
func TestRunUsesConfiguredBaseline(t *testing.T) {
	cfg := config.DefaultCycleConfig()
	cfg.Baseline = ptr(36.5)
	svc := newTestService(t, &fakeSource{samples: samples(36.3, 36.3)}, nil, cfg)

	res, err := svc.Run(context.Background(), Request{UserID: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.BaselineSource != BaselineConfig {
		t.Errorf("baseline source = %q, want config", res.BaselineSource)
	}
}

// TestRunDerivesCoverline verifies the baseline falls back to the mean of the
// leading days.
func TestRunDerivesCoverline(t *testing.T) {
	cfg := config.DefaultCycleConfig()
	cfg.BaselineWindow = 4
	svc := newTestService(t, &fakeSource{samples: samples(36.2, 36.4, 36.2, 36.4, 36.9, 36.9)}, nil, cfg)

	res, err := svc.Run(context.Background(), Request{UserID: 1})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if math.Abs(res.Baseline-36.3) > 1e-9 || res.BaselineSource != "mean" {
		t.Errorf("baseline = %g (%s), want 36.3 (mean)", res.Baseline, res.BaselineSource)
	}
	if len(res.Days) != 6 {
		t.Errorf("days = %d, want 6", len(res.Days))
	}
	if res.TrendPerDay == nil || *res.TrendPerDay <= 0 {
		t.Errorf("trend = %v, want positive", res.TrendPerDay)
	}
}

// TestRunNoBaseline verifies a short range without a baseline reports ErrNoBaseline.
func TestRunNoBaseline(t *testing.T) {
	svc := newTestService(t, &fakeSource{samples: samples(36.2, 36.4)}, nil, config.DefaultCycleConfig())

	_, err := svc.Run(context.Background(), Request{UserID: 1})
	if !errors.Is(err, ErrNoBaseline) {
		t.Errorf("err = %v, want ErrNoBaseline", err)
	}
}

// TestRunSourceError verifies source failures are wrapped and returned.
func TestRunSourceError(t *testing.T) {
	boom := errors.New("boom")
	svc := newTestService(t, &fakeSource{err: boom}, nil, config.DefaultCycleConfig())

	if _, err := svc.Run(context.Background(), Request{UserID: 1}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

// TestRunRejectsSubnormal verifies subnormal temperatures are counted and skipped.
func TestRunRejectsSubnormal(t *testing.T) {
	s := samples(36.3, 36.3, 36.3)
	s = append(s, models.CycleSample{Time: origin.Add(time.Hour), Temperature: 1e-310})
	svc := newTestService(t, &fakeSource{samples: s}, nil, config.DefaultCycleConfig())

	res, err := svc.Run(context.Background(), Request{UserID: 1, Baseline: ptr(36.5)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Rejected != 1 || res.Readings != 3 {
		t.Errorf("rejected = %d readings = %d, want 1 and 3", res.Rejected, res.Readings)
	}
}

// TestRunPersist verifies analyses and their phases are stored with one id.
func TestRunPersist(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, &fakeSource{samples: samples(36.9, 36.9, 36.9, 36.9, 36.3, 36.3)}, store, config.DefaultCycleConfig())

	res, err := svc.Run(context.Background(), Request{UserID: 7, Baseline: ptr(36.5), Persist: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ID == nil {
		t.Fatal("expected analysis id")
	}
	if len(store.analyses) != 1 {
		t.Fatalf("stored analyses = %d, want 1", len(store.analyses))
	}
	a := store.analyses[0]
	if a.ID != *res.ID || a.UserID != 7 || a.Baseline != 36.5 {
		t.Errorf("stored analysis = %+v", a)
	}
	phases := store.phases[0]
	if len(phases) != 3 {
		t.Fatalf("stored phases = %d, want 3", len(phases))
	}
	want := []string{"post_ovulation", "period_start", "pre_ovulation"}
	for i, p := range phases {
		if p.Stage != want[i] || p.Seq != i || p.AnalysisID != a.ID {
			t.Errorf("phase %d = %+v, want stage %s", i, p, want[i])
		}
	}
}

// TestRunPersistWithoutStore verifies persistence fails cleanly without a store.
func TestRunPersistWithoutStore(t *testing.T) {
	svc := newTestService(t, &fakeSource{samples: samples(36.3, 36.3)}, nil, config.DefaultCycleConfig())

	_, err := svc.Run(context.Background(), Request{UserID: 1, Baseline: ptr(36.5), Persist: true})
	if !errors.Is(err, ErrNoStore) {
		t.Errorf("err = %v, want ErrNoStore", err)
	}
}

// TestWithoutSource verifies Run and Daily fail cleanly on a Service that can
// only analyze caller-supplied readings.
func TestWithoutSource(t *testing.T) {
	svc := newTestService(t, nil, nil, config.DefaultCycleConfig())

	if _, err := svc.Run(context.Background(), Request{UserID: 1, Baseline: ptr(36.5)}); !errors.Is(err, ErrNoSource) {
		t.Errorf("Run err = %v, want ErrNoSource", err)
	}
	days, err := svc.Daily(context.Background(), Request{UserID: 1})
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("Daily err = %v, want ErrNoSource", err)
	}
	if days != nil {
		t.Errorf("Daily days = %v, want nil", days)
	}
}

// TestAnalyzeMerge verifies merged output joins adjacent post-ovulation segments.
func TestAnalyzeMerge(t *testing.T) {
	svc := newTestService(t, nil, nil, config.DefaultCycleConfig())
	readings, _ := ReadingsFromSamples(samples(36.2, 36.2, 36.2, 36.25, 36.4, 36.45, 36.65))

	raw, err := svc.Analyze(readings, ptr(36.0), false)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	merged, err := svc.Analyze(readings, ptr(36.0), true)
	if err != nil {
		t.Fatalf("Analyze merged: %v", err)
	}
	if len(raw.Phases) != 3 || len(merged.Phases) != 1 {
		t.Errorf("phases raw=%d merged=%d, want 3 and 1", len(raw.Phases), len(merged.Phases))
	}
}

// TestDailyHRV verifies the per-day HRV mean is attached to each day.
func TestDailyHRV(t *testing.T) {
	s := samples(36.3, 36.3)
	extra := 50.0
	s = append(s, models.CycleSample{Time: origin.Add(2 * time.Hour), Temperature: 36.4, HRVMs: &extra})
	svc := newTestService(t, &fakeSource{samples: s}, nil, config.DefaultCycleConfig())

	days, err := svc.Daily(context.Background(), Request{UserID: 1})
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("days = %d, want 2", len(days))
	}
	if days[0].HRVMs == nil || math.Abs(*days[0].HRVMs-45) > 1e-9 {
		t.Errorf("day 0 hrv = %v, want 45", days[0].HRVMs)
	}
	if days[1].HRVMs == nil || math.Abs(*days[1].HRVMs-41) > 1e-9 {
		t.Errorf("day 1 hrv = %v, want 41", days[1].HRVMs)
	}
}

// TestParamsFromConfig verifies configured thresholds override engine defaults.
func TestParamsFromConfig(t *testing.T) {
	cfg := config.DefaultCycleConfig()
	cfg.RiseDiff = 0.2
	p := Params(cfg)
	if p.RiseDiff != 0.2 {
		t.Errorf("rise diff = %g, want 0.2", p.RiseDiff)
	}
	if p.UpperBand != cycle.DefaultUpperBand {
		t.Errorf("upper band = %g, want default", p.UpperBand)
	}
}
