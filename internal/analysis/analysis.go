// Package analysis runs the cycle engine over stored samples and records
// the results.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/claude/cyclesense/internal/config"
	"github.com/claude/cyclesense/internal/coverline"
	"github.com/claude/cyclesense/internal/cycle"
	"github.com/claude/cyclesense/internal/models"
)

// Baseline sources reported in Result.BaselineSource.
const (
	BaselineRequest = "request"
	BaselineConfig  = "config"
)

var (
	// ErrNoBaseline is returned when no baseline was supplied and too few
	// days exist to derive one.
	ErrNoBaseline = errors.New("no baseline available")
	// ErrNoStore is returned when persistence is requested without a store.
	ErrNoStore = errors.New("analysis store not configured")
	// ErrNoSource is returned by Run and Daily on a Service built without
	// a reading source.
	ErrNoSource = errors.New("analysis source not configured")
)

// ReadingSource loads paired temperature/HRV samples for a user.
type ReadingSource interface {
	QueryCycleSamples(ctx context.Context, userID int, q models.SampleQuery) ([]models.CycleSample, error)
}

// ResultStore persists analysis snapshots.
type ResultStore interface {
	InsertCycleAnalysis(ctx context.Context, a models.CycleAnalysisRow, phases []models.CyclePhaseRow) error
}

// Request describes one analysis run.
type Request struct {
	UserID int
	Start  time.Time
	End    time.Time
	// Baseline overrides the configured or derived baseline when set.
	Baseline *float64
	Persist  bool
	// Merge joins adjacent segments of the same stage for display.
	Merge bool
}

// Phase is a phase segment in wall-clock time.
type Phase struct {
	Stage cycle.Stage `json:"stage"`
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
}

// Day is one aggregated day with its provisional classification.
type Day struct {
	Start       time.Time `json:"start"`
	LastReading time.Time `json:"last_reading"`
	Temperature float64   `json:"temperature"`
	Samples     int       `json:"samples"`
	Kind        string    `json:"kind,omitempty"`
	// HRVMs is the mean HRV of the day's readings that carried one.
	HRVMs *float64 `json:"hrv_ms,omitempty"`
}

// Result is the outcome of an analysis.
type Result struct {
	ID             *uuid.UUID `json:"id,omitempty"`
	Baseline       float64    `json:"baseline"`
	BaselineSource string     `json:"baseline_source"`
	Readings       int        `json:"readings"`
	Rejected       int        `json:"rejected"`
	TrendPerDay    *float64   `json:"trend_per_day,omitempty"`
	Days           []Day      `json:"days"`
	Phases         []Phase    `json:"phases"`
}

// Current returns the most recent phase, if any.
func (r *Result) Current() (Phase, bool) {
	if len(r.Phases) == 0 {
		return Phase{}, false
	}
	return r.Phases[len(r.Phases)-1], true
}

// Service wires the engine to storage.
type Service struct {
	source   ReadingSource
	store    ResultStore
	cfg      config.CycleConfig
	detector *cycle.Detector
	logger   *slog.Logger
}

// New creates a Service. store may be nil when persistence is not needed.
func New(source ReadingSource, store ResultStore, cfg config.CycleConfig, logger *slog.Logger) (*Service, error) {
	detector, err := cycle.NewDetector(Params(cfg))
	if err != nil {
		return nil, fmt.Errorf("building detector: %w", err)
	}
	return &Service{
		source:   source,
		store:    store,
		cfg:      cfg,
		detector: detector,
		logger:   logger,
	}, nil
}

// Params builds engine parameters from config, falling back to the
// defaults for unset fields.
func Params(cfg config.CycleConfig) cycle.Params {
	p := cycle.DefaultParams()
	if cfg.QuartileFraction > 0 {
		p.QuartileFraction = cfg.QuartileFraction
	}
	if cfg.RiseDiff > 0 {
		p.RiseDiff = cfg.RiseDiff
	}
	if cfg.LowerBand > 0 {
		p.LowerBand = cfg.LowerBand
	}
	if cfg.UpperBand > 0 {
		p.UpperBand = cfg.UpperBand
	}
	return p
}

// Run loads the user's samples for the requested range and analyzes them.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}
	samples, err := s.source.QueryCycleSamples(ctx, req.UserID, models.SampleQuery{
		Start:             req.Start,
		End:               req.End,
		TemperatureMetric: s.cfg.TemperatureMetric,
		HRVMetric:         s.cfg.HRVMetric,
		PairWindow:        s.cfg.HRVPairWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("loading cycle samples: %w", err)
	}

	readings, rejected := ReadingsFromSamples(samples)
	if rejected > 0 {
		s.logger.Warn("skipped subnormal temperature samples", "user_id", req.UserID, "count", rejected)
	}

	res, err := s.analyze(readings, req.Baseline, req.Merge)
	if err != nil {
		return nil, err
	}
	res.Rejected = rejected

	if req.Persist {
		if err := s.persist(ctx, req, res); err != nil {
			return nil, err
		}
	}

	s.logger.Info("cycle analysis complete",
		"user_id", req.UserID,
		"readings", res.Readings,
		"days", len(res.Days),
		"phases", len(res.Phases),
		"baseline", res.Baseline,
		"baseline_source", res.BaselineSource,
	)
	return res, nil
}

// Analyze runs the pipeline on caller-supplied readings without storage.
func (s *Service) Analyze(readings []cycle.Reading, baseline *float64, merge bool) (*Result, error) {
	return s.analyze(readings, baseline, merge)
}

func (s *Service) analyze(readings []cycle.Reading, baseline *float64, merge bool) (*Result, error) {
	params := s.detector.Params()
	res := &Result{Readings: len(readings)}

	days := cycle.Aggregate(readings, params)
	b, source, err := s.resolveBaseline(days, baseline)
	if err != nil {
		return nil, err
	}
	res.Baseline = b
	res.BaselineSource = source

	report := s.detector.Run(readings, b)
	periods := report.Periods
	if merge {
		periods = cycle.MergeAdjacent(periods, params.DayLength)
	}

	hrv := dailyHRV(readings, report.Days)
	res.Days = make([]Day, len(report.Days))
	for i, d := range report.Days {
		res.Days[i] = Day{
			Start:       cycle.TimeOf(d.Start),
			LastReading: cycle.TimeOf(d.End),
			Temperature: d.Temperature,
			Samples:     d.Samples,
			Kind:        report.Kinds[i].Kind.String(),
			HRVMs:       hrv[i],
		}
	}
	res.Phases = make([]Phase, len(periods))
	for i, p := range periods {
		res.Phases[i] = Phase{Stage: p.Stage, Start: cycle.TimeOf(p.Start), End: cycle.TimeOf(p.End)}
	}
	if slope, err := coverline.Trend(report.Days); err == nil {
		res.TrendPerDay = &slope
	}
	return res, nil
}

// Daily returns only the aggregated days for the requested range.
func (s *Service) Daily(ctx context.Context, req Request) ([]Day, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}
	samples, err := s.source.QueryCycleSamples(ctx, req.UserID, models.SampleQuery{
		Start:             req.Start,
		End:               req.End,
		TemperatureMetric: s.cfg.TemperatureMetric,
		HRVMetric:         s.cfg.HRVMetric,
		PairWindow:        s.cfg.HRVPairWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("loading cycle samples: %w", err)
	}
	readings, _ := ReadingsFromSamples(samples)
	days := cycle.Aggregate(readings, s.detector.Params())
	hrv := dailyHRV(readings, days)

	out := make([]Day, len(days))
	for i, d := range days {
		out[i] = Day{
			Start:       cycle.TimeOf(d.Start),
			LastReading: cycle.TimeOf(d.End),
			Temperature: d.Temperature,
			Samples:     d.Samples,
			HRVMs:       hrv[i],
		}
	}
	return out, nil
}

// resolveBaseline picks the request value, then the configured value, then
// a coverline derived from the leading days.
func (s *Service) resolveBaseline(days []cycle.DailyReference, requested *float64) (float64, string, error) {
	if requested != nil {
		return *requested, BaselineRequest, nil
	}
	if s.cfg.Baseline != nil {
		return *s.cfg.Baseline, BaselineConfig, nil
	}

	method := s.cfg.BaselineMethod
	if method == "" {
		method = coverline.MethodMean
	}
	b, err := coverline.Compute(method, days, s.cfg.BaselineWindow)
	if err != nil {
		if errors.Is(err, coverline.ErrNotEnoughDays) {
			return 0, "", fmt.Errorf("%w: %w", ErrNoBaseline, err)
		}
		return 0, "", fmt.Errorf("deriving baseline: %w", err)
	}
	return b, method, nil
}

func (s *Service) persist(ctx context.Context, req Request, res *Result) error {
	if s.store == nil {
		return ErrNoStore
	}

	id := uuid.New()
	row := models.CycleAnalysisRow{
		ID:             id,
		UserID:         req.UserID,
		CreatedAt:      time.Now().UTC(),
		RangeStart:     req.Start,
		RangeEnd:       req.End,
		Baseline:       res.Baseline,
		BaselineSource: res.BaselineSource,
		Readings:       res.Readings,
		Rejected:       res.Rejected,
		Days:           len(res.Days),
		Merged:         req.Merge,
	}
	phases := make([]models.CyclePhaseRow, len(res.Phases))
	for i, p := range res.Phases {
		phases[i] = models.CyclePhaseRow{
			AnalysisID: id,
			UserID:     req.UserID,
			Seq:        i,
			Stage:      p.Stage.String(),
			StartTime:  p.Start,
			EndTime:    p.End,
		}
	}

	if err := s.store.InsertCycleAnalysis(ctx, row, phases); err != nil {
		return fmt.Errorf("persisting analysis: %w", err)
	}
	res.ID = &id
	return nil
}

// ReadingsFromSamples converts stored samples into engine readings.
// Samples whose temperature is subnormal are skipped and counted.
func ReadingsFromSamples(samples []models.CycleSample) ([]cycle.Reading, int) {
	readings := make([]cycle.Reading, 0, len(samples))
	var rejected int
	for _, s := range samples {
		temp, err := cycle.NewNormal(s.Temperature)
		if err != nil {
			rejected++
			continue
		}
		r := cycle.Reading{Temperature: temp, Timestamp: cycle.TimestampOf(s.Time)}
		if s.HRVMs != nil {
			r.HRV = time.Duration(*s.HRVMs * float64(time.Millisecond))
		}
		readings = append(readings, r)
	}
	return readings, rejected
}

// dailyHRV averages the non-zero HRV values of the readings that fall
// between a day's start and its last reading.
func dailyHRV(readings []cycle.Reading, days []cycle.DailyReference) []*float64 {
	out := make([]*float64, len(days))
	if len(days) == 0 {
		return out
	}
	sums := make([]float64, len(days))
	counts := make([]int, len(days))
	for _, r := range readings {
		if r.HRV <= 0 || r.Timestamp < days[0].Start {
			continue
		}
		for i, d := range days {
			if r.Timestamp >= d.Start && r.Timestamp <= d.End {
				sums[i] += float64(r.HRV) / float64(time.Millisecond)
				counts[i]++
				break
			}
		}
	}
	for i := range days {
		if counts[i] > 0 {
			mean := sums[i] / float64(counts[i])
			out[i] = &mean
		}
	}
	return out
}
