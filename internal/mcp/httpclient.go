package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/cyclesense/internal/analysis"
	"github.com/claude/cyclesense/internal/models"
	"github.com/claude/cyclesense/internal/storage"
)

// HTTPClient implements DataSource by calling the CycleSense REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// bucketToAgg maps MCP bucket values to REST API agg parameter values.
func bucketToAgg(bucket string) string {
	switch bucket {
	case "1 hour":
		return "hourly"
	case "1 day":
		return "daily"
	case "1 week":
		return "weekly"
	case "1 month":
		return "monthly"
	default:
		return "daily"
	}
}

// get fetches path and decodes the JSON response into out.
func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("httpclient: %s: %w", path, analysis.ErrNoBaseline)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func timeParams(start, end time.Time) url.Values {
	v := url.Values{}
	v.Set("start", start.Format(time.RFC3339))
	v.Set("end", end.Format(time.RFC3339))
	return v
}

func (c *HTTPClient) GetTimeSeries(ctx context.Context, metricName string, start, end time.Time, bucketSize string, _ int) ([]storage.TimeSeriesPoint, error) {
	params := timeParams(start, end)
	params.Set("metric", metricName)
	params.Set("agg", bucketToAgg(bucketSize))

	var points []storage.TimeSeriesPoint
	if err := c.get(ctx, "/api/v1/timeseries", params, &points); err != nil {
		return nil, err
	}
	return points, nil
}

func (c *HTTPClient) GetLatestMetrics(ctx context.Context, _ int) ([]models.HealthMetricRow, error) {
	var rows []models.HealthMetricRow
	if err := c.get(ctx, "/api/v1/metrics/latest", nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) GetAllowedMetrics(ctx context.Context) ([]storage.AllowedMetric, error) {
	var metrics []storage.AllowedMetric
	if err := c.get(ctx, "/api/v1/allowlist", nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

func (c *HTTPClient) ListCycleAnalyses(ctx context.Context, _ int, limit int) ([]models.CycleAnalysisRow, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var rows []models.CycleAnalysisRow
	if err := c.get(ctx, "/api/v1/cycle/analyses", params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) CyclePhases(ctx context.Context, req analysis.Request) (*analysis.Result, error) {
	params := timeParams(req.Start, req.End)
	if req.Baseline != nil {
		params.Set("baseline", strconv.FormatFloat(*req.Baseline, 'f', -1, 64))
	}
	params.Set("merge", strconv.FormatBool(req.Merge))
	if req.Persist {
		params.Set("persist", "true")
	}

	var res analysis.Result
	if err := c.get(ctx, "/api/v1/cycle/phases", params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *HTTPClient) DailyTemperatures(ctx context.Context, req analysis.Request) ([]analysis.Day, error) {
	var days []analysis.Day
	if err := c.get(ctx, "/api/v1/cycle/daily", timeParams(req.Start, req.End), &days); err != nil {
		return nil, err
	}
	return days, nil
}
