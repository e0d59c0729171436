package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/cyclesense/internal/analysis"
)

// defaultTimeRange returns start/end, defaulting to the given lookback.
func defaultTimeRange(startStr, endStr string, days int) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -days)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolGetCyclePhases = mcp.NewTool("get_cycle_phases",
	mcp.WithDescription("Infer menstrual cycle phases (pre_ovulation, ovulation, post_ovulation, period_start) from basal body temperature. Returns the baseline used, per-day reference temperatures and the phase segments."),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 60 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
	mcp.WithNumber("baseline", mcp.Description("Baseline (coverline) temperature in Celsius. Defaults to the configured or derived coverline.")),
	mcp.WithBoolean("merge", mcp.Description("Merge adjacent segments of the same phase. Defaults to true.")),
)

var toolGetDailyTemperatures = mcp.NewTool("get_daily_temperatures",
	mcp.WithDescription("Daily reference temperatures (mean of the lowest quarter of each day's readings) with the day's mean HRV."),
	mcp.WithString("start", mcp.Description("Start date. Defaults to 60 days ago.")),
	mcp.WithString("end", mcp.Description("End date. Defaults to now.")),
)

var toolGetHealthMetrics = mcp.NewTool("get_health_metrics",
	mcp.WithDescription("Retrieve time-bucketed health metrics. Returns aggregated data points (avg/min/max/count) per time bucket."),
	mcp.WithString("metric", mcp.Required(), mcp.Description("Metric name (e.g. basal_body_temperature, heart_rate_variability, resting_heart_rate)")),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
	mcp.WithString("bucket", mcp.Description("Time bucket size. Defaults to '1 day'."), mcp.Enum("1 hour", "1 day", "1 week", "1 month")),
)

var toolListAvailableMetrics = mcp.NewTool("list_available_metrics",
	mcp.WithDescription("List all available health metrics with their categories and enabled status."),
)

var toolListCycleAnalyses = mcp.NewTool("list_cycle_analyses",
	mcp.WithDescription("List saved cycle analysis snapshots, newest first."),
	mcp.WithNumber("limit", mcp.Description("Maximum number of analyses. Defaults to 20.")),
)

// --- Tool handlers ---

func (h *handlers) getCyclePhases(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), currentPhaseDays)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	areq := analysis.Request{
		UserID: UserIDFromContext(ctx),
		Start:  start,
		End:    end,
		Merge:  req.GetBool("merge", true),
	}
	if _, ok := req.GetArguments()["baseline"]; ok {
		b := req.GetFloat("baseline", 0)
		areq.Baseline = &b
	}

	res, err := h.ds.CyclePhases(ctx, areq)
	if errors.Is(err, analysis.ErrNoBaseline) {
		return mcp.NewToolResultError("not enough data to derive a baseline; pass one explicitly"), nil
	}
	if err != nil {
		h.log.Error("mcp get_cycle_phases", "error", err)
		return mcp.NewToolResultError("analysis failed: " + err.Error()), nil
	}

	return jsonResult(res)
}

func (h *handlers) getDailyTemperatures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), currentPhaseDays)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	days, err := h.ds.DailyTemperatures(ctx, analysis.Request{
		UserID: UserIDFromContext(ctx),
		Start:  start,
		End:    end,
	})
	if err != nil {
		h.log.Error("mcp get_daily_temperatures", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	return jsonResult(days)
}

func (h *handlers) getHealthMetrics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metric, err := req.RequireString("metric")
	if err != nil {
		return mcp.NewToolResultError("metric parameter is required"), nil
	}

	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""), 7)
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	bucket := req.GetString("bucket", "1 day")
	points, err := h.ds.GetTimeSeries(ctx, metric, start, end, bucket, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_health_metrics", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	return jsonResult(points)
}

func (h *handlers) listAvailableMetrics(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metrics, err := h.ds.GetAllowedMetrics(ctx)
	if err != nil {
		h.log.Error("mcp list_available_metrics", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(metrics)
}

func (h *handlers) listCycleAnalyses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	rows, err := h.ds.ListCycleAnalyses(ctx, UserIDFromContext(ctx), limit)
	if err != nil {
		h.log.Error("mcp list_cycle_analyses", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(rows)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
