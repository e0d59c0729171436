package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/cyclesense/internal/analysis"
)

// currentPhaseDays is the lookback used for the current_phase resource.
const currentPhaseDays = 60

func (h *handlers) currentPhase(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	end := time.Now()
	res, err := h.ds.CyclePhases(ctx, analysis.Request{
		UserID: UserIDFromContext(ctx),
		Start:  end.AddDate(0, 0, -currentPhaseDays),
		End:    end,
		Merge:  true,
	})
	if err != nil {
		return nil, err
	}

	summary := map[string]any{
		"baseline":        res.Baseline,
		"baseline_source": res.BaselineSource,
		"days":            len(res.Days),
	}
	if phase, ok := res.Current(); ok {
		summary["phase"] = phase
	}
	if len(res.Days) > 0 {
		summary["latest_day"] = res.Days[len(res.Days)-1]
	}

	return jsonContents(req.Params.URI, summary)
}

func (h *handlers) metricCatalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	metrics, err := h.ds.GetAllowedMetrics(ctx)
	if err != nil {
		return nil, err
	}
	return jsonContents(req.Params.URI, metrics)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
