package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("CycleSense", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("CycleSense cycle tracking server. Infers menstrual cycle phases from basal body temperature and HRV. All data is scoped to the authenticated user. Phase estimates are not medical advice."),
	)

	h := &handlers{ds: ds, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolGetCyclePhases, Handler: h.getCyclePhases},
		server.ServerTool{Tool: toolGetDailyTemperatures, Handler: h.getDailyTemperatures},
		server.ServerTool{Tool: toolGetHealthMetrics, Handler: h.getHealthMetrics},
		server.ServerTool{Tool: toolListAvailableMetrics, Handler: h.listAvailableMetrics},
		server.ServerTool{Tool: toolListCycleAnalyses, Handler: h.listCycleAnalyses},
	)

	s.AddResources(
		server.ServerResource{Resource: resCurrentPhase, Handler: h.currentPhase},
		server.ServerResource{Resource: resMetricCatalog, Handler: h.metricCatalog},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resCurrentPhase = mcp.NewResource(
	"cyclesense://current_phase",
	"Current Phase",
	mcp.WithResourceDescription("The most recent inferred cycle phase from the last 60 days of temperature data"),
	mcp.WithMIMEType("application/json"),
)

var resMetricCatalog = mcp.NewResource(
	"cyclesense://metric_catalog",
	"Metric Catalog",
	mcp.WithResourceDescription("All available health metrics with categories and enabled status"),
	mcp.WithMIMEType("application/json"),
)
