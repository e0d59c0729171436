package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"tailscale.com/client/local"

	"github.com/claude/cyclesense/internal/analysis"
	"github.com/claude/cyclesense/internal/ingest/hae"
	"github.com/claude/cyclesense/internal/ingest/wearable"
	"github.com/claude/cyclesense/internal/storage"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	db       *storage.DB
	analysis *analysis.Service
	hae      *hae.Provider
	wearable *wearable.Provider
	log      *slog.Logger
	apiKey   string
	router   chi.Router

	// identity attaches the caller's user to the request.
	identity func(http.Handler) http.Handler
}

// New creates a new Server with all routes configured.
func New(db *storage.DB, svc *analysis.Service, haeProvider *hae.Provider, wearableProvider *wearable.Provider, apiKey string, log *slog.Logger) *Server {
	s := &Server{
		db:       db,
		analysis: svc,
		hae:      haeProvider,
		wearable: wearableProvider,
		log:      log,
		apiKey:   apiKey,
		router:   chi.NewRouter(),
		identity: DevIdentity,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// SetTailscale switches identity resolution from the dev user to
// Tailscale WhoIs lookups.
func (s *Server) SetTailscale(lc *local.Client) {
	s.identity = TailscaleIdentity(lc, s.db, s.log)
}

// SetDevUser maps every request to the given users row.
func (s *Server) SetDevUser(id int, login string) {
	s.identity = StaticIdentity(id, UserInfo{Login: login, DisplayName: devUser.DisplayName})
}

// MountMCP serves an MCP handler at /mcp behind the identity middleware.
func (s *Server) MountMCP(h http.Handler) {
	s.router.With(s.identify).Handle("/mcp", h)
}

func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.identity(next).ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identify)

		// Ingest endpoints (API key required)
		r.Route("/ingest", func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Post("/", s.handleHAEIngest)
			r.Post("/wearable", s.handleWearableIngest)
		})

		r.Route("/cycle", func(r chi.Router) {
			r.Get("/phases", s.handleCyclePhases)
			r.Get("/daily", s.handleCycleDaily)
			r.Post("/analyze", s.handleAnalyze)
			r.Get("/analyses", s.handleListAnalyses)
			r.Get("/analyses/{id}", s.handleGetAnalysis)
		})

		r.Get("/me", s.handleMe)
		r.Get("/metrics/latest", s.handleLatestMetrics)
		r.Get("/metrics", s.handleQueryMetrics)
		r.Get("/timeseries", s.handleTimeSeries)
		r.Get("/allowlist", s.handleAllowlist)
		r.Get("/stats", s.handleStats)
		r.Get("/import-logs", s.handleImportLogs)
	})
}
