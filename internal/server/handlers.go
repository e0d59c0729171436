package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/cyclesense/internal/models"
	"github.com/claude/cyclesense/internal/storage"
)

// maxUploadBytes caps wearable CSV bodies.
const maxUploadBytes = 32 << 20

func (s *Server) handleHAEIngest(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	uid := userIDFromContext(r)

	var payload models.HAEPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	result, err := s.hae.Ingest(r.Context(), &payload, uid)
	go s.logImport(uid, storage.SourceHAERest, result, err, time.Since(started))
	if err != nil {
		s.log.Error("ingest error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleWearableIngest(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	uid := userIDFromContext(r)

	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		var err error
		if loc, err = time.LoadLocation(tz); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tz: " + err.Error()})
			return
		}
	}

	result, err := s.wearable.Ingest(r.Context(), http.MaxBytesReader(w, r.Body, maxUploadBytes), loc, uid)
	go s.logImport(uid, storage.SourceWearableCSV, result, err, time.Since(started))
	if err != nil {
		s.log.Error("wearable ingest error", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleLatestMetrics(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.GetLatestMetrics(r.Context(), userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleQueryMetrics(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name parameter required"})
		return
	}

	start, end, err := parseTimeRange(r, defaultRangeDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	rows, err := s.db.QueryHealthMetrics(r.Context(), name, start, end, userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "metric parameter required"})
		return
	}

	start, end, err := parseTimeRange(r, defaultRangeDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	bucket, ok := bucketForAgg(r.URL.Query().Get("agg"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agg must be hourly, daily, weekly or monthly"})
		return
	}

	points, err := s.db.GetTimeSeries(r.Context(), metric, start, end, bucket, userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleAllowlist(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.db.GetAllowedMetrics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.db.GetDataStats(r.Context(), userIDFromContext(r))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.db.QueryImportLogs(r.Context(), userIDFromContext(r), parseLimit(r, 50))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.ListCycleAnalyses(r.Context(), userIDFromContext(r), parseLimit(r, 20))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid analysis ID"})
		return
	}

	a, err := s.db.GetCycleAnalysis(r.Context(), userIDFromContext(r), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "analysis not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// defaultRangeDays is the lookback used when no start is given.
const defaultRangeDays = 7

func parseTimeRange(r *http.Request, days int) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}

	if startStr == "" {
		start = end.AddDate(0, 0, -days)
		return
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return
}

func parseLimit(r *http.Request, def int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

// bucketForAgg maps the agg query parameter to a time_bucket interval.
func bucketForAgg(agg string) (string, bool) {
	switch agg {
	case "hourly":
		return "1 hour", true
	case "daily", "":
		return "1 day", true
	case "weekly":
		return "1 week", true
	case "monthly":
		return "1 month", true
	}
	return "", false
}
