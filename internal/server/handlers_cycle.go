package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/claude/cyclesense/internal/analysis"
	"github.com/claude/cyclesense/internal/models"
)

// cycleRangeDays is the default lookback for cycle queries, long enough to
// cover a full cycle.
const cycleRangeDays = 60

// analyzeRequest is the body of POST /api/v1/cycle/analyze.
type analyzeRequest struct {
	Baseline *float64             `json:"baseline"`
	Merge    bool                 `json:"merge"`
	Readings []models.CycleSample `json:"readings"`
}

func (s *Server) handleCyclePhases(w http.ResponseWriter, r *http.Request) {
	req, ok := parseAnalysisRequest(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var err error
	if v := q.Get("persist"); v != "" {
		if req.Persist, err = strconv.ParseBool(v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid persist"})
			return
		}
	}
	if v := q.Get("merge"); v != "" {
		if req.Merge, err = strconv.ParseBool(v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid merge"})
			return
		}
	}

	res, err := s.analysis.Run(r.Context(), req)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCycleDaily(w http.ResponseWriter, r *http.Request) {
	req, ok := parseAnalysisRequest(w, r)
	if !ok {
		return
	}
	days, err := s.analysis.Daily(r.Context(), req)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

// handleAnalyze runs the engine on readings supplied in the body. Nothing
// is read from or written to the database.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var body analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	readings, rejected := analysis.ReadingsFromSamples(body.Readings)
	res, err := s.analysis.Analyze(readings, body.Baseline, body.Merge)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	res.Rejected = rejected
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrNoBaseline):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	case errors.Is(err, analysis.ErrNoStore):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		s.log.Error("cycle analysis failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// parseAnalysisRequest reads the range and baseline query parameters.
// It writes a 400 response and returns false on bad input.
func parseAnalysisRequest(w http.ResponseWriter, r *http.Request) (analysis.Request, bool) {
	start, end, err := parseTimeRange(r, cycleRangeDays)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return analysis.Request{}, false
	}
	req := analysis.Request{UserID: userIDFromContext(r), Start: start, End: end}
	if v := r.URL.Query().Get("baseline"); v != "" {
		b, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid baseline"})
			return analysis.Request{}, false
		}
		req.Baseline = &b
	}
	return req, true
}
