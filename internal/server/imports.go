package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/claude/cyclesense/internal/ingest"
	"github.com/claude/cyclesense/internal/storage"
)

// importLogFor summarizes an ingest outcome as an import_logs row.
func importLogFor(uid int, source string, result *ingest.Result, importErr error, took time.Duration) storage.ImportLog {
	ms := int(took.Milliseconds())
	log := storage.ImportLog{
		UserID:     uid,
		Source:     source,
		Status:     "success",
		DurationMs: &ms,
	}
	if importErr != nil {
		log.Status = "error"
		msg := importErr.Error()
		log.ErrorMessage = &msg
	}
	if result == nil {
		return log
	}

	log.MetricsReceived = result.MetricsReceived + result.MetricsRejected
	log.SamplesReceived = result.MetricsReceived
	log.SamplesInserted = result.MetricsInserted
	if len(result.RejectedNames) > 0 || result.LinesSkipped > 0 {
		meta, err := json.Marshal(map[string]any{
			"rejected_names": result.RejectedNames,
			"lines_skipped":  result.LinesSkipped,
		})
		if err == nil {
			raw := json.RawMessage(meta)
			log.Metadata = &raw
		}
	}
	return log
}

// logImport records an import operation's result to the import_logs table.
func (s *Server) logImport(uid int, source string, result *ingest.Result, importErr error, took time.Duration) {
	if s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.db.InsertImportLog(ctx, importLogFor(uid, source, result, importErr, took)); err != nil {
		s.log.Error("failed to log import", "source", source, "error", err)
	}
}
