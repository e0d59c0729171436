package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/claude/cyclesense/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CycleAnalysis is a stored analysis with its phases.
type CycleAnalysis struct {
	models.CycleAnalysisRow
	Phases []models.CyclePhaseRow `json:"phases"`
}

// InsertCycleAnalysis stores an analysis and its phases in one transaction.
func (db *DB) InsertCycleAnalysis(ctx context.Context, a models.CycleAnalysisRow, phases []models.CyclePhaseRow) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO cycle_analyses (id, user_id, created_at, range_start, range_end, baseline,
		 baseline_source, readings, rejected, days, merged)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		a.ID, a.UserID, a.CreatedAt, a.RangeStart, a.RangeEnd, a.Baseline,
		a.BaselineSource, a.Readings, a.Rejected, a.Days, a.Merged)
	if err != nil {
		return fmt.Errorf("inserting cycle analysis: %w", err)
	}

	if len(phases) > 0 {
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"cycle_phases"},
			[]string{"analysis_id", "user_id", "seq", "stage", "start_time", "end_time"},
			pgx.CopyFromSlice(len(phases), func(i int) ([]any, error) {
				p := phases[i]
				return []any{p.AnalysisID, p.UserID, p.Seq, p.Stage, p.StartTime, p.EndTime}, nil
			}))
		if err != nil {
			return fmt.Errorf("copying cycle phases: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing cycle analysis: %w", err)
	}
	return nil
}

const cycleAnalysisColumns = `id, user_id, created_at, range_start, range_end, baseline,
	baseline_source, readings, rejected, days, merged`

func scanCycleAnalysis(row pgx.Row) (models.CycleAnalysisRow, error) {
	var a models.CycleAnalysisRow
	err := row.Scan(&a.ID, &a.UserID, &a.CreatedAt, &a.RangeStart, &a.RangeEnd, &a.Baseline,
		&a.BaselineSource, &a.Readings, &a.Rejected, &a.Days, &a.Merged)
	return a, err
}

// ListCycleAnalyses returns the most recent analyses of a user without phases.
func (db *DB) ListCycleAnalyses(ctx context.Context, userID, limit int) ([]models.CycleAnalysisRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+cycleAnalysisColumns+`
		 FROM cycle_analyses
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying cycle analyses: %w", err)
	}
	defer rows.Close()

	var result []models.CycleAnalysisRow
	for rows.Next() {
		a, err := scanCycleAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning cycle analysis: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// GetCycleAnalysis returns one analysis with its phases. Analyses of other
// users are reported as ErrNotFound.
func (db *DB) GetCycleAnalysis(ctx context.Context, userID int, id uuid.UUID) (*CycleAnalysis, error) {
	a, err := scanCycleAnalysis(db.Pool.QueryRow(ctx,
		`SELECT `+cycleAnalysisColumns+` FROM cycle_analyses WHERE id = $1 AND user_id = $2`,
		id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying cycle analysis %s: %w", id, err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT analysis_id, user_id, seq, stage, start_time, end_time
		 FROM cycle_phases
		 WHERE analysis_id = $1
		 ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("querying cycle phases: %w", err)
	}
	defer rows.Close()

	out := &CycleAnalysis{CycleAnalysisRow: a}
	for rows.Next() {
		var p models.CyclePhaseRow
		if err := rows.Scan(&p.AnalysisID, &p.UserID, &p.Seq, &p.Stage, &p.StartTime, &p.EndTime); err != nil {
			return nil, fmt.Errorf("scanning cycle phase: %w", err)
		}
		out.Phases = append(out.Phases, p)
	}
	return out, rows.Err()
}
