package storage

import (
	"context"
	"fmt"
	"time"
)

// DataStats holds aggregate statistics about all stored data.
type DataStats struct {
	TotalMetricRows int64        `json:"total_metric_rows"`
	TotalAnalyses   int64        `json:"total_analyses"`
	EarliestData    *time.Time   `json:"earliest_data"`
	LatestData      *time.Time   `json:"latest_data"`
	MetricCounts    []MetricStat `json:"metric_counts"`
}

// MetricStat holds summary stats for a single metric.
type MetricStat struct {
	Name     string    `json:"name"`
	Count    int64     `json:"count"`
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// GetDataStats returns aggregate statistics for a user's stored data.
func (db *DB) GetDataStats(ctx context.Context, userID int) (*DataStats, error) {
	stats := &DataStats{}

	err := db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), MIN(time), MAX(time) FROM health_metrics WHERE user_id = $1`, userID,
	).Scan(&stats.TotalMetricRows, &stats.EarliestData, &stats.LatestData)
	if err != nil {
		return nil, fmt.Errorf("counting metrics: %w", err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM cycle_analyses WHERE user_id = $1`, userID,
	).Scan(&stats.TotalAnalyses)
	if err != nil {
		return nil, fmt.Errorf("counting analyses: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT metric_name, COUNT(*), MIN(time), MAX(time)
		 FROM health_metrics
		 WHERE user_id = $1
		 GROUP BY metric_name
		 ORDER BY COUNT(*) DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying metric counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s MetricStat
		if err := rows.Scan(&s.Name, &s.Count, &s.Earliest, &s.Latest); err != nil {
			return nil, fmt.Errorf("scanning metric stat: %w", err)
		}
		stats.MetricCounts = append(stats.MetricCounts, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
