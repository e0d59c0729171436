package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/claude/cyclesense/internal/models"
	"github.com/jackc/pgx/v5"
)

const healthMetricColumns = 9

// maxInsertRows keeps a batch under PostgreSQL's 65535 bind parameter limit.
const maxInsertRows = 5000

// InsertHealthMetrics batch-inserts health metric rows. Returns the number actually inserted
// (skipped duplicates via ON CONFLICT DO NOTHING).
func (db *DB) InsertHealthMetrics(ctx context.Context, rows []models.HealthMetricRow) (int64, error) {
	var total int64
	for start := 0; start < len(rows); start += maxInsertRows {
		end := min(start+maxInsertRows, len(rows))
		n, err := db.insertHealthMetricBatch(ctx, rows[start:end])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (db *DB) insertHealthMetricBatch(ctx context.Context, rows []models.HealthMetricRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	args := make([]any, 0, len(rows)*healthMetricColumns)
	for _, r := range rows {
		args = append(args, r.Time, r.UserID, r.MetricName, r.Source, r.Units,
			r.Qty, r.MinVal, r.AvgVal, r.MaxVal)
	}
	query := `INSERT INTO health_metrics (time, user_id, metric_name, source, units, qty, min_val, avg_val, max_val)
VALUES ` + valuesList(len(rows), healthMetricColumns) + ` ON CONFLICT DO NOTHING`

	tag, err := db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting health metrics: %w", err)
	}
	return tag.RowsAffected(), nil
}

// QueryHealthMetrics retrieves health metrics by name and time range.
func (db *DB) QueryHealthMetrics(ctx context.Context, metricName string, start, end time.Time, userID int) ([]models.HealthMetricRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT time, user_id, metric_name, source, units, qty, min_val, avg_val, max_val
		 FROM health_metrics
		 WHERE metric_name = $1 AND time >= $2 AND time < $3 AND user_id = $4
		 ORDER BY time ASC`,
		metricName, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying health metrics: %w", err)
	}
	defer rows.Close()

	return scanHealthMetricRows(rows)
}

// GetLatestMetrics returns the most recent data point for each metric.
func (db *DB) GetLatestMetrics(ctx context.Context, userID int) ([]models.HealthMetricRow, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT DISTINCT ON (metric_name) time, user_id, metric_name, source, units, qty, min_val, avg_val, max_val
		 FROM health_metrics
		 WHERE user_id = $1
		 ORDER BY metric_name, time DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying latest metrics: %w", err)
	}
	defer rows.Close()

	return scanHealthMetricRows(rows)
}

// QueryCycleSamples returns the temperature samples of a range, each paired
// with the closest HRV sample no further than q.PairWindow away.
func (db *DB) QueryCycleSamples(ctx context.Context, userID int, q models.SampleQuery) ([]models.CycleSample, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT t.time, COALESCE(t.qty, t.avg_val) AS temperature, h.hrv
		 FROM health_metrics t
		 LEFT JOIN LATERAL (
			SELECT COALESCE(m.qty, m.avg_val) AS hrv
			FROM health_metrics m
			WHERE m.user_id = t.user_id AND m.metric_name = $2
			  AND m.time BETWEEN t.time - $5 * INTERVAL '1 second' AND t.time + $5 * INTERVAL '1 second'
			ORDER BY ABS(EXTRACT(EPOCH FROM (m.time - t.time)))
			LIMIT 1
		 ) h ON true
		 WHERE t.user_id = $1 AND t.metric_name = $3 AND t.time >= $4 AND t.time < $6
		   AND COALESCE(t.qty, t.avg_val) IS NOT NULL
		 ORDER BY t.time ASC`,
		userID, q.HRVMetric, q.TemperatureMetric, q.Start, q.PairWindow.Seconds(), q.End)
	if err != nil {
		return nil, fmt.Errorf("querying cycle samples: %w", err)
	}
	defer rows.Close()

	var result []models.CycleSample
	for rows.Next() {
		var s models.CycleSample
		if err := rows.Scan(&s.Time, &s.Temperature, &s.HRVMs); err != nil {
			return nil, fmt.Errorf("scanning cycle sample: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// GetTimeSeries returns aggregated time-series data using time_bucket.
// bucketSize should be a PostgreSQL interval like '1 day', '1 hour'.
func (db *DB) GetTimeSeries(ctx context.Context, metricName string, start, end time.Time, bucketSize string, userID int) ([]TimeSeriesPoint, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT time_bucket($1::interval, time) AS bucket,
		        AVG(COALESCE(qty, avg_val)) AS avg_val,
		        MIN(COALESCE(qty, min_val)) AS min_val,
		        MAX(COALESCE(qty, max_val)) AS max_val,
		        COUNT(*) AS count
		 FROM health_metrics
		 WHERE metric_name = $2 AND time >= $3 AND time < $4 AND user_id = $5
		 GROUP BY bucket
		 ORDER BY bucket ASC`,
		bucketSize, metricName, start, end, userID)
	if err != nil {
		return nil, fmt.Errorf("querying time series: %w", err)
	}
	defer rows.Close()

	var result []TimeSeriesPoint
	for rows.Next() {
		var p TimeSeriesPoint
		if err := rows.Scan(&p.Time, &p.Avg, &p.Min, &p.Max, &p.Count); err != nil {
			return nil, fmt.Errorf("scanning time series: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// TimeSeriesPoint is an aggregated data point.
type TimeSeriesPoint struct {
	Time  time.Time `json:"time"`
	Avg   *float64  `json:"avg"`
	Min   *float64  `json:"min"`
	Max   *float64  `json:"max"`
	Count int64     `json:"count"`
}

func scanHealthMetricRows(rows pgx.Rows) ([]models.HealthMetricRow, error) {
	var result []models.HealthMetricRow
	for rows.Next() {
		var r models.HealthMetricRow
		if err := rows.Scan(&r.Time, &r.UserID, &r.MetricName, &r.Source, &r.Units,
			&r.Qty, &r.MinVal, &r.AvgVal, &r.MaxVal); err != nil {
			return nil, fmt.Errorf("scanning health metric row: %w", err)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
