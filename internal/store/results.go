package store

import (
	"context"
	"fmt"

	"github.com/truecheckia/splitkit/internal/experiment"
)

// AppendResult stores r. Repeated exposures of one session are ignored.
func (s *SQLiteStore) AppendResult(ctx context.Context, r experiment.Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO results (experiment_id, variant_id, session_id, metric, value, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ExperimentID, r.VariantID, r.SessionID, r.Metric, r.Value, millis(r.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Results(ctx context.Context, experimentID string) ([]experiment.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT experiment_id, variant_id, session_id, metric, value, recorded_at
		 FROM results WHERE experiment_id = ? ORDER BY recorded_at, id`,
		experimentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	var results []experiment.Result
	for rows.Next() {
		var r experiment.Result
		var recordedAt int64
		if err := rows.Scan(&r.ExperimentID, &r.VariantID, &r.SessionID, &r.Metric, &r.Value, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.RecordedAt = fromMillis(recordedAt)
		results = append(results, r)
	}
	return results, rows.Err()
}

// VariantStats aggregates results in SQL. An empty metric counts every
// non-exposure result as a conversion.
func (s *SQLiteStore) VariantStats(ctx context.Context, experimentID, metric string) ([]experiment.VariantStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			variant_id,
			COUNT(DISTINCT CASE WHEN metric = 'exposure' THEN session_id END) as exposures,
			COUNT(DISTINCT CASE WHEN metric != 'exposure' AND (?1 = '' OR metric = ?1) THEN session_id END) as conversions,
			COALESCE(SUM(CASE WHEN metric != 'exposure' AND (?1 = '' OR metric = ?1) THEN value END), 0) as value
		FROM results
		WHERE experiment_id = ?2
		GROUP BY variant_id
		ORDER BY variant_id
	`, metric, experimentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get variant stats: %w", err)
	}
	defer rows.Close()

	var stats []experiment.VariantStats
	for rows.Next() {
		var vs experiment.VariantStats
		if err := rows.Scan(&vs.VariantID, &vs.Exposures, &vs.Conversions, &vs.Value); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats = append(stats, vs)
	}
	return stats, rows.Err()
}

// DeleteResults drops every result of an experiment.
func (s *SQLiteStore) DeleteResults(ctx context.Context, experimentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE experiment_id = ?`, experimentID); err != nil {
		return fmt.Errorf("failed to delete results: %w", err)
	}
	return nil
}
