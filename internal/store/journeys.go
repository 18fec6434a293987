package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/truecheckia/splitkit/internal/journey"
)

const upsertJourney = `
INSERT INTO journeys (session_id, user_id, total_revenue, first_touch, last_touch)
VALUES (?1, ?2, ?3, ?4, ?5)
ON CONFLICT(session_id) DO UPDATE SET
    user_id = CASE WHEN journeys.user_id = '' THEN excluded.user_id ELSE journeys.user_id END,
    total_revenue = journeys.total_revenue + excluded.total_revenue,
    first_touch = CASE
        WHEN excluded.first_touch != 0 AND (journeys.first_touch = 0 OR excluded.first_touch < journeys.first_touch)
        THEN excluded.first_touch ELSE journeys.first_touch END,
    last_touch = MAX(journeys.last_touch, excluded.last_touch)
`

func (s *SQLiteStore) AppendEvent(ctx context.Context, e journey.Event) error {
	var props []byte
	if len(e.Properties) > 0 {
		var err error
		props, err = json.Marshal(e.Properties)
		if err != nil {
			return fmt.Errorf("failed to marshal properties: %w", err)
		}
	}

	var revenue sql.NullFloat64
	total := 0.0
	if e.Revenue != nil {
		revenue = sql.NullFloat64{Float64: *e.Revenue, Valid: true}
		total = *e.Revenue
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := millis(e.Timestamp)
	if _, err := tx.ExecContext(ctx, upsertJourney, e.SessionID, e.UserID, total, ts, ts); err != nil {
		return fmt.Errorf("failed to upsert journey: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO journey_events (session_id, name, user_id, properties, revenue, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.Name, e.UserID, nullableString(props), revenue, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) SetAttribution(ctx context.Context, sessionID string, a journey.Attribution) (bool, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return false, fmt.Errorf("failed to marshal attribution: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO journeys (session_id) VALUES (?)`, sessionID); err != nil {
		return false, fmt.Errorf("failed to create journey: %w", err)
	}
	result, err := tx.ExecContext(ctx,
		`UPDATE journeys SET attribution = ? WHERE session_id = ? AND attribution IS NULL`,
		string(data), sessionID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set attribution: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return rowsAffected > 0, nil
}

// AddTouchpoint appends tp unless it repeats the latest touchpoint of the
// session.
func (s *SQLiteStore) AddTouchpoint(ctx context.Context, sessionID string, tp journey.Touchpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last journey.Touchpoint
	err = tx.QueryRowContext(ctx,
		`SELECT channel, source, campaign FROM touchpoints WHERE session_id = ? ORDER BY id DESC LIMIT 1`,
		sessionID,
	).Scan(&last.Channel, &last.Source, &last.Campaign)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to read last touchpoint: %w", err)
	case last.Channel == tp.Channel && last.Source == tp.Source && last.Campaign == tp.Campaign:
		return nil
	}

	ts := millis(tp.Timestamp)
	if _, err := tx.ExecContext(ctx, upsertJourney, sessionID, "", 0, ts, 0); err != nil {
		return fmt.Errorf("failed to upsert journey: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO touchpoints (session_id, channel, source, medium, campaign, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, tp.Channel, tp.Source, tp.Medium, tp.Campaign, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert touchpoint: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetJourney(ctx context.Context, sessionID string) (*journey.Journey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, attribution, total_revenue, first_touch, last_touch
		 FROM journeys WHERE session_id = ?`, sessionID,
	)
	j, err := scanJourney(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, journey.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get journey: %w", err)
	}
	if err := s.loadDetails(ctx, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *SQLiteStore) ListJourneys(ctx context.Context, from, to time.Time) ([]*journey.Journey, error) {
	query := `SELECT session_id, user_id, attribution, total_revenue, first_touch, last_touch FROM journeys WHERE 1=1`
	var args []any
	if !from.IsZero() {
		query += ` AND first_touch >= ?`
		args = append(args, millis(from))
	}
	if !to.IsZero() {
		query += ` AND first_touch < ?`
		args = append(args, millis(to))
	}
	query += ` ORDER BY first_touch, session_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}

	var journeys []*journey.Journey
	for rows.Next() {
		j, err := scanJourney(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan journey: %w", err)
		}
		journeys = append(journeys, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list journeys: %w", err)
	}

	for _, j := range journeys {
		if err := s.loadDetails(ctx, j); err != nil {
			return nil, err
		}
	}
	return journeys, nil
}

func (s *SQLiteStore) DeleteJourney(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// First delete related rows
	for _, table := range []string{"journey_events", "touchpoints", "journeys"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJourney(row scanner) (*journey.Journey, error) {
	var (
		j                     journey.Journey
		attribution           sql.NullString
		firstTouch, lastTouch int64
	)
	if err := row.Scan(&j.SessionID, &j.UserID, &attribution, &j.TotalRevenue, &firstTouch, &lastTouch); err != nil {
		return nil, err
	}
	if attribution.Valid {
		var a journey.Attribution
		if err := json.Unmarshal([]byte(attribution.String), &a); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attribution: %w", err)
		}
		j.Attribution = &a
	}
	j.FirstTouch = fromMillis(firstTouch)
	j.LastTouch = fromMillis(lastTouch)
	return &j, nil
}

func (s *SQLiteStore) loadDetails(ctx context.Context, j *journey.Journey) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, user_id, properties, revenue, created_at
		 FROM journey_events WHERE session_id = ? ORDER BY created_at, id`, j.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to get journey events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e         = journey.Event{SessionID: j.SessionID}
			props     sql.NullString
			revenue   sql.NullFloat64
			createdAt int64
		)
		if err := rows.Scan(&e.Name, &e.UserID, &props, &revenue, &createdAt); err != nil {
			return fmt.Errorf("failed to scan journey event: %w", err)
		}
		if props.Valid && props.String != "" {
			if err := json.Unmarshal([]byte(props.String), &e.Properties); err != nil {
				return fmt.Errorf("failed to unmarshal properties: %w", err)
			}
		}
		if revenue.Valid {
			r := revenue.Float64
			e.Revenue = &r
		}
		e.Timestamp = fromMillis(createdAt)
		j.Events = append(j.Events, e)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tps, err := s.db.QueryContext(ctx,
		`SELECT channel, source, medium, campaign, created_at
		 FROM touchpoints WHERE session_id = ? ORDER BY id`, j.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to get touchpoints: %w", err)
	}
	defer tps.Close()

	for tps.Next() {
		var (
			tp        journey.Touchpoint
			createdAt int64
		)
		if err := tps.Scan(&tp.Channel, &tp.Source, &tp.Medium, &tp.Campaign, &createdAt); err != nil {
			return fmt.Errorf("failed to scan touchpoint: %w", err)
		}
		tp.Timestamp = fromMillis(createdAt)
		j.Touchpoints = append(j.Touchpoints, tp)
	}
	return tps.Err()
}
