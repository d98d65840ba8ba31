package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"audiotour/pkg/db"
)

// SQLiteStore implements Store.
type SQLiteStore struct {
	db *db.DB
}

// NewSQLiteStore creates a new store.
func NewSQLiteStore(db *db.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- State ---

func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, bool) {
	var val sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM persistent_state WHERE key = ?", key).Scan(&val)
	if err != nil {
		return "", false
	}
	return val.String, true
}

func (s *SQLiteStore) SetState(ctx context.Context, key, val string) error {
	query := `INSERT OR REPLACE INTO persistent_state (key, value, created_at) VALUES (?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, key, val, time.Now())
	return err
}

func (s *SQLiteStore) DeleteState(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM persistent_state WHERE key = ?", key)
	return err
}

// --- Events ---

// AppendEvent stores ev, assigning an ID and timestamp when missing.
func (s *SQLiteStore) AppendEvent(ctx context.Context, ev *TourEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tour_events (id, session_id, tour_id, kind, stop_index, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SessionID, ev.TourID, ev.Kind, ev.StopIndex, ev.Detail, ev.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEvents(ctx context.Context, tourID string, limit int) ([]TourEvent, error) {
	query := `SELECT id, session_id, tour_id, kind, stop_index, detail, created_at
		FROM tour_events WHERE tour_id = ? ORDER BY created_at ASC, rowid ASC`
	args := []any{tourID}
	if limit > 0 {
		// Most recent N, still oldest first
		query = `SELECT * FROM (SELECT id, session_id, tour_id, kind, stop_index, detail, created_at, rowid AS rid
			FROM tour_events WHERE tour_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?)
			ORDER BY created_at ASC, rid ASC`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []TourEvent
	for rows.Next() {
		var ev TourEvent
		var sessionID, detail sql.NullString
		dest := []any{&ev.ID, &sessionID, &ev.TourID, &ev.Kind, &ev.StopIndex, &detail, &ev.CreatedAt}
		if limit > 0 {
			var rid int64
			dest = append(dest, &rid)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		ev.SessionID = sessionID.String
		ev.Detail = detail.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return events, nil
}
