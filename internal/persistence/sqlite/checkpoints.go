package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// CheckpointStore persists per-activity checkpoints in the checkpoints table.
type CheckpointStore struct {
	db *sql.DB
}

// NewCheckpointStore wraps an opened database.
func NewCheckpointStore(db *sql.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Get returns the stored checkpoint for activity.
func (s *CheckpointStore) Get(ctx context.Context, activity string) (time.Time, bool, error) {
	var nanos int64
	err := s.db.QueryRowContext(ctx, `SELECT synced_at FROM checkpoints WHERE activity = ?`, activity).Scan(&nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.Unix(0, nanos).UTC(), true, nil
}

// Set upserts the checkpoint for activity.
func (s *CheckpointStore) Set(ctx context.Context, activity string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (activity, synced_at, updated_at) VALUES (?, ?, ?)
         ON CONFLICT (activity) DO UPDATE SET synced_at = excluded.synced_at, updated_at = excluded.updated_at`,
		activity, at.UnixNano(), time.Now().UnixNano(),
	)
	return err
}

// All returns every stored checkpoint.
func (s *CheckpointStore) All(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT activity, synced_at FROM checkpoints`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			activity string
			nanos    int64
		)
		if err := rows.Scan(&activity, &nanos); err != nil {
			return nil, err
		}
		out[activity] = time.Unix(0, nanos).UTC()
	}
	return out, rows.Err()
}
