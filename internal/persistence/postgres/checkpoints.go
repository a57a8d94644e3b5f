package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CheckpointStore keeps sync checkpoints in Postgres, scoped to one user so several
// devices of the same user share progress.
type CheckpointStore struct {
	pool   *pgxpool.Pool
	userID string
}

// NewCheckpointStore constructs a CheckpointStore for userID.
func NewCheckpointStore(pool *pgxpool.Pool, userID string) *CheckpointStore {
	return &CheckpointStore{pool: pool, userID: userID}
}

// Get returns the checkpoint for activity.
func (s *CheckpointStore) Get(ctx context.Context, activity string) (time.Time, bool, error) {
	var at time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT synced_at FROM sync_checkpoints WHERE user_id=$1 AND activity=$2`,
		s.userID, activity,
	).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return at, true, nil
}

// Set upserts the checkpoint for activity. Postgres keeps microseconds, so the value
// is truncated rather than rounded up past the instant it describes.
func (s *CheckpointStore) Set(ctx context.Context, activity string, at time.Time) error {
	at = at.Truncate(time.Microsecond)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_checkpoints (user_id, activity, synced_at, updated_at) VALUES ($1,$2,$3,NOW())
         ON CONFLICT (user_id, activity) DO UPDATE SET synced_at = EXCLUDED.synced_at, updated_at = NOW()`,
		s.userID, activity, at,
	)
	return err
}

// All returns every checkpoint of the user.
func (s *CheckpointStore) All(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx, `SELECT activity, synced_at FROM sync_checkpoints WHERE user_id=$1`, s.userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			activity string
			at       time.Time
		)
		if err := rows.Scan(&activity, &at); err != nil {
			return nil, err
		}
		out[activity] = at
	}
	return out, rows.Err()
}
