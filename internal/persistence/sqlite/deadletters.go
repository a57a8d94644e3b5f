package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"example.com/healthsync/internal/upload"
)

// DeadLetterStore keeps records the upload queue gave up on.
type DeadLetterStore struct {
	db *sql.DB
}

// NewDeadLetterStore wraps an opened database.
func NewDeadLetterStore(db *sql.DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Write records a failed record alongside the supplied reason.
func (s *DeadLetterStore) Write(ctx context.Context, letter upload.DeadLetter) error {
	payload, err := json.Marshal(letter.Record.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dead_letters (activity, recorded_at, payload, attempts, reason, failed_at) VALUES (?, ?, ?, ?, ?, ?)`,
		letter.Record.Activity, letter.Record.Timestamp.UnixNano(), string(payload), letter.Attempts, letter.Reason, letter.FailedAt.UnixNano(),
	)
	return err
}

// List returns up to limit dead letters, oldest first.
func (s *DeadLetterStore) List(ctx context.Context, limit int) ([]upload.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT activity, recorded_at, payload, attempts, reason, failed_at FROM dead_letters ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []upload.DeadLetter
	for rows.Next() {
		var (
			letter             upload.DeadLetter
			recorded, failedAt int64
			payload            string
		)
		if err := rows.Scan(&letter.Record.Activity, &recorded, &payload, &letter.Attempts, &letter.Reason, &failedAt); err != nil {
			return nil, err
		}
		letter.Record.Timestamp = time.Unix(0, recorded).UTC()
		letter.FailedAt = time.Unix(0, failedAt).UTC()
		if err := json.Unmarshal([]byte(payload), &letter.Record.Payload); err != nil {
			return nil, err
		}
		out = append(out, letter)
	}
	return out, rows.Err()
}

// Count returns the number of dead letters per activity.
func (s *DeadLetterStore) Count(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT activity, COUNT(*) FROM dead_letters GROUP BY activity`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var (
			activity string
			n        int
		)
		if err := rows.Scan(&activity, &n); err != nil {
			return nil, err
		}
		out[activity] = n
	}
	return out, rows.Err()
}

var _ upload.DeadLetterWriter = (*DeadLetterStore)(nil)
