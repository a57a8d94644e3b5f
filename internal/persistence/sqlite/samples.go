package sqlite

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"example.com/healthsync/internal/domain"
)

// SampleSource serves locally mirrored health samples to the coordinator.
type SampleSource struct {
	db     *sql.DB
	userID string
}

// NewSampleSource wraps an opened database. When userID is set every fetched payload
// is tagged with it under "user_id" unless the payload already carries one.
func NewSampleSource(db *sql.DB, userID string) *SampleSource {
	return &SampleSource{db: db, userID: strings.TrimSpace(userID)}
}

// Fetch returns the samples of activity recorded within [start, end], oldest first.
func (s *SampleSource) Fetch(ctx context.Context, activity string, start, end time.Time) (domain.SyncBatch, error) {
	batch := domain.SyncBatch{Activity: activity, Window: domain.Epoch{Start: start, End: end}}
	rows, err := s.db.QueryContext(ctx,
		`SELECT recorded_at, payload FROM samples
          WHERE activity = ? AND recorded_at >= ? AND recorded_at <= ?
          ORDER BY recorded_at, id`,
		activity, start.UnixNano(), end.UnixNano(),
	)
	if err != nil {
		return batch, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			nanos int64
			raw   string
		)
		if err := rows.Scan(&nanos, &raw); err != nil {
			return batch, err
		}
		payload := make(map[string]any)
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return batch, fmt.Errorf("decode sample payload: %w", err)
		}
		if _, ok := payload["user_id"]; !ok && s.userID != "" {
			payload["user_id"] = s.userID
		}
		batch.Records = append(batch.Records, domain.Record{
			Activity:  activity,
			Timestamp: time.Unix(0, nanos).In(start.Location()),
			Payload:   payload,
		})
	}
	if err := rows.Err(); err != nil {
		return batch, err
	}
	batch.TotalCount = len(batch.Records)
	return batch, nil
}

// Insert stores one sample.
func (s *SampleSource) Insert(ctx context.Context, record domain.Record) error {
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO samples (activity, recorded_at, payload) VALUES (?, ?, ?)`,
		record.Activity, record.Timestamp.UnixNano(), string(payload),
	)
	return err
}

// Import reads newline-delimited JSON objects and stores each as a sample. Every
// object needs an "activity_type" naming a catalog activity and a parseable "date".
// It returns the number of imported samples.
func (s *SampleSource) Import(ctx context.Context, catalog domain.Catalog, r io.Reader) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	imported, line := 0, 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		payload := make(map[string]any)
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return 0, fmt.Errorf("line %d: %w", line, err)
		}
		activity, _ := payload["activity_type"].(string)
		if _, ok := catalog.Lookup(activity); !ok {
			return 0, fmt.Errorf("line %d: %w %q", line, domain.ErrUnknownActivity, activity)
		}
		date, _ := payload["date"].(string)
		ts, ok := domain.ParseTimestamp(date)
		if !ok {
			return 0, fmt.Errorf("line %d: unparseable date %q", line, date)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO samples (activity, recorded_at, payload) VALUES (?, ?, ?)`,
			activity, ts.UnixNano(), text,
		); err != nil {
			return 0, err
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}
