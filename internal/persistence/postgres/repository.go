// Package postgres provides the receiver's Postgres-backed persistence and a server-side
// checkpoint store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/events"
	"example.com/healthsync/internal/observability"
)

// SampleTopic is the Kafka topic receiving sample events.
const SampleTopic = "health_samples"

// Repository provides Postgres-backed persistence for samples and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByIdempotency checks if a sample already exists for the supplied idempotency key.
func (r *Repository) FindByIdempotency(ctx context.Context, userID, idempotencyKey string) (*domain.Sample, error) {
	if idempotencyKey == "" {
		return nil, nil
	}

	const query = `SELECT sample_id, user_id, activity, recorded_at, payload, received_at
        FROM samples WHERE user_id=$1 AND idempotency_key=$2`

	var sample *domain.Sample
	err := r.withUser(ctx, userID, func(tx pgx.Tx) error {
		var s domain.Sample
		err := tx.QueryRow(ctx, query, userID, idempotencyKey).
			Scan(&s.ID, &s.UserID, &s.Activity, &s.RecordedAt, &s.Payload, &s.ReceivedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		sample = &s
		return nil
	})
	return sample, err
}

// Create persists the sample and records its outbox event inside a single transaction.
func (r *Repository) Create(ctx context.Context, sample domain.Sample, idempotencyKey string) error {
	err := r.withUser(ctx, sample.UserID, func(tx pgx.Tx) error {
		const insertSample = `INSERT INTO samples (sample_id, user_id, activity, recorded_at, payload, idempotency_key, received_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7)`
		if _, err := tx.Exec(ctx, insertSample,
			sample.ID,
			sample.UserID,
			sample.Activity,
			sample.RecordedAt,
			sample.Payload,
			nullIfEmpty(idempotencyKey),
			sample.ReceivedAt,
		); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, sample)
	})
	if err != nil {
		return err
	}
	observability.RecordSamplePersisted(sample.ReceivedAt)
	return nil
}

// LatestRecordedAt returns the newest recorded_at for the user and activity, or nil.
func (r *Repository) LatestRecordedAt(ctx context.Context, userID, activity string) (*time.Time, error) {
	const query = `SELECT MAX(recorded_at) FROM samples WHERE user_id=$1 AND activity=$2`

	var latest *time.Time
	err := r.withUser(ctx, userID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, query, userID, activity).Scan(&latest)
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// withUser runs fn in a transaction scoped to userID for row level security.
func (r *Repository) withUser(ctx context.Context, userID string, fn func(pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", userID); err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertOutbox(ctx context.Context, tx pgx.Tx, sample domain.Sample) error {
	body, err := json.Marshal(events.SampleReceived{
		SampleID:   sample.ID,
		UserID:     sample.UserID,
		Activity:   sample.Activity,
		RecordedAt: sample.RecordedAt,
		ReceivedAt: sample.ReceivedAt,
	})
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		sample.UserID,
		"sample",
		sample.ID,
		events.SampleReceivedType,
		SampleTopic,
		PartitionKey(sample.UserID, sample.Activity),
		body,
		fmt.Sprintf("%s:%s", sample.ID, events.SampleReceivedType),
	)
	return err
}

// PartitionKey keeps every event of one user's activity series on one partition.
func PartitionKey(userID, activity string) string {
	return fmt.Sprintf("%s:%s", userID, activity)
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
