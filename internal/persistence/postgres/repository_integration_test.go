//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

func TestRepositoryStoresSampleWithOutboxEvent(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)

	userID := uuid.NewString()
	sample := domain.Sample{
		ID:         uuid.NewString(),
		UserID:     userID,
		Activity:   "heart_rate",
		RecordedAt: time.Date(2020, time.January, 15, 8, 0, 0, 0, time.UTC),
		Payload:    json.RawMessage(`{"date":"2020-01-15 08:00:00","quantity":61}`),
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, sample, "key-1"))

	found, err := repo.FindByIdempotency(ctx, userID, "key-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, sample.ID, found.ID)

	missing, err := repo.FindByIdempotency(ctx, userID, "key-2")
	require.NoError(t, err)
	require.Nil(t, missing)

	var topic, key string
	require.NoError(t, pool.QueryRow(ctx, `SELECT topic, partition_key FROM outbox WHERE aggregate_id=$1`, sample.ID).Scan(&topic, &key))
	require.Equal(t, SampleTopic, topic)
	require.Equal(t, userID+":heart_rate", key)
}

func TestRepositoryLatestRecordedAt(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	repo := NewRepository(pool)
	userID := uuid.NewString()

	latest, err := repo.LatestRecordedAt(ctx, userID, "step_count")
	require.NoError(t, err)
	require.Nil(t, latest)

	for _, day := range []int{3, 9, 5} {
		require.NoError(t, repo.Create(ctx, domain.Sample{
			ID:         uuid.NewString(),
			UserID:     userID,
			Activity:   "step_count",
			RecordedAt: time.Date(2020, time.February, day, 0, 0, 0, 0, time.UTC),
			Payload:    json.RawMessage(`{}`),
			ReceivedAt: time.Now().UTC(),
		}, ""))
	}

	latest, err = repo.LatestRecordedAt(ctx, userID, "step_count")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.True(t, time.Date(2020, time.February, 9, 0, 0, 0, 0, time.UTC).Equal(*latest))

	other, err := repo.LatestRecordedAt(ctx, uuid.NewString(), "step_count")
	require.NoError(t, err)
	require.Nil(t, other)
}

func TestCheckpointStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	store := NewCheckpointStore(pool, "user-1")

	_, ok, err := store.Get(ctx, "heart_rate")
	require.NoError(t, err)
	require.False(t, ok)

	end := time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	require.NoError(t, store.Set(ctx, "heart_rate", end))
	got, ok, err := store.Get(ctx, "heart_rate")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.January, got.UTC().Month())
	require.WithinDuration(t, end, got, time.Microsecond)

	all, err := NewCheckpointStore(pool, "user-2").All(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
}
