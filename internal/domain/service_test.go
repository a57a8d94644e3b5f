package domain

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	byKey   map[string]Sample
	created []Sample
	latest  *time.Time
	err     error
}

func (r *stubRepo) FindByIdempotency(_ context.Context, userID, key string) (*Sample, error) {
	if r.err != nil {
		return nil, r.err
	}
	if s, ok := r.byKey[userID+"|"+key]; ok {
		return &s, nil
	}
	return nil, nil
}

func (r *stubRepo) Create(_ context.Context, sample Sample, key string) error {
	if r.err != nil {
		return r.err
	}
	if key != "" {
		r.byKey[sample.UserID+"|"+key] = sample
	}
	r.created = append(r.created, sample)
	return nil
}

func (r *stubRepo) LatestRecordedAt(context.Context, string, string) (*time.Time, error) {
	return r.latest, r.err
}

func TestIngestValidates(t *testing.T) {
	svc := NewService(&stubRepo{byKey: map[string]Sample{}})
	ts := time.Date(2020, time.March, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range []IngestInput{
		{Activity: "heart_rate", RecordedAt: ts},
		{UserID: "u", RecordedAt: ts},
		{UserID: "u", Activity: "heart_rate"},
	} {
		_, _, err := svc.Ingest(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidSample)
	}
}

func TestIngestReplaysByIdempotencyKey(t *testing.T) {
	repo := &stubRepo{byKey: map[string]Sample{}}
	svc := NewService(repo)
	in := IngestInput{
		UserID:         "u",
		Activity:       "heart_rate",
		RecordedAt:     time.Date(2020, time.March, 1, 9, 0, 0, 0, time.FixedZone("x", 3600)),
		Payload:        json.RawMessage(`{"quantity":60}`),
		IdempotencyKey: "k1",
	}

	first, replay, err := svc.Ingest(context.Background(), in)
	require.NoError(t, err)
	require.False(t, replay)
	require.NotEmpty(t, first.ID)
	require.Equal(t, time.UTC, first.RecordedAt.Location())

	second, replay, err := svc.Ingest(context.Background(), in)
	require.NoError(t, err)
	require.True(t, replay)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.created, 1)

	in.IdempotencyKey = ""
	_, _, err = svc.Ingest(context.Background(), in)
	require.NoError(t, err)
	_, _, err = svc.Ingest(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, repo.created, 3)
}

func TestIngestPropagatesRepositoryErrors(t *testing.T) {
	boom := errors.New("boom")
	svc := NewService(&stubRepo{byKey: map[string]Sample{}, err: boom})
	_, _, err := svc.Ingest(context.Background(), IngestInput{
		UserID: "u", Activity: "heart_rate", RecordedAt: time.Now(), IdempotencyKey: "k",
	})
	require.ErrorIs(t, err, boom)
}

func TestLatest(t *testing.T) {
	repo := &stubRepo{byKey: map[string]Sample{}}
	svc := NewService(repo)

	_, ok, err := svc.Latest(context.Background(), "u", "heart_rate")
	require.NoError(t, err)
	require.False(t, ok)

	ts := time.Date(2020, time.March, 1, 9, 0, 0, 0, time.FixedZone("x", 3600))
	repo.latest = &ts
	got, ok, err := svc.Latest(context.Background(), "u", "heart_rate")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, ts.Equal(got))
	require.Equal(t, time.UTC, got.Location())
}
