package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "user-1", "token-abc", srv.Client())
	c.baseDelay = time.Millisecond
	c.maxDelay = 5 * time.Millisecond
	return c
}

func TestLatestTimestampParsesServerDate(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/activities/heart_rate/user-1/latest", r.URL.Path)
		require.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"success":"2020-01-15 08:30:00"}`))
	}))

	ts, ok, err := c.LatestTimestamp(context.Background(), "heart_rate")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, time.Date(2020, time.January, 15, 8, 30, 0, 0, time.UTC).Equal(ts))
}

func TestLatestTimestampEmptyMeansNoData(t *testing.T) {
	for _, body := range []string{`{"success":""}`, `{"success":null}`, `{}`, `{"success":"not a date"}`} {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, ok, err := c.LatestTimestamp(context.Background(), "step_count")
		require.NoError(t, err, body)
		require.False(t, ok, body)
	}
}

func TestLatestTimestampRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success":"2020-02-01"}`))
	}))

	ts, ok, err := c.LatestTimestamp(context.Background(), "body_mass")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2020, ts.Year())
	require.EqualValues(t, 3, calls.Load())
}

func TestLatestTimestampDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "nope", http.StatusForbidden)
	}))

	_, _, err := c.LatestTimestamp(context.Background(), "body_mass")
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.Equal(t, http.StatusForbidden, httpErr.StatusCode)
	require.Equal(t, "nope", httpErr.Body)
	require.EqualValues(t, 1, calls.Load())
}

func TestUploadPostsPayloadWithIdempotencyKey(t *testing.T) {
	record := domain.Record{
		Activity:  "heart_rate",
		Timestamp: time.Date(2020, time.January, 20, 10, 0, 0, 0, time.UTC),
		Payload:   map[string]any{"date": "2020-01-20 10:00:00", "quantity": 72.0},
	}
	var gotKey string
	var gotBody map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/activities/heart_rate", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"success":true}`))
	}))

	require.NoError(t, c.Upload(context.Background(), record))
	require.Equal(t, IdempotencyKey(record), gotKey)
	require.Equal(t, 72.0, gotBody["quantity"])
	require.Equal(t, "user-1", gotBody["user_id"])
	_, tagged := record.Payload["user_id"]
	require.False(t, tagged, "caller payload must not be mutated")
}

func TestUploadSingleAttemptOnFailure(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))

	err := c.Upload(context.Background(), domain.Record{Activity: "step_count", Payload: map[string]any{}})
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	require.True(t, httpErr.Retryable())
	require.EqualValues(t, 1, calls.Load())
}

func TestIdempotencyKeyIsStable(t *testing.T) {
	ts := time.Date(2020, time.January, 20, 10, 0, 0, 0, time.UTC)
	a := domain.Record{Activity: "heart_rate", Timestamp: ts, Payload: map[string]any{"b": 1, "a": 2}}
	b := domain.Record{Activity: "heart_rate", Timestamp: ts.In(time.FixedZone("X", 3600)), Payload: map[string]any{"a": 2, "b": 1}}
	c := domain.Record{Activity: "step_count", Timestamp: ts, Payload: map[string]any{"a": 2, "b": 1}}

	require.Equal(t, IdempotencyKey(a), IdempotencyKey(b))
	require.NotEqual(t, IdempotencyKey(a), IdempotencyKey(c))
}

func TestParseRetryAfter(t *testing.T) {
	require.Equal(t, 2*time.Second, parseRetryAfter("2"))
	require.Zero(t, parseRetryAfter(""))
	require.Zero(t, parseRetryAfter("soon"))
}
