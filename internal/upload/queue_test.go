package upload

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/healthsync/internal/domain"
)

var window = domain.Epoch{
	Start: time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2020, time.February, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
}

func rec(activity string, dayOfMonth int) domain.Record {
	return domain.Record{
		Activity:  activity,
		Timestamp: time.Date(2020, time.January, dayOfMonth, 12, 0, 0, 0, time.UTC),
		Payload:   map[string]any{"day": dayOfMonth},
	}
}

// scriptedUploader fails the listed call numbers and records every attempt.
type scriptedUploader struct {
	mu       sync.Mutex
	calls    int
	failOn   map[int]bool
	failAll  bool
	attempts []int
}

func (u *scriptedUploader) Upload(_ context.Context, record domain.Record) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.attempts = append(u.attempts, record.Payload["day"].(int))
	if u.failAll || u.failOn[u.calls] {
		return errors.New("http 503")
	}
	return nil
}

type memoryDeadLetters struct {
	letters []DeadLetter
	err     error
}

func (m *memoryDeadLetters) Write(_ context.Context, letter DeadLetter) error {
	if m.err != nil {
		return m.err
	}
	m.letters = append(m.letters, letter)
	return nil
}

func newQueue(t *testing.T, u Uploader, delays *[]time.Duration, opts ...Option) *Queue {
	t.Helper()
	sleep := func(_ context.Context, d time.Duration) error {
		if delays != nil {
			*delays = append(*delays, d)
		}
		return nil
	}
	opts = append([]Option{
		WithLogger(log.New(io.Discard, "", 0)),
		WithSleep(sleep),
		WithBackoff(10*time.Millisecond, 50*time.Millisecond),
	}, opts...)
	q, err := NewQueue(u, opts...)
	require.NoError(t, err)
	return q
}

func collect(events chan Event) []Event {
	close(events)
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestDrainRetriesFailedRecordBeforeMovingOn(t *testing.T) {
	u := &scriptedUploader{failOn: map[int]bool{2: true}}
	var delays []time.Duration
	q := newQueue(t, u, &delays)

	batch := domain.SyncBatch{
		Activity:   "heart_rate",
		Window:     window,
		Records:    []domain.Record{rec("heart_rate", 1), rec("heart_rate", 2), rec("heart_rate", 3)},
		TotalCount: 3,
	}
	events := make(chan Event, 16)
	res, err := q.Drain(context.Background(), batch, events)
	require.NoError(t, err)

	require.Equal(t, Result{Delivered: 3, Total: 3}, res)
	require.Equal(t, []int{1, 2, 2, 3}, u.attempts)
	require.Equal(t, []time.Duration{10 * time.Millisecond}, delays)

	got := collect(events)
	require.Equal(t, []Event{
		{Kind: EventDelivered, Activity: "heart_rate", Done: 1, Delivered: 1, Total: 3},
		{Kind: EventDelivered, Activity: "heart_rate", Done: 2, Delivered: 2, Total: 3},
		{Kind: EventDelivered, Activity: "heart_rate", Done: 3, Delivered: 3, Total: 3},
		{Kind: EventCompleted, Activity: "heart_rate", Done: 3, Delivered: 3, Total: 3},
	}, got)
}

func TestDrainDeadLettersAfterMaxAttempts(t *testing.T) {
	u := &scriptedUploader{failOn: map[int]bool{2: true, 3: true, 4: true}}
	var delays []time.Duration
	dlq := &memoryDeadLetters{}
	q := newQueue(t, u, &delays, WithMaxAttempts(3), WithDeadLetters(dlq))

	batch := domain.SyncBatch{
		Activity: "step_count",
		Window:   window,
		Records:  []domain.Record{rec("step_count", 1), rec("step_count", 2), rec("step_count", 3)},
	}
	events := make(chan Event, 16)
	res, err := q.Drain(context.Background(), batch, events)
	require.NoError(t, err)

	require.Equal(t, Result{Delivered: 2, Skipped: 1, Total: 3}, res)
	require.Equal(t, []int{1, 2, 2, 2, 3}, u.attempts)
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, delays)
	require.Len(t, dlq.letters, 1)
	require.Equal(t, 3, dlq.letters[0].Attempts)
	require.Equal(t, 2, dlq.letters[0].Record.Payload["day"])

	got := collect(events)
	require.Len(t, got, 4)
	require.Equal(t, EventSkipped, got[1].Kind)
	require.Equal(t, 2, got[1].Done)
	require.Equal(t, EventCompleted, got[3].Kind)
}

func TestDrainUnboundedRetryKeepsTrying(t *testing.T) {
	failures := map[int]bool{}
	for i := 1; i <= 12; i++ {
		failures[i] = true
	}
	u := &scriptedUploader{failOn: failures}
	var delays []time.Duration
	q := newQueue(t, u, &delays, WithMaxAttempts(0))

	res, err := q.Drain(context.Background(), domain.SyncBatch{
		Activity: "body_mass",
		Window:   window,
		Records:  []domain.Record{rec("body_mass", 5)},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Delivered)
	require.Equal(t, 13, u.calls)
	require.Equal(t, 50*time.Millisecond, delays[len(delays)-1])
}

func TestDrainFiltersForeignAndOutOfWindowRecords(t *testing.T) {
	u := &scriptedUploader{}
	q := newQueue(t, u, nil)

	outside := rec("heart_rate", 1)
	outside.Timestamp = window.End.Add(time.Second)
	res, err := q.Drain(context.Background(), domain.SyncBatch{
		Activity: "heart_rate",
		Window:   window,
		Records:  []domain.Record{rec("step_count", 2), outside, rec("heart_rate", 3)},
	}, nil)
	require.NoError(t, err)
	require.Equal(t, Result{Delivered: 1, Filtered: 2, Total: 1}, res)
	require.Equal(t, []int{3}, u.attempts)
}

func TestDrainEmptyBatchCompletesOnce(t *testing.T) {
	q := newQueue(t, &scriptedUploader{}, nil)
	events := make(chan Event, 4)
	res, err := q.Drain(context.Background(), domain.SyncBatch{Activity: "heart_rate", Window: window}, events)
	require.NoError(t, err)
	require.Zero(t, res.Total)
	require.Equal(t, []Event{{Kind: EventCompleted, Activity: "heart_rate"}}, collect(events))
}

func TestDrainStopsOnCancellation(t *testing.T) {
	u := &scriptedUploader{failAll: true}
	ctx, cancel := context.WithCancel(context.Background())
	q := newQueue(t, u, nil, WithMaxAttempts(0), WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	_, err := q.Drain(ctx, domain.SyncBatch{
		Activity: "heart_rate",
		Window:   window,
		Records:  []domain.Record{rec("heart_rate", 1), rec("heart_rate", 2)},
	}, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []int{1}, u.attempts)
}

func TestDrainReturnsDeadLetterWriteFailure(t *testing.T) {
	u := &scriptedUploader{failAll: true}
	dlq := &memoryDeadLetters{err: errors.New("disk full")}
	q := newQueue(t, u, nil, WithMaxAttempts(1), WithDeadLetters(dlq))

	_, err := q.Drain(context.Background(), domain.SyncBatch{
		Activity: "heart_rate",
		Window:   window,
		Records:  []domain.Record{rec("heart_rate", 1)},
	}, nil)
	require.ErrorContains(t, err, "disk full")
}

func TestBackoffDelayIsCapped(t *testing.T) {
	q := newQueue(t, &scriptedUploader{}, nil)
	require.Equal(t, 10*time.Millisecond, q.backoffDelay(1))
	require.Equal(t, 40*time.Millisecond, q.backoffDelay(3))
	require.Equal(t, 50*time.Millisecond, q.backoffDelay(4))
	require.Equal(t, 50*time.Millisecond, q.backoffDelay(64))
}

func TestNewQueueRequiresUploader(t *testing.T) {
	_, err := NewQueue(nil)
	require.Error(t, err)
}
