// Package upload drains a fetched batch against the server one record at a time.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/healthsync/internal/domain"
)

// Uploader delivers a single record. A nil error means the server acknowledged it.
type Uploader interface {
	Upload(ctx context.Context, record domain.Record) error
}

// DeadLetter is a record the queue gave up on.
type DeadLetter struct {
	Record   domain.Record
	Attempts int
	Reason   string
	FailedAt time.Time
}

// DeadLetterWriter persists records that exhausted their delivery attempts.
type DeadLetterWriter interface {
	Write(ctx context.Context, letter DeadLetter) error
}

// Result summarises one Drain call.
type Result struct {
	Delivered int
	Skipped   int
	Filtered  int
	Total     int
}

// Queue delivers records in order, retrying the head record until it succeeds or is
// dead-lettered. The next record is never attempted before that.
type Queue struct {
	uploader    Uploader
	deadLetters DeadLetterWriter
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *log.Logger
	sleep       func(context.Context, time.Duration) error
	now         func() time.Time
}

// Option configures optional behaviour for the Queue.
type Option func(*Queue)

// WithLogger overrides the queue logger.
func WithLogger(logger *log.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

// WithDeadLetters stores exhausted records through w.
func WithDeadLetters(w DeadLetterWriter) Option {
	return func(q *Queue) {
		q.deadLetters = w
	}
}

// WithMaxAttempts bounds delivery attempts per record. Zero retries forever.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxAttempts = n
		}
	}
}

// WithBackoff sets the base and ceiling of the retry delay.
func WithBackoff(base, ceiling time.Duration) Option {
	return func(q *Queue) {
		if base > 0 {
			q.baseDelay = base
		}
		if ceiling > 0 {
			q.maxDelay = ceiling
		}
	}
}

// WithSleep replaces the context-aware wait used between attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(q *Queue) {
		if sleep != nil {
			q.sleep = sleep
		}
	}
}

// NewQueue constructs a Queue around the uploader.
func NewQueue(uploader Uploader, opts ...Option) (*Queue, error) {
	if uploader == nil {
		return nil, errors.New("uploader is required")
	}
	q := &Queue{
		uploader:    uploader,
		maxAttempts: 8,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    time.Minute,
		logger:      log.New(log.Writer(), "[upload] ", log.LstdFlags),
		sleep:       waitWithContext,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.maxDelay < q.baseDelay {
		q.maxDelay = q.baseDelay
	}
	return q, nil
}

// Drain delivers every record of batch in order and reports progress on events, which
// may be nil. Exactly one EventCompleted is sent when the batch finishes. Cancellation
// aborts delivery and returns the context error without a completion event.
func (q *Queue) Drain(ctx context.Context, batch domain.SyncBatch, events chan<- Event) (Result, error) {
	records := q.filter(batch)
	res := Result{Total: len(records), Filtered: len(batch.Records) - len(records)}

	for _, record := range records {
		delivered, err := q.deliver(ctx, record)
		if err != nil {
			return res, err
		}
		kind := EventDelivered
		if delivered {
			res.Delivered++
			recordDelivered(batch.Activity)
		} else {
			res.Skipped++
			kind = EventSkipped
		}
		if err := emit(ctx, events, Event{
			Kind:      kind,
			Activity:  batch.Activity,
			Done:      res.Delivered + res.Skipped,
			Delivered: res.Delivered,
			Total:     res.Total,
		}); err != nil {
			return res, err
		}
	}

	if err := emit(ctx, events, Event{
		Kind:      EventCompleted,
		Activity:  batch.Activity,
		Done:      res.Delivered + res.Skipped,
		Delivered: res.Delivered,
		Total:     res.Total,
	}); err != nil {
		return res, err
	}
	return res, nil
}

func (q *Queue) filter(batch domain.SyncBatch) []domain.Record {
	out := make([]domain.Record, 0, len(batch.Records))
	for _, record := range batch.Records {
		if record.Activity != batch.Activity {
			q.logger.Printf("dropping record tagged %q from %s batch", record.Activity, batch.Activity)
			recordFiltered(batch.Activity)
			continue
		}
		if !batch.Window.Contains(record.Timestamp) {
			q.logger.Printf("dropping %s record at %s outside window %s", batch.Activity, record.Timestamp.Format(time.RFC3339), batch.Window)
			recordFiltered(batch.Activity)
			continue
		}
		out = append(out, record)
	}
	return out
}

// deliver retries one record. It returns false when the record was dead-lettered.
func (q *Queue) deliver(ctx context.Context, record domain.Record) (bool, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		err := q.uploader.Upload(ctx, record)
		if err == nil {
			return true, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		recordFailure(record.Activity)
		q.logger.Printf("upload failed (activity=%s attempt=%d): %v", record.Activity, attempt, err)

		if q.maxAttempts > 0 && attempt >= q.maxAttempts {
			return false, q.deadLetter(ctx, record, attempt, err)
		}
		if err := q.sleep(ctx, q.backoffDelay(attempt)); err != nil {
			return false, err
		}
	}
}

func (q *Queue) deadLetter(ctx context.Context, record domain.Record, attempts int, cause error) error {
	recordDeadLetter(record.Activity)
	if q.deadLetters == nil {
		q.logger.Printf("skipping %s record at %s after %d attempts", record.Activity, record.Timestamp.Format(time.RFC3339), attempts)
		return nil
	}
	letter := DeadLetter{Record: record, Attempts: attempts, Reason: cause.Error(), FailedAt: q.now().UTC()}
	if err := q.deadLetters.Write(ctx, letter); err != nil {
		return fmt.Errorf("dead-letter %s record: %w", record.Activity, err)
	}
	return nil
}

// backoffDelay doubles per attempt and is capped at maxDelay.
func (q *Queue) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return q.maxDelay
	}
	delay := time.Duration(1<<(attempt-1)) * q.baseDelay
	if delay <= 0 || delay > q.maxDelay {
		return q.maxDelay
	}
	return delay
}

func emit(ctx context.Context, events chan<- Event, ev Event) error {
	if events == nil {
		return nil
	}
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
