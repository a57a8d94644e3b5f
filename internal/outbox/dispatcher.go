package outbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Option configures optional behaviour for the Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithClaimTTL sets how long a claimed but unpublished row stays invisible to other
// dispatchers. Rows claimed by a dispatcher that died are picked up after it expires.
func WithClaimTTL(ttl time.Duration) Option {
	return func(d *Dispatcher) {
		if ttl > 0 {
			d.claimTTL = ttl
		}
	}
}

// Dispatcher drains the outbox table and publishes sample events to Kafka.
type Dispatcher struct {
	pool         *pgxpool.Pool
	producer     messageWriter
	dlq          *DLQWriter
	pollInterval time.Duration
	batchSize    int
	claimTTL     time.Duration
	logger       *log.Logger
	now          func() time.Time
	stopped      chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	d := &Dispatcher{
		pool:         pool,
		producer:     producer,
		dlq:          NewDLQWriter(pool),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		claimTTL:     30 * time.Second,
		logger:       log.New(log.Writer(), "[outbox] ", log.LstdFlags|log.Lmsgprefix),
		now:          time.Now,
		stopped:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start polls until ctx is cancelled. Run it in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.stopped)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait blocks until Start has returned.
func (d *Dispatcher) Wait() {
	<-d.stopped
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	report := d.deliver(ctx, messages)
	deliveredCounter.Add(float64(len(report.published)))
	if len(report.failed) > 0 {
		d.logger.Printf("%d of %d events not published: %v", len(report.failed), len(messages), report.err)
		failedCounter.Add(float64(len(report.failed)))
		if err := d.moveToDLQ(ctx, report.failed, report.err.Error()); err != nil {
			// The published subset is still marked so it is not sent twice.
			return errors.Join(err, d.markPublished(ctx, report.published))
		}
	}
	// Dead-lettered rows leave the outbox too; the DLQ manager requeues them.
	return d.markPublished(ctx, messages)
}

func (d *Dispatcher) fetchAndClaim(ctx context.Context) ([]Message, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	const query = `SELECT event_id, user_id, aggregate_type, aggregate_id, event_type, topic, partition_key, payload
        FROM outbox
        WHERE published_at IS NULL
          AND (claimed_at IS NULL OR claimed_at < NOW() - make_interval(secs => $2))
        ORDER BY event_id
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, d.batchSize, d.claimTTL.Seconds())
	if err != nil {
		return nil, err
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var msg Message
		err := row.Scan(&msg.EventID, &msg.UserID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Topic, &msg.PartitionKey, &msg.Payload)
		return msg, err
	})
	if err != nil || len(messages) == 0 {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE outbox SET claimed_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages)); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

// deliveryReport splits a batch into what Kafka accepted and what it refused.
type deliveryReport struct {
	published []Message
	failed    []Message
	err       error
}

// deliver writes one Kafka batch per topic, in first-seen topic order and outbox order
// within each topic. A failing topic does not stop later topics.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) deliveryReport {
	byTopic := make(map[string][]Message)
	topics := make([]string, 0)
	var report deliveryReport
	for _, msg := range messages {
		if msg.Topic == "" {
			report.failed = append(report.failed, msg)
			report.err = errors.Join(report.err, fmt.Errorf("no topic for event_id=%d event_type=%s", msg.EventID, msg.EventType))
			continue
		}
		if _, ok := byTopic[msg.Topic]; !ok {
			topics = append(topics, msg.Topic)
		}
		byTopic[msg.Topic] = append(byTopic[msg.Topic], msg)
	}

	for _, topic := range topics {
		batch := byTopic[topic]
		records := make([]kafka.Message, 0, len(batch))
		for _, msg := range batch {
			records = append(records, d.kafkaMessage(msg))
		}
		if err := d.producer.WriteMessages(ctx, topic, records...); err != nil {
			report.failed = append(report.failed, batch...)
			report.err = errors.Join(report.err, fmt.Errorf("topic %s: %w", topic, err))
			continue
		}
		report.published = append(report.published, batch...)
	}
	return report
}

func (d *Dispatcher) kafkaMessage(msg Message) kafka.Message {
	return kafka.Message{
		Key:   []byte(msg.PartitionKey),
		Value: []byte(msg.Payload),
		Time:  d.now().UTC(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(msg.EventType)},
			{Key: "event_id", Value: []byte(strconv.FormatInt(msg.EventID, 10))},
			{Key: "user_id", Value: []byte(msg.UserID)},
		},
	}
}

func (d *Dispatcher) markPublished(ctx context.Context, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	_, err := d.pool.Exec(ctx, `UPDATE outbox SET published_at = NOW() WHERE event_id = ANY($1)`, eventIDs(messages))
	return err
}

func (d *Dispatcher) moveToDLQ(ctx context.Context, messages []Message, reason string) error {
	if err := d.dlq.Write(ctx, reason, messages...); err != nil {
		return err
	}
	for _, msg := range messages {
		dlqCounter.WithLabelValues(msg.Topic).Inc()
	}
	return nil
}

func eventIDs(messages []Message) []int64 {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.EventID)
	}
	return ids
}
