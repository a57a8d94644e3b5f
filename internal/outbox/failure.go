package outbox

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertDLQ = `INSERT INTO outbox_dlq (user_id, event_id, event_type, topic, payload, reason, aggregate_type, aggregate_id, partition_key, next_retry_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, NOW())`

// DLQWriter parks events Kafka refused until the DLQManager retries them.
type DLQWriter struct {
	pool *pgxpool.Pool
}

// NewDLQWriter returns a DLQWriter on pool.
func NewDLQWriter(pool *pgxpool.Pool) *DLQWriter {
	return &DLQWriter{pool: pool}
}

// Write stores every message with reason in a single round trip. Entries are due for
// retry immediately.
func (w *DLQWriter) Write(ctx context.Context, reason string, messages ...Message) error {
	if len(messages) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, msg := range messages {
		batch.Queue(insertDLQ,
			msg.UserID, msg.EventID, msg.EventType, msg.Topic, msg.Payload, reason,
			msg.AggregateType, msg.AggregateID, msg.PartitionKey,
		)
	}
	return w.pool.SendBatch(ctx, batch).Close()
}
