package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption tunes the writers a KafkaProducer creates.
type ProducerOption func(*KafkaProducer)

// WithBatchTimeout bounds how long a writer waits to fill a batch.
func WithBatchTimeout(timeout time.Duration) ProducerOption {
	return func(p *KafkaProducer) {
		if timeout > 0 {
			p.batchTimeout = timeout
		}
	}
}

// WithClientID sets the client id reported to the brokers.
func WithClientID(id string) ProducerOption {
	return func(p *KafkaProducer) {
		if id != "" {
			p.transport = &kafka.Transport{ClientID: id}
		}
	}
}

// KafkaProducer publishes outbox rows, holding one writer per topic.
// Messages are hashed by key so a user's samples for one activity stay ordered.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration
	transport    kafka.RoundTripper

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer. Writers are opened on first use.
func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	p := &KafkaProducer{
		brokers:      brokers,
		batchTimeout: 50 * time.Millisecond,
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WriteMessages publishes msgs to topic and returns once the brokers acknowledged them.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	if len(p.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	if len(msgs) == 0 {
		return nil
	}
	return p.writer(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	w, ok := p.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(p.brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           p.batchTimeout,
			Transport:              p.transport,
			AllowAutoTopicCreation: true,
		}
		p.writers[topic] = w
	}
	return w
}

// Close flushes and closes every writer.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs error
	for topic, w := range p.writers {
		errs = errors.Join(errs, w.Close())
		delete(p.writers, topic)
	}
	return errs
}
