// Package outbox delivers the receiver's recorded events to Kafka.
package outbox

import "encoding/json"

// Message represents a row fetched from the outbox table.
type Message struct {
	EventID       int64
	UserID        string
	AggregateType string
	AggregateID   string
	EventType     string
	Topic         string
	PartitionKey  string
	Payload       json.RawMessage
}
