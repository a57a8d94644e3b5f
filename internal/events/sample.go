// Package events defines the payloads the receiver publishes through its outbox.
package events

import "time"

// SampleReceivedType is the event type of SampleReceived.
const SampleReceivedType = "sample.received"

// SampleReceived is emitted when the receiver stores a new health sample.
type SampleReceived struct {
	SampleID   string    `json:"sample_id"`
	UserID     string    `json:"user_id"`
	Activity   string    `json:"activity"`
	RecordedAt time.Time `json:"recorded_at"`
	ReceivedAt time.Time `json:"received_at"`
}
