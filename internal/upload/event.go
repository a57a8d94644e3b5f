package upload

// EventKind identifies a queue progress notification.
type EventKind string

const (
	EventDelivered EventKind = "delivered"
	EventSkipped   EventKind = "skipped"
	EventCompleted EventKind = "completed"
)

// Event reports queue progress. Done counts delivered and skipped records.
type Event struct {
	Kind      EventKind
	Activity  string
	Done      int
	Delivered int
	Total     int
}
