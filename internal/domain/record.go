package domain

import (
	"strings"
	"time"
)

// Record is one sample payload tagged with its activity.
type Record struct {
	Activity  string
	Timestamp time.Time
	Payload   map[string]any
}

// SyncBatch is the result of fetching one work unit from the data source.
type SyncBatch struct {
	Activity   string
	Window     Epoch
	Records    []Record
	TotalCount int
}

// Empty reports whether the batch has nothing to deliver.
func (b SyncBatch) Empty() bool { return len(b.Records) == 0 }

// WorkUnit is one (epoch, activity) pair selected by the coordinator.
type WorkUnit struct {
	EpochIndex     int
	ActivityIndex  int
	Epoch          Epoch
	Activity       Activity
	EffectiveStart time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts the date formats exchanged with the server. The boolean is
// false for empty or unparseable input.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
