// Package epoch builds the ordered calendar-month windows a sync walks through.
package epoch

import (
	"time"

	"example.com/healthsync/internal/domain"
)

// Generate returns one window per calendar month from pastPeriods years before now
// through the month containing now, in now's location. Each window ends on the last
// instant of its month even when now is mid-month; windows starting after now are
// excluded. A negative pastPeriods yields an empty sequence.
func Generate(now time.Time, pastPeriods int) []domain.Epoch {
	if pastPeriods < 0 {
		return []domain.Epoch{}
	}
	loc := now.Location()
	first := time.Date(now.Year()-pastPeriods, now.Month(), 1, 0, 0, 0, 0, loc)
	last := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)

	epochs := make([]domain.Epoch, 0, pastPeriods*12+1)
	for start := first; !start.After(last); start = start.AddDate(0, 1, 0) {
		if start.After(now) {
			continue
		}
		epochs = append(epochs, domain.Epoch{
			Start: start,
			End:   start.AddDate(0, 1, 0).Add(-time.Nanosecond),
		})
	}
	return epochs
}

// EarliestStart returns the start of the first window, or the zero time for an empty plan.
func EarliestStart(epochs []domain.Epoch) time.Time {
	if len(epochs) == 0 {
		return time.Time{}
	}
	return epochs[0].Start
}
