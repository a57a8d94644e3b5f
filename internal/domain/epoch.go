package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEpochs reports an epoch sequence that is inverted, overlapping or unordered.
var ErrInvalidEpochs = errors.New("invalid epoch sequence")

// Epoch is an inclusive time window [Start, End] eligible for synchronization.
type Epoch struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (e Epoch) Contains(t time.Time) bool {
	return !t.Before(e.Start) && !t.After(e.End)
}

func (e Epoch) String() string {
	return fmt.Sprintf("[%s, %s]", e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// ValidateEpochs checks that every epoch has Start <= End and that the sequence is
// ascending and disjoint.
func ValidateEpochs(epochs []Epoch) error {
	for i, e := range epochs {
		if e.Start.After(e.End) {
			return fmt.Errorf("%w: epoch %d starts after it ends %s", ErrInvalidEpochs, i, e)
		}
		if i > 0 && !e.Start.After(epochs[i-1].End) {
			return fmt.Errorf("%w: epoch %d %s overlaps or precedes %s", ErrInvalidEpochs, i, e, epochs[i-1])
		}
	}
	return nil
}
