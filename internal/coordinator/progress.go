package coordinator

import (
	"context"
	"math"

	"example.com/healthsync/internal/domain"
)

// Progress is emitted after every delivery and every unit advance.
type Progress struct {
	Activity       string
	Epoch          domain.Epoch
	UnitDone       int
	UnitTotal      int
	UnitPercent    float64
	UnitsCompleted int
	UnitsTotal     int
	OverallPercent float64
}

// percent returns part/whole as a percentage rounded to three decimals. An empty
// whole counts as complete.
func percent(part, whole int) float64 {
	if whole <= 0 {
		return 100
	}
	return roundTo(float64(part)/float64(whole)*100, 3)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func sendProgress(ctx context.Context, ch chan<- Progress, p Progress) error {
	if ch == nil {
		return nil
	}
	select {
	case ch <- p:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
