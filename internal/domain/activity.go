package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyCatalog is returned when a sync is configured without any activity types.
	ErrEmptyCatalog = errors.New("activity catalog is empty")
	// ErrUnknownActivity is returned when an activity identifier is not part of the catalog.
	ErrUnknownActivity = errors.New("unknown activity")
)

// Activity names one metric time series, e.g. heart rate samples.
type Activity struct {
	ID         string
	SourceType string
	Unit       string
}

// Catalog is the fixed, ordered set of activities to synchronize. The order is the
// iteration order within every epoch.
type Catalog struct {
	activities []Activity
	index      map[string]int
}

// NewCatalog builds a catalog, rejecting empty input, blank identifiers and duplicates.
func NewCatalog(activities ...Activity) (Catalog, error) {
	if len(activities) == 0 {
		return Catalog{}, ErrEmptyCatalog
	}
	c := Catalog{
		activities: make([]Activity, 0, len(activities)),
		index:      make(map[string]int, len(activities)),
	}
	for _, a := range activities {
		a.ID = strings.TrimSpace(a.ID)
		if a.ID == "" {
			return Catalog{}, errors.New("activity id is required")
		}
		if _, dup := c.index[a.ID]; dup {
			return Catalog{}, fmt.Errorf("duplicate activity %q", a.ID)
		}
		c.index[a.ID] = len(c.activities)
		c.activities = append(c.activities, a)
	}
	return c, nil
}

// Len returns the number of activities.
func (c Catalog) Len() int { return len(c.activities) }

// At returns the activity at position i.
func (c Catalog) At(i int) Activity { return c.activities[i] }

// All returns a copy of the activities in catalog order.
func (c Catalog) All() []Activity {
	out := make([]Activity, len(c.activities))
	copy(out, c.activities)
	return out
}

// Lookup finds an activity by identifier.
func (c Catalog) Lookup(id string) (Activity, bool) {
	i, ok := c.index[strings.TrimSpace(id)]
	if !ok {
		return Activity{}, false
	}
	return c.activities[i], true
}

// Subset returns a catalog restricted to ids, keeping the order of the receiver.
func (c Catalog) Subset(ids []string) (Catalog, error) {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := c.index[id]; !ok {
			return Catalog{}, fmt.Errorf("%w: %s", ErrUnknownActivity, id)
		}
		want[id] = struct{}{}
	}
	selected := make([]Activity, 0, len(want))
	for _, a := range c.activities {
		if _, ok := want[a.ID]; ok {
			selected = append(selected, a)
		}
	}
	return NewCatalog(selected...)
}

var defaultActivities = []Activity{
	{ID: "heart_rate", SourceType: "HKQuantityTypeIdentifierHeartRate", Unit: "count/min"},
	{ID: "resting_heart_rate", SourceType: "HKQuantityTypeIdentifierRestingHeartRate", Unit: "count/min"},
	{ID: "step_count", SourceType: "HKQuantityTypeIdentifierStepCount", Unit: "count"},
	{ID: "active_energy_burned", SourceType: "HKQuantityTypeIdentifierActiveEnergyBurned", Unit: "kcal"},
	{ID: "apple_stand_time", SourceType: "HKQuantityTypeIdentifierAppleStandTime", Unit: "min"},
	{ID: "apple_exercise_time", SourceType: "HKQuantityTypeIdentifierAppleExerciseTime", Unit: "min"},
	{ID: "blood_glucose", SourceType: "HKQuantityTypeIdentifierBloodGlucose", Unit: "mmol/L"},
	{ID: "blood_pressure_systolic", SourceType: "HKQuantityTypeIdentifierBloodPressureSystolic", Unit: "mmHg"},
	{ID: "blood_pressure_diastolic", SourceType: "HKQuantityTypeIdentifierBloodPressureDiastolic", Unit: "mmHg"},
	{ID: "body_mass", SourceType: "HKQuantityTypeIdentifierBodyMass", Unit: "lb"},
	{ID: "body_mass_index", SourceType: "HKQuantityTypeIdentifierBodyMassIndex", Unit: "count"},
	{ID: "body_fat_percentage", SourceType: "HKQuantityTypeIdentifierBodyFatPercentage", Unit: "%"},
	{ID: "body_temperature", SourceType: "HKQuantityTypeIdentifierBodyTemperature", Unit: "degF"},
}

// DefaultCatalog returns the built-in health metrics in their canonical sync order.
func DefaultCatalog() Catalog {
	c, err := NewCatalog(defaultActivities...)
	if err != nil {
		panic(err)
	}
	return c
}
