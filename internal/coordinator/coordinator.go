// Package coordinator walks every (epoch, activity) work unit in order: it resolves the
// resume point, fetches the unit's records and hands them to the upload queue.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/healthsync/internal/checkpoint"
	"example.com/healthsync/internal/domain"
	"example.com/healthsync/internal/reconcile"
	"example.com/healthsync/internal/upload"
)

// Source returns the records of activity in the inclusive window [start, end].
type Source interface {
	Fetch(ctx context.Context, activity string, start, end time.Time) (domain.SyncBatch, error)
}

// Resolver produces the resume point of an activity.
type Resolver interface {
	Resolve(ctx context.Context, activity string) (reconcile.Resolution, error)
}

// Drainer delivers a batch and reports progress on events.
type Drainer interface {
	Drain(ctx context.Context, batch domain.SyncBatch, events chan<- upload.Event) (upload.Result, error)
}

// Report describes one processed work unit.
type Report struct {
	Unit     domain.WorkUnit
	Outcome  Outcome
	Upload   upload.Result
	FetchErr error
}

// Summary aggregates a full Run.
type Summary struct {
	Units       int
	Skipped     int
	Empty       int
	FetchErrors int
	Delivered   int
	DeadLetters int
}

// Option configures optional behaviour for the Coordinator.
type Option func(*Coordinator)

// WithLogger overrides the coordinator logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithProgress sends Progress values to ch. Sends block until received or cancelled.
func WithProgress(ch chan<- Progress) Option {
	return func(c *Coordinator) {
		c.progress = ch
	}
}

// WithClock overrides the time source used to cap epoch-completion checkpoints.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// Coordinator is the sync state machine. It is not safe for concurrent use.
type Coordinator struct {
	catalog  domain.Catalog
	epochs   []domain.Epoch
	resolver Resolver
	source   Source
	queue    Drainer
	store    checkpoint.Store
	logger   *log.Logger
	progress chan<- Progress
	now      func() time.Time

	state          State
	epochIdx       int
	activityIdx    int
	unitsCompleted int
}

// New validates the configuration and returns a Coordinator positioned at the first unit.
func New(
	catalog domain.Catalog,
	epochs []domain.Epoch,
	resolver Resolver,
	source Source,
	queue Drainer,
	store checkpoint.Store,
	opts ...Option,
) (*Coordinator, error) {
	if catalog.Len() == 0 {
		return nil, domain.ErrEmptyCatalog
	}
	if len(epochs) == 0 {
		return nil, fmt.Errorf("%w: no epochs to sync", domain.ErrInvalidEpochs)
	}
	if err := domain.ValidateEpochs(epochs); err != nil {
		return nil, err
	}
	if resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if source == nil {
		return nil, errors.New("data source is required")
	}
	if queue == nil {
		return nil, errors.New("upload queue is required")
	}
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	c := &Coordinator{
		catalog:  catalog,
		epochs:   append([]domain.Epoch(nil), epochs...),
		resolver: resolver,
		source:   source,
		queue:    queue,
		store:    store,
		logger:   log.New(log.Writer(), "[coordinator] ", log.LstdFlags),
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current state.
func (c *Coordinator) State() State { return c.state }

// Done reports whether every unit has been visited.
func (c *Coordinator) Done() bool { return c.state == StateAllComplete }

// TotalUnits is the number of work units in the grid.
func (c *Coordinator) TotalUnits() int { return c.catalog.Len() * len(c.epochs) }

// Run processes units until all are complete, a fatal error occurs or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	for !c.Done() {
		rep, err := c.Next(ctx)
		if err != nil {
			return sum, err
		}
		if c.Done() && rep.Outcome == "" {
			break
		}
		sum.Units++
		sum.Delivered += rep.Upload.Delivered
		sum.DeadLetters += rep.Upload.Skipped
		switch rep.Outcome {
		case OutcomeSkipped:
			sum.Skipped++
		case OutcomeEmpty:
			sum.Empty++
		case OutcomeFetchFailed:
			sum.FetchErrors++
		}
	}
	c.logger.Printf("sync complete: units=%d delivered=%d skipped=%d empty=%d fetch_errors=%d dead_letters=%d",
		sum.Units, sum.Delivered, sum.Skipped, sum.Empty, sum.FetchErrors, sum.DeadLetters)
	return sum, nil
}

// Next processes exactly one work unit and advances the pointers. Once every unit has
// been visited it returns an empty Report and Done reports true.
func (c *Coordinator) Next(ctx context.Context) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if c.epochIdx >= len(c.epochs) {
		c.state = StateAllComplete
		return Report{}, nil
	}

	epoch := c.epochs[c.epochIdx]
	activity := c.catalog.At(c.activityIdx)
	unit := domain.WorkUnit{
		EpochIndex:    c.epochIdx,
		ActivityIndex: c.activityIdx,
		Epoch:         epoch,
		Activity:      activity,
	}

	c.state = StateResolvingStart
	res, err := c.resolver.Resolve(ctx, activity.ID)
	if err != nil {
		return Report{Unit: unit}, fmt.Errorf("resolve %s: %w", activity.ID, err)
	}
	unit.EffectiveStart = res.ResumeAt
	if unit.EffectiveStart.Before(epoch.Start) {
		unit.EffectiveStart = epoch.Start
	}

	rep := Report{Unit: unit}
	if unit.EffectiveStart.After(epoch.End) {
		rep.Outcome = OutcomeSkipped
		return rep, c.advance(ctx, rep)
	}

	c.state = StateFetching
	batch, fetchErr := c.source.Fetch(ctx, activity.ID, unit.EffectiveStart, epoch.End)
	if fetchErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rep, ctxErr
		}
		c.logger.Printf("fetch failed (activity=%s epoch=%s): %v", activity.ID, epoch, fetchErr)
		recordFetchError(activity.ID)
		rep.Outcome = OutcomeFetchFailed
		rep.FetchErr = fetchErr
		return rep, c.advance(ctx, rep)
	}
	if batch.Empty() {
		rep.Outcome = OutcomeEmpty
		return rep, c.advance(ctx, rep)
	}
	batch.Activity = activity.ID
	batch.Window = domain.Epoch{Start: unit.EffectiveStart, End: epoch.End}

	c.state = StateUploading
	result, err := c.drain(ctx, batch)
	rep.Upload = result
	if err != nil {
		return rep, fmt.Errorf("upload %s %s: %w", activity.ID, epoch, err)
	}
	rep.Outcome = OutcomeUploaded
	return rep, c.advance(ctx, rep)
}

// drain runs the queue and forwards its events as Progress values.
func (c *Coordinator) drain(ctx context.Context, batch domain.SyncBatch) (upload.Result, error) {
	if c.progress == nil {
		return c.queue.Drain(ctx, batch, nil)
	}
	events := make(chan upload.Event)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			if ev.Kind == upload.EventCompleted {
				continue
			}
			_ = sendProgress(ctx, c.progress, c.snapshot(batch.Activity, ev.Done, ev.Total))
		}
	}()
	result, err := c.queue.Drain(ctx, batch, events)
	close(events)
	wg.Wait()
	return result, err
}

func (c *Coordinator) advance(ctx context.Context, rep Report) error {
	recordUnit(rep.Outcome)
	c.unitsCompleted++
	setOverallProgress(percent(c.unitsCompleted, c.TotalUnits()))

	done, total := rep.Upload.Delivered+rep.Upload.Skipped, rep.Upload.Total
	if err := sendProgress(ctx, c.progress, c.snapshot(rep.Unit.Activity.ID, done, total)); err != nil {
		return err
	}

	c.activityIdx++
	if c.activityIdx < c.catalog.Len() {
		c.state = StateIdle
		return nil
	}

	c.state = StateEpochExhausted
	finished := c.epochs[c.epochIdx]
	c.activityIdx = 0
	c.epochIdx++
	if err := c.raiseCheckpoints(ctx, finished); err != nil {
		return err
	}
	if c.epochIdx >= len(c.epochs) {
		c.state = StateAllComplete
		return nil
	}
	c.state = StateIdle
	return nil
}

// raiseCheckpoints moves every activity's checkpoint up to the end of the finished
// epoch, capped at now so the running month is fetched again on the next pass.
func (c *Coordinator) raiseCheckpoints(ctx context.Context, finished domain.Epoch) error {
	target := finished.End
	if now := c.now(); now.Before(target) {
		target = now
	}
	for _, activity := range c.catalog.All() {
		current, ok, err := c.store.Get(ctx, activity.ID)
		if err != nil {
			return fmt.Errorf("read checkpoint %s: %w", activity.ID, err)
		}
		if ok && !target.After(current) {
			continue
		}
		if err := c.store.Set(ctx, activity.ID, target); err != nil {
			return fmt.Errorf("write checkpoint %s: %w", activity.ID, err)
		}
	}
	c.logger.Printf("epoch %s exhausted, checkpoints raised to %s", finished, target.Format(time.RFC3339))
	return nil
}

func (c *Coordinator) snapshot(activity string, done, total int) Progress {
	var epoch domain.Epoch
	if c.epochIdx < len(c.epochs) {
		epoch = c.epochs[c.epochIdx]
	}
	return Progress{
		Activity:       activity,
		Epoch:          epoch,
		UnitDone:       done,
		UnitTotal:      total,
		UnitPercent:    percent(done, total),
		UnitsCompleted: c.unitsCompleted,
		UnitsTotal:     c.TotalUnits(),
		OverallPercent: percent(c.unitsCompleted, c.TotalUnits()),
	}
}
