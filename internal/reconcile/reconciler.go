// Package reconcile resolves the resume point of an activity from the local checkpoint
// and the server's latest received timestamp.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"example.com/healthsync/internal/checkpoint"
)

// LatestLookup reports the newest timestamp the server holds for an activity.
// The boolean is false when the server has no data yet.
type LatestLookup interface {
	LatestTimestamp(ctx context.Context, activity string) (time.Time, bool, error)
}

// Decision names the branch of the resolution policy that produced a resume point.
type Decision string

const (
	// DecisionBootstrapRemote adopts the server value because nothing was stored locally.
	DecisionBootstrapRemote Decision = "bootstrap_remote"
	// DecisionBootstrapDefault falls back to the earliest supported date.
	DecisionBootstrapDefault Decision = "bootstrap_default"
	// DecisionRemote trusts a server value that caught up with or passed the local one.
	DecisionRemote Decision = "remote"
	// DecisionLocal keeps a local value that is ahead of what the server reports.
	DecisionLocal Decision = "local"
)

// Resolution is the outcome of one Resolve call.
type Resolution struct {
	Activity  string
	ResumeAt  time.Time
	Decision  Decision
	Persisted bool
}

// Decide applies the resolution policy. It never returns a value lower than local
// when a local checkpoint exists.
func Decide(local time.Time, hasLocal bool, remote time.Time, hasRemote bool, fallback time.Time) (time.Time, Decision) {
	switch {
	case !hasLocal && hasRemote:
		return remote, DecisionBootstrapRemote
	case !hasLocal:
		return fallback, DecisionBootstrapDefault
	case hasRemote && !remote.Before(local):
		return remote, DecisionRemote
	default:
		return local, DecisionLocal
	}
}

// Option configures optional behaviour for the Reconciler.
type Option func(*Reconciler)

// WithLogger overrides the logger used to report lookup failures.
func WithLogger(logger *log.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// Reconciler merges Store state with the remote authority and writes the result back.
type Reconciler struct {
	store    checkpoint.Store
	remote   LatestLookup
	fallback time.Time
	logger   *log.Logger
}

// New constructs a Reconciler. fallback is used when neither side knows anything.
func New(store checkpoint.Store, remote LatestLookup, fallback time.Time, opts ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, errors.New("checkpoint store is required")
	}
	if remote == nil {
		return nil, errors.New("remote lookup is required")
	}
	r := &Reconciler{
		store:    store,
		remote:   remote,
		fallback: fallback,
		logger:   log.New(log.Writer(), "[reconcile] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the resume point for activity and persists it when the policy says so.
// A failed server lookup is treated as "no server data" and never persists the fallback,
// so the next run asks the server again. Store failures are returned.
func (r *Reconciler) Resolve(ctx context.Context, activity string) (Resolution, error) {
	local, hasLocal, err := r.store.Get(ctx, activity)
	if err != nil {
		return Resolution{}, fmt.Errorf("read checkpoint %s: %w", activity, err)
	}

	remote, hasRemote, lookupErr := r.remote.LatestTimestamp(ctx, activity)
	if lookupErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Resolution{}, ctxErr
		}
		r.logger.Printf("latest timestamp lookup failed (activity=%s): %v", activity, lookupErr)
		recordLookupError(activity)
		hasRemote = false
	}

	resumeAt, decision := Decide(local, hasLocal, remote, hasRemote, r.fallback)
	res := Resolution{Activity: activity, ResumeAt: resumeAt, Decision: decision}
	recordDecision(decision)

	persist := decision == DecisionBootstrapRemote || decision == DecisionRemote ||
		(decision == DecisionBootstrapDefault && lookupErr == nil)
	if !persist {
		return res, nil
	}
	if err := r.store.Set(ctx, activity, resumeAt); err != nil {
		return Resolution{}, fmt.Errorf("write checkpoint %s: %w", activity, err)
	}
	res.Persisted = true
	return res, nil
}
