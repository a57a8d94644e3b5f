// Package checkpoint persists the last-synced timestamp of every activity.
package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store is a durable activity -> last synced timestamp mapping.
type Store interface {
	// Get returns the checkpoint for activity. The boolean is false when none exists.
	Get(ctx context.Context, activity string) (time.Time, bool, error)
	// Set stores the checkpoint for activity, replacing any previous value.
	Set(ctx context.Context, activity string, at time.Time) error
	// All returns every stored checkpoint.
	All(ctx context.Context) (map[string]time.Time, error)
}

// Entry is one checkpoint row, used for listing.
type Entry struct {
	Activity     string
	LastSyncedAt time.Time
}

// Sorted lists the checkpoints of a store ordered by activity identifier.
func Sorted(ctx context.Context, store Store) ([]Entry, error) {
	all, err := store.All(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(all))
	for activity, at := range all {
		entries = append(entries, Entry{Activity: activity, LastSyncedAt: at})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Activity < entries[j].Activity })
	return entries, nil
}

// MemoryStore is an in-process Store. It does not survive restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	points map[string]time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{points: make(map[string]time.Time)}
}

func (s *MemoryStore) Get(_ context.Context, activity string) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.points[activity]
	return at, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, activity string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[activity] = at
	return nil
}

func (s *MemoryStore) All(_ context.Context) (map[string]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.points))
	for k, v := range s.points {
		out[k] = v
	}
	return out, nil
}
