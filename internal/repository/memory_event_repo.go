package repository

import (
	"context"
	"sync"

	"mps-dashboard/internal/event"
)

// MemoryAuthEventRepository keeps the most recent events in process. It
// backs the events route when no database is configured.
type MemoryAuthEventRepository struct {
	mu       sync.RWMutex
	capacity int
	events   []event.Event
}

func NewMemoryAuthEventRepository(capacity int) *MemoryAuthEventRepository {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryAuthEventRepository{capacity: capacity}
}

func (r *MemoryAuthEventRepository) Insert(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, e)
	if overflow := len(r.events) - r.capacity; overflow > 0 {
		r.events = append(r.events[:0:0], r.events[overflow:]...)
	}
	return nil
}

// Recent returns the actor's events newest first.
func (r *MemoryAuthEventRepository) Recent(_ context.Context, actorID string, limit int) ([]event.Event, error) {
	limit = clampLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]event.Event, 0, limit)
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].ActorID == actorID {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}
