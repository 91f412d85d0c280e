package server

import (
	"sync"

	"github.com/mensajemagico/backend/internal/plan"
)

// UsageTracker keeps per-user daily counters in memory. Acquire hands out the
// state together with its lock so validation and the post-generation
// increment happen under one critical section; a user cannot race past their
// quota with parallel requests.
type UsageTracker struct {
	mu    sync.Mutex
	users map[string]*userUsage
}

type userUsage struct {
	mu    sync.Mutex
	state plan.UsageState
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{users: map[string]*userUsage{}}
}

// Acquire locks the user's usage state and returns it with its release func.
func (t *UsageTracker) Acquire(userID string) (*plan.UsageState, func()) {
	t.mu.Lock()
	entry, ok := t.users[userID]
	if !ok {
		entry = &userUsage{}
		t.users[userID] = entry
	}
	t.mu.Unlock()

	entry.mu.Lock()
	return &entry.state, entry.mu.Unlock
}
