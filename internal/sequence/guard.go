// Package sequence runs delayed multi-step notification sequences with
// per-entity mutual exclusion and store-backed progress snapshots.
package sequence

import "sync"

// Guard provides per-entity mutual exclusion so two overlapping sequences
// can never run for the same entity id. State is in-process only: with
// multiple service instances each instance has its own guard, so
// single-instance deployment is an explicit assumption of this design.
type Guard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{active: make(map[string]struct{})}
}

// TryClaim records entityID as active iff no active sequence exists for it.
// The check and the claim happen under one lock so concurrent callers for
// the same id cannot both succeed.
func (g *Guard) TryClaim(entityID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.active[entityID]; exists {
		return false
	}
	g.active[entityID] = struct{}{}
	return true
}

// Release clears the active flag unconditionally. It must be called from a
// deferred cleanup path so a failed sequence never leaves the entity locked.
func (g *Guard) Release(entityID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, entityID)
}

// Active reports whether a sequence is currently claimed for entityID.
func (g *Guard) Active(entityID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, exists := g.active[entityID]
	return exists
}
