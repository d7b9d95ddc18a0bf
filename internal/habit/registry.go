package habit

import (
	"sort"
	"sync"
)

// Registry is the in-memory habit table shared by the scoring engine and the
// decision orchestrator. It is constructed at process start (loaded from the
// store) and passed by reference; there is no package-level instance.
type Registry struct {
	mu     sync.RWMutex
	habits map[string]*State
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{habits: make(map[string]*State)}
}

// Put inserts or replaces a habit.
func (r *Registry) Put(s *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.habits[s.ID] = s
}

// Get returns the habit with the given id, or nil.
func (r *Registry) Get(id string) *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.habits[id]
}

// Remove deletes a habit by id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.habits, id)
}

// All returns the habits sorted by id for deterministic iteration.
func (r *Registry) All() []*State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*State, 0, len(r.habits))
	for _, h := range r.habits {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered habits.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.habits)
}

// Snapshot returns deep copies of all habits, for audit records.
func (r *Registry) Snapshot() []*State {
	all := r.All()
	out := make([]*State, len(all))
	for i, h := range all {
		out[i] = h.Clone()
	}
	return out
}
