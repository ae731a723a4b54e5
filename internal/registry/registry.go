// Package registry provides the typed collections the kernel owns: generic
// id-keyed registries plus the route, status-indicator, and service
// specializations. Reads return snapshots; each registry serializes its own
// mutations with a single lock.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrAlreadyRegistered is returned when Register sees a duplicate id.
var ErrAlreadyRegistered = errors.New("already registered")

// ErrNotFound is returned by lookups for unknown ids.
var ErrNotFound = errors.New("not found")

// Item is anything a registry can hold.
type Item interface {
	// RegistryID returns the unique id within the registry.
	RegistryID() string
}

// Registry is a generic id-keyed collection with deterministic List order
// (insertion order).
type Registry[T Item] struct {
	mu    sync.RWMutex
	items map[string]T
	order []string
	kind  string
}

// New creates a registry; kind labels error messages ("tool", "command", ...).
func New[T Item](kind string) *Registry[T] {
	return &Registry[T]{
		items: make(map[string]T),
		kind:  kind,
	}
}

// Register adds an item, failing with ErrAlreadyRegistered on a duplicate id.
func (r *Registry[T]) Register(item T) error {
	id := item.RegistryID()
	if id == "" {
		return fmt.Errorf("%s id is required", r.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[id]; exists {
		return fmt.Errorf("%s %q: %w", r.kind, id, ErrAlreadyRegistered)
	}
	r.items[id] = item
	r.order = append(r.order, id)
	return nil
}

// Upsert inserts or replaces an item.
func (r *Registry[T]) Upsert(item T) {
	id := item.RegistryID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[id]; !exists {
		r.order = append(r.order, id)
	}
	r.items[id] = item
}

// Get returns the item for an id.
func (r *Registry[T]) Get(id string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[id]
	return item, ok
}

// Remove deletes an item, reporting whether it existed.
func (r *Registry[T]) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[id]; !exists {
		return false
	}
	delete(r.items, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// List returns a snapshot in insertion order. Mutating the returned slice
// never affects the registry.
func (r *Registry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id])
	}
	return out
}

// Len returns the number of registered items.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
