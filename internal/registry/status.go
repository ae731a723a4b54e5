package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// DefaultIndicatorPriority orders indicators without an explicit priority.
const DefaultIndicatorPriority = 100

// Indicator is a named status slot shown on the host's status surface.
type Indicator struct {
	ID       string
	PluginID string
	Label    string
	Priority int // lower sorts first; 0 means DefaultIndicatorPriority
}

// RegistryID implements Item.
func (i Indicator) RegistryID() string { return i.ID }

func (i Indicator) effectivePriority() int {
	if i.Priority == 0 {
		return DefaultIndicatorPriority
	}
	return i.Priority
}

// IndicatorState pairs an indicator with its live status value.
type IndicatorState struct {
	Indicator Indicator
	Status    string
}

// StatusSubscriber is notified when an indicator's status changes.
type StatusSubscriber func(id, status string)

// StatusRegistry holds indicators plus a live status value per indicator.
type StatusRegistry struct {
	mu       sync.RWMutex
	items    map[string]Indicator
	status   map[string]string
	order    map[string]int // id -> insertion sequence, for priority ties
	nextSeq  int
	watchers map[string]StatusSubscriber
}

// NewStatusRegistry creates an empty status registry.
func NewStatusRegistry() *StatusRegistry {
	return &StatusRegistry{
		items:    make(map[string]Indicator),
		status:   make(map[string]string),
		order:    make(map[string]int),
		watchers: make(map[string]StatusSubscriber),
	}
}

// Register adds an indicator, failing on a duplicate id.
func (r *StatusRegistry) Register(ind Indicator) error {
	if ind.ID == "" {
		return fmt.Errorf("indicator id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[ind.ID]; exists {
		return fmt.Errorf("indicator %q: %w", ind.ID, ErrAlreadyRegistered)
	}
	r.items[ind.ID] = ind
	r.order[ind.ID] = r.nextSeq
	r.nextSeq++
	return nil
}

// UpdateStatus sets an indicator's status; subscribers are invoked only
// when the value actually changes.
func (r *StatusRegistry) UpdateStatus(id, status string) error {
	r.mu.Lock()
	if _, exists := r.items[id]; !exists {
		r.mu.Unlock()
		return fmt.Errorf("indicator %q: %w", id, ErrNotFound)
	}
	if r.status[id] == status {
		r.mu.Unlock()
		return nil
	}
	r.status[id] = status
	watchers := make([]StatusSubscriber, 0, len(r.watchers))
	for _, w := range r.watchers {
		watchers = append(watchers, w)
	}
	r.mu.Unlock()

	for _, w := range watchers {
		w(id, status)
	}
	return nil
}

// Status returns the current status value for an indicator.
func (r *StatusRegistry) Status(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, exists := r.items[id]; !exists {
		return "", false
	}
	return r.status[id], true
}

// Subscribe registers a change watcher; the returned disposer removes it.
func (r *StatusRegistry) Subscribe(sub StatusSubscriber) func() {
	id := uuid.New().String()

	r.mu.Lock()
	r.watchers[id] = sub
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.watchers, id)
	}
}

// List returns indicator states sorted by ascending priority, ties broken
// by insertion order.
func (r *StatusRegistry) List() []IndicatorState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]IndicatorState, 0, len(r.items))
	for id, ind := range r.items {
		out = append(out, IndicatorState{Indicator: ind, Status: r.status[id]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Indicator.effectivePriority(), out[j].Indicator.effectivePriority()
		if pi != pj {
			return pi < pj
		}
		return r.order[out[i].Indicator.ID] < r.order[out[j].Indicator.ID]
	})
	return out
}
