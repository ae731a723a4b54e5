package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ServiceRegistry stores opaque service implementations contributed by
// plugins. Callers assert the concrete type themselves.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
	owners   map[string]string // service id -> plugin id
}

// NewServiceRegistry creates an empty service registry.
func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]any),
		owners:   make(map[string]string),
	}
}

// Register adds a service, failing on a duplicate id.
func (r *ServiceRegistry) Register(id, pluginID string, impl any) error {
	if id == "" {
		return fmt.Errorf("service id is required")
	}
	if impl == nil {
		return fmt.Errorf("service %q implementation is nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[id]; exists {
		return fmt.Errorf("service %q: %w", id, ErrAlreadyRegistered)
	}
	r.services[id] = impl
	r.owners[id] = pluginID
	return nil
}

// Get returns the service implementation for an id.
func (r *ServiceRegistry) Get(id string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	impl, ok := r.services[id]
	return impl, ok
}

// Owner returns the plugin that registered a service.
func (r *ServiceRegistry) Owner(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[id]
	return owner, ok
}

// IDs returns all service ids, sorted.
func (r *ServiceRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ServiceAs fetches a service and asserts its type.
func ServiceAs[T any](r *ServiceRegistry, id string) (T, bool) {
	var zero T
	impl, ok := r.Get(id)
	if !ok {
		return zero, false
	}
	typed, ok := impl.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Outcome reports whether a guarded registration succeeded.
type Outcome struct {
	OK     bool
	Reason string
}

// SafeRegister runs a registration func, converting panics and errors into
// a logged Outcome so one bad contribution never aborts sibling
// registrations during plugin setup.
func SafeRegister(logger *slog.Logger, label string, fn func() error) (outcome Outcome) {
	if logger == nil {
		logger = slog.Default()
	}

	defer func() {
		if p := recover(); p != nil {
			outcome = Outcome{OK: false, Reason: fmt.Sprintf("panic: %v", p)}
			logger.Warn("registration panic", "label", label, "panic", p)
		}
	}()

	if err := fn(); err != nil {
		logger.Warn("registration failed", "label", label, "error", err)
		return Outcome{OK: false, Reason: err.Error()}
	}

	logger.Debug("registered", "label", label)
	return Outcome{OK: true}
}
