package registry

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// Route is one HTTP route contributed by a plugin. Routes are keyed by
// (method, path), so the same path may carry different methods.
type Route struct {
	Method   string
	Path     string
	PluginID string

	// Public opts the route out of gateway bearer auth.
	Public bool

	Handler http.Handler
}

// RouteRegistry holds plugin-contributed HTTP routes.
type RouteRegistry struct {
	mu     sync.RWMutex
	routes map[string]Route
	order  []string
}

// NewRouteRegistry creates an empty route registry.
func NewRouteRegistry() *RouteRegistry {
	return &RouteRegistry{routes: make(map[string]Route)}
}

func routeKey(method, path string) string {
	return strings.ToUpper(strings.TrimSpace(method)) + " " + path
}

// Register adds a route, failing on a duplicate (method, path) pair.
func (r *RouteRegistry) Register(route Route) error {
	if route.Method == "" || route.Path == "" {
		return fmt.Errorf("route method and path are required")
	}
	if route.Handler == nil {
		return fmt.Errorf("route handler is required")
	}

	key := routeKey(route.Method, route.Path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.routes[key]; exists {
		return fmt.Errorf("route %s: %w", key, ErrAlreadyRegistered)
	}
	r.routes[key] = route
	r.order = append(r.order, key)
	return nil
}

// Get returns the route for a (method, path) pair.
func (r *RouteRegistry) Get(method, path string) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[routeKey(method, path)]
	return route, ok
}

// List returns a snapshot of all routes in registration order.
func (r *RouteRegistry) List() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.routes[key])
	}
	return out
}
