// Package gateway serves the authenticated local RPC surface: a single
// /rpc dispatch endpoint, unauthenticated health, Prometheus metrics, and
// plugin-mounted HTTP routes.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/slashbot/slashbot/internal/registry"
)

// Method handles one RPC method. Params hold the raw JSON "params" value;
// the returned value is serialized as the result.
type Method func(ctx context.Context, params json.RawMessage) (any, error)

// Error is an RPC failure with a stable machine-readable code.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds an RPC error.
func NewError(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// RPC error codes used by the gateway itself.
const (
	CodeMethodNotFound = "METHOD_NOT_FOUND"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInternal       = "INTERNAL_ERROR"
)

// MethodRegistry maps RPC method names to handlers.
type MethodRegistry struct {
	mu      sync.RWMutex
	methods map[string]Method
	owners  map[string]string
}

// NewMethodRegistry creates an empty method registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{
		methods: make(map[string]Method),
		owners:  make(map[string]string),
	}
}

// Register adds a method, failing on a duplicate name.
func (r *MethodRegistry) Register(name, pluginID string, m Method) error {
	if name == "" {
		return fmt.Errorf("method name is required")
	}
	if m == nil {
		return fmt.Errorf("method %q handler is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.methods[name]; exists {
		return fmt.Errorf("method %q: %w", name, registry.ErrAlreadyRegistered)
	}
	r.methods[name] = m
	r.owners[name] = pluginID
	return nil
}

// Get returns the handler for a method name.
func (r *MethodRegistry) Get(name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

// Names returns all method names, sorted.
func (r *MethodRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
