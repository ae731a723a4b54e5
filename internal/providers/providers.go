// Package providers maps provider ids to model factories and default
// completion settings. Built-in providers register at init; plugins may
// contribute more through the plugin API.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/slashbot/slashbot/pkg/models"
)

// Auth method names, ordered per provider by PreferredAuthOrder.
const (
	AuthOAuthPKCE        = "oauth_pkce"
	AuthAPIKey           = "api_key"
	AuthSetupToken       = "setup_token"
	AuthClaudeCodeImport = "claude_code_import"
)

// Model describes one model offered by a provider.
type Model struct {
	ID            string
	DisplayName   string
	ContextWindow int
	Priority      int
	Capabilities  []string
}

// Definition describes a provider and its models.
type Definition struct {
	ID                 string
	PluginID           string
	DisplayName        string
	Models             []Model
	AuthHandlers       []string
	PreferredAuthOrder []string
}

// RegistryID implements registry.Item.
func (d Definition) RegistryID() string { return d.ID }

// Model returns the model with the given id.
func (d Definition) Model(id string) (Model, bool) {
	for _, m := range d.Models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// DefaultModel returns the lowest-priority-value model, falling back to
// the first.
func (d Definition) DefaultModel() (Model, bool) {
	if len(d.Models) == 0 {
		return Model{}, false
	}
	best := d.Models[0]
	for _, m := range d.Models[1:] {
		if m.Priority < best.Priority {
			best = m
		}
	}
	return best, true
}

// ToolSpec advertises one callable tool to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// CompletionRequest is a provider-agnostic model call.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []models.Message
	Tools       []ToolSpec
	MaxTokens   int
	Temperature float64
}

// Completion is the provider-agnostic model response.
type Completion struct {
	Text         string
	StopReason   string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// Client is a connected model client.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
}

// ClientConfig carries the resolved credential material for a factory.
type ClientConfig struct {
	APIKey  string
	BaseURL string
}

// Factory builds a client for a provider.
type Factory func(ctx context.Context, cfg ClientConfig) (Client, error)

// CompletionDefaults are the per-provider defaults applied when a request
// leaves a field zero.
type CompletionDefaults struct {
	MaxTokens   int
	Temperature float64
}

type entry struct {
	def      Definition
	factory  Factory
	defaults CompletionDefaults
}

// Registry maps provider ids to definitions and factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds a provider, failing on a duplicate id.
func (r *Registry) Register(def Definition, factory Factory, defaults CompletionDefaults) error {
	if def.ID == "" {
		return fmt.Errorf("provider id is required")
	}
	if factory == nil {
		return fmt.Errorf("provider %q factory is required", def.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[def.ID]; exists {
		return fmt.Errorf("provider %q already registered", def.ID)
	}
	r.entries[def.ID] = entry{def: def, factory: factory, defaults: defaults}
	return nil
}

// Get returns a provider definition.
func (r *Registry) Get(id string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.def, ok
}

// Defaults returns the provider's default completion settings.
func (r *Registry) Defaults(id string) (CompletionDefaults, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.defaults, ok
}

// Connect builds a client for a provider using its factory.
func (r *Registry) Connect(ctx context.Context, id string, cfg ClientConfig) (Client, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("provider %q is not registered", id)
	}
	return e.factory(ctx, cfg)
}

// List returns all provider definitions.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.def)
	}
	return out
}
