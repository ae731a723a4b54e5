package plugins

import "context"

// Plugin is one loadable unit. Setup registers contributions through the
// api; Activate runs after every dependency has activated.
type Plugin interface {
	ID() string
	Setup(ctx context.Context, api *API) error
	Activate(ctx context.Context) error
	Deactivate(ctx context.Context) error
}

// Factory instantiates a plugin. A nil return counts as an instantiation
// failure.
type Factory func() Plugin

// Definition pairs a manifest with a compiled-in factory.
type Definition struct {
	Manifest Manifest
	Factory  Factory
}

// Base provides no-op lifecycle methods for plugins that only need Setup.
type Base struct {
	PluginID string
}

// ID implements Plugin.
func (b Base) ID() string { return b.PluginID }

// Activate implements Plugin.
func (b Base) Activate(ctx context.Context) error { return nil }

// Deactivate implements Plugin.
func (b Base) Deactivate(ctx context.Context) error { return nil }
