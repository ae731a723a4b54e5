package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Plugin load states reported in diagnostics.
const (
	StateActive   = "active"
	StateFailed   = "failed"
	StateDisabled = "disabled"
)

// Diagnostic records the load outcome for one plugin.
type Diagnostic struct {
	PluginID string `json:"pluginId"`
	State    string `json:"state"`
	Source   Source `json:"source"`
	Error    string `json:"error,omitempty"`
}

// Loader runs the plugin lifecycle: order, instantiate, setup, activate.
// A failing plugin is diagnosed and skipped; its dependents fail too.
type Loader struct {
	host   *Host
	logger *slog.Logger

	mu          sync.Mutex
	diagnostics []Diagnostic
	active      []activePlugin
}

type activePlugin struct {
	id       string
	instance Plugin
}

// NewLoader creates a loader over the host.
func NewLoader(host *Host) *Loader {
	return &Loader{
		host:   host,
		logger: host.Logger.With("component", "plugins"),
	}
}

// Load orders candidates and runs each through the lifecycle. The
// returned error is fatal (a dependency cycle); per-plugin failures are
// diagnostics, not errors.
func (l *Loader) Load(ctx context.Context, candidates []Candidate) ([]Diagnostic, error) {
	ordered, err := Order(candidates)
	if err != nil {
		return nil, err
	}

	activeSet := make(map[string]bool)
	for _, c := range ordered {
		diag := l.loadOne(ctx, c, activeSet)
		if diag.State == StateActive {
			activeSet[c.Manifest.ID] = true
		}

		l.mu.Lock()
		l.diagnostics = append(l.diagnostics, diag)
		l.mu.Unlock()
	}
	return l.Diagnostics(), nil
}

func (l *Loader) loadOne(ctx context.Context, c Candidate, activeSet map[string]bool) Diagnostic {
	id := c.Manifest.ID
	diag := Diagnostic{PluginID: id, Source: c.Source}

	if !Enabled(l.host.Config.Plugins, id) {
		l.logger.Info("plugin disabled by config", "plugin", id)
		diag.State = StateDisabled
		return diag
	}

	for _, dep := range c.Manifest.Dependencies {
		if !activeSet[dep] {
			diag.State = StateFailed
			diag.Error = fmt.Sprintf("dependency %q is not active", dep)
			l.logger.Warn("plugin load failed", "plugin", id, "error", diag.Error)
			return diag
		}
	}

	instance, err := instantiate(c)
	if err != nil {
		diag.State = StateFailed
		diag.Error = err.Error()
		l.logger.Warn("plugin load failed", "plugin", id, "error", diag.Error)
		return diag
	}

	api := newAPI(l.host, c.Manifest)
	if err := runGuarded(func() error { return instance.Setup(ctx, api) }); err != nil {
		l.cleanup(id)
		diag.State = StateFailed
		diag.Error = fmt.Sprintf("setup: %v", err)
		l.logger.Warn("plugin load failed", "plugin", id, "error", diag.Error)
		return diag
	}

	if err := runGuarded(func() error { return instance.Activate(ctx) }); err != nil {
		l.cleanup(id)
		diag.State = StateFailed
		diag.Error = fmt.Sprintf("activate: %v", err)
		l.logger.Warn("plugin load failed", "plugin", id, "error", diag.Error)
		return diag
	}

	l.mu.Lock()
	l.active = append(l.active, activePlugin{id: id, instance: instance})
	l.mu.Unlock()

	l.logger.Info("plugin active", "plugin", id, "version", c.Manifest.Version, "source", c.Source)
	diag.State = StateActive
	return diag
}

// instantiate builds the plugin instance and cross-checks its id against
// the manifest.
func instantiate(c Candidate) (Plugin, error) {
	if c.Factory == nil {
		return nil, fmt.Errorf("no runtime available for external plugin (dir %s)", c.Dir)
	}
	instance := c.Factory()
	if instance == nil {
		return nil, fmt.Errorf("factory returned nil")
	}
	if instance.ID() != c.Manifest.ID {
		return nil, fmt.Errorf("instance id %q does not match manifest id %q", instance.ID(), c.Manifest.ID)
	}
	return instance, nil
}

// runGuarded converts a lifecycle panic into an error.
func runGuarded(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

// cleanup removes a failed plugin's hooks so a half-set-up plugin leaves
// no handlers behind.
func (l *Loader) cleanup(pluginID string) {
	if removed := l.host.Hooks.UnregisterPlugin(pluginID); removed > 0 {
		l.logger.Debug("removed hooks of failed plugin", "plugin", pluginID, "hooks", removed)
	}
}

// Diagnostics returns a snapshot of all load outcomes.
func (l *Loader) Diagnostics() []Diagnostic {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Diagnostic(nil), l.diagnostics...)
}

// FailedCount returns how many plugins failed to load.
func (l *Loader) FailedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, d := range l.diagnostics {
		if d.State == StateFailed {
			n++
		}
	}
	return n
}

// ActiveIDs returns the ids of active plugins in activation order.
func (l *Loader) ActiveIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.active))
	for _, a := range l.active {
		ids = append(ids, a.id)
	}
	return ids
}

// DeactivateAll deactivates active plugins in reverse activation order.
// Deactivation errors are logged, never fatal.
func (l *Loader) DeactivateAll(ctx context.Context) {
	l.mu.Lock()
	active := append([]activePlugin(nil), l.active...)
	l.active = nil
	l.mu.Unlock()

	for i := len(active) - 1; i >= 0; i-- {
		p := active[i]
		if err := runGuarded(func() error { return p.instance.Deactivate(ctx) }); err != nil {
			l.logger.Warn("plugin deactivate failed", "plugin", p.id, "error", err)
		}
		l.host.Hooks.UnregisterPlugin(p.id)
	}
}
