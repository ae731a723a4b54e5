// Package kernel wires the registries, hook dispatcher, plugin loader,
// auth router, and gateway into one host and exposes the façade the rest
// of the process drives.
package kernel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/slashbot/slashbot/internal/auth"
	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/config"
	"github.com/slashbot/slashbot/internal/contextprep"
	"github.com/slashbot/slashbot/internal/gateway"
	"github.com/slashbot/slashbot/internal/hooks"
	"github.com/slashbot/slashbot/internal/observability"
	"github.com/slashbot/slashbot/internal/plugins"
	"github.com/slashbot/slashbot/internal/prompt"
	"github.com/slashbot/slashbot/internal/sessions"
	"github.com/slashbot/slashbot/pkg/models"
)

// defaultCorePrompt seeds the prompt assembler; plugins add sections.
const defaultCorePrompt = "You are Slashbot, a local assistant. Use the available tools when they help."

// Options configure a kernel.
type Options struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      *observability.Metrics
	HomeDir      string
	WorkspaceDir string

	// ExtraPlugins load alongside the builtins.
	ExtraPlugins []plugins.Definition
}

// Kernel is the assistant host: one per process.
type Kernel struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	bus        *bus.Bus
	dispatcher *hooks.Dispatcher
	host       *plugins.Host
	loader     *plugins.Loader

	authStore *auth.Store
	router    *auth.Router
	sessions  *sessions.Store
	assembler *prompt.Assembler

	gateway *gateway.Server

	workspaceDir string
	extraPlugins []plugins.Definition

	mu            sync.Mutex
	conversations map[string][]models.Message
	started       bool
}

// New builds a kernel; Start brings it up.
func New(opts Options) (*Kernel, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("kernel requires a config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HomeDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		opts.HomeDir = home
	}
	if opts.WorkspaceDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve workspace dir: %w", err)
		}
		opts.WorkspaceDir = wd
	}

	eventBus := bus.New(logger)
	dispatcher := hooks.NewDispatcher(opts.Config.Hooks.DefaultTimeout(), logger, eventBus, opts.Metrics)
	host := plugins.NewHost(opts.Config, dispatcher, eventBus, logger, opts.Metrics, opts.WorkspaceDir)

	authStore := auth.NewStore(opts.HomeDir, "", opts.WorkspaceDir, logger)

	k := &Kernel{
		cfg:           opts.Config,
		logger:        logger.With("component", "kernel"),
		metrics:       opts.Metrics,
		bus:           eventBus,
		dispatcher:    dispatcher,
		host:          host,
		loader:        plugins.NewLoader(host),
		authStore:     authStore,
		router:        auth.NewRouter(authStore, host.Providers, opts.Config, logger),
		sessions:      sessions.NewStore(opts.HomeDir, logger),
		assembler:     prompt.NewAssembler(defaultCorePrompt),
		workspaceDir:  opts.WorkspaceDir,
		conversations: make(map[string][]models.Message),
	}
	k.extraPlugins = opts.ExtraPlugins
	return k, nil
}

// Start loads config hooks and plugins, registers kernel RPC methods,
// starts the gateway when configured, and dispatches the startup hook.
// A plugin dependency cycle is the only plugin condition that aborts.
func (k *Kernel) Start(ctx context.Context) error {
	k.mu.Lock()
	if k.started {
		k.mu.Unlock()
		return fmt.Errorf("kernel already started")
	}
	k.started = true
	k.mu.Unlock()

	hooks.RegisterConfigHooks(k.dispatcher, k.cfg.Hooks, k.workspaceDir, k.logger)

	candidates, err := plugins.Discover(
		append(plugins.Builtins(), k.extraPlugins...), k.cfg.Plugins, k.logger)
	if err != nil {
		return err
	}
	if _, err := k.loader.Load(ctx, candidates); err != nil {
		return err
	}

	k.registerKernelMethods()

	if k.cfg.Gateway.AuthToken != "" {
		srv, err := gateway.NewServer(gateway.Options{
			Host:      k.cfg.Gateway.Host,
			Port:      k.cfg.Gateway.Port,
			AuthToken: k.cfg.Gateway.AuthToken,
			Methods:   k.host.Methods,
			Routes:    k.host.Routes,
			Health:    func(ctx context.Context) (any, error) { return k.Health(), nil },
			Logger:    k.logger,
			Metrics:   k.metrics,
		})
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}
		k.gateway = srv
	} else {
		k.logger.Info("gateway disabled: no auth token configured")
	}

	k.bus.Publish(models.NewEnvelope("kernel:ready", map[string]any{
		"plugins": len(k.loader.ActiveIDs()),
	}))
	report := k.dispatcher.Dispatch(ctx, hooks.DomainKernel, hooks.EventStartup, hooks.Payload{
		"workspace": k.workspaceDir,
	})
	for _, f := range report.Failures {
		k.logger.Warn("startup hook failure", "plugin", f.PluginID, "error", f.Message)
	}

	k.logger.Info("kernel started",
		"plugins", len(k.loader.ActiveIDs()),
		"tools", k.host.Tools.Len(),
		"commands", k.host.Commands.Len())
	return nil
}

// GatewayAddr returns the bound gateway address, if serving.
func (k *Kernel) GatewayAddr() string {
	if k.gateway == nil {
		return ""
	}
	return k.gateway.Addr()
}

// Bus returns the kernel event bus.
func (k *Kernel) Bus() *bus.Bus { return k.bus }

// Host returns the contribution registries.
func (k *Kernel) Host() *plugins.Host { return k.host }

// Diagnostics returns the plugin load outcomes.
func (k *Kernel) Diagnostics() []plugins.Diagnostic { return k.loader.Diagnostics() }

// HealthDoc is the health() payload.
type HealthDoc struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details"`
}

// Health reports ok, or degraded when any plugin diagnostic is failed.
func (k *Kernel) Health() HealthDoc {
	status := "ok"
	if k.loader.FailedCount() > 0 {
		status = "degraded"
	}
	return HealthDoc{
		Status: status,
		Details: map[string]any{
			"plugins":       len(k.loader.ActiveIDs()),
			"pluginsFailed": k.loader.FailedCount(),
			"tools":         k.host.Tools.Len(),
			"commands":      k.host.Commands.Len(),
			"providers":     len(k.host.Providers.List()),
			"methods":       len(k.host.Methods.Names()),
		},
	}
}

// Shutdown dispatches the shutdown hook, deactivates plugins in reverse
// order, and drains the gateway.
func (k *Kernel) Shutdown(ctx context.Context) error {
	report := k.dispatcher.Dispatch(ctx, hooks.DomainKernel, hooks.EventShutdown, nil)
	for _, f := range report.Failures {
		k.logger.Warn("shutdown hook failure", "plugin", f.PluginID, "error", f.Message)
	}

	k.loader.DeactivateAll(ctx)

	if k.gateway != nil {
		if err := k.gateway.Shutdown(ctx); err != nil {
			return fmt.Errorf("gateway shutdown: %w", err)
		}
	}
	k.logger.Info("kernel stopped")
	return nil
}

// pipelineConfig derives the context pipeline settings for a model.
func (k *Kernel) pipelineConfig(providerID string, contextWindow int) contextprep.PipelineConfig {
	if contextWindow <= 0 {
		contextWindow = 128000
	}
	cfg := contextprep.DefaultConfig(contextWindow)
	cfg.ProviderID = providerID
	return cfg
}
