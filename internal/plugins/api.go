package plugins

import (
	"log/slog"
	"net/http"

	"github.com/slashbot/slashbot/internal/bus"
	"github.com/slashbot/slashbot/internal/commands"
	"github.com/slashbot/slashbot/internal/config"
	"github.com/slashbot/slashbot/internal/gateway"
	"github.com/slashbot/slashbot/internal/hooks"
	"github.com/slashbot/slashbot/internal/observability"
	"github.com/slashbot/slashbot/internal/providers"
	"github.com/slashbot/slashbot/internal/registry"
	"github.com/slashbot/slashbot/internal/tools"
)

// Host bundles every registry a plugin may contribute to.
type Host struct {
	Tools     *registry.Registry[tools.Tool]
	Commands  *registry.Registry[commands.Command]
	Providers *providers.Registry
	Hooks     *hooks.Dispatcher
	Services  *registry.ServiceRegistry
	Methods   *gateway.MethodRegistry
	Routes    *registry.RouteRegistry
	Status    *registry.StatusRegistry
	Bus       *bus.Bus

	Config  *config.Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	// WorkspaceDir is the directory the host was started in.
	WorkspaceDir string
}

// NewHost builds a host with fresh registries around the given dispatcher
// and bus.
func NewHost(cfg *config.Config, dispatcher *hooks.Dispatcher, eventBus *bus.Bus, logger *slog.Logger, metrics *observability.Metrics, workspaceDir string) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		Tools:        registry.New[tools.Tool]("tool"),
		Commands:     registry.New[commands.Command]("command"),
		Providers:    providers.NewRegistry(),
		Hooks:        dispatcher,
		Services:     registry.NewServiceRegistry(),
		Methods:      gateway.NewMethodRegistry(),
		Routes:       registry.NewRouteRegistry(),
		Status:       registry.NewStatusRegistry(),
		Bus:          eventBus,
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		WorkspaceDir: workspaceDir,
	}
}

// API is the capability surface handed to one plugin during Setup. Every
// contribution is stamped with the plugin's id; a failing registration is
// reported as an Outcome and never aborts sibling registrations.
type API struct {
	host     *Host
	manifest Manifest
	logger   *slog.Logger

	hookIDs []string
}

func newAPI(host *Host, manifest Manifest) *API {
	return &API{
		host:     host,
		manifest: manifest,
		logger:   host.Logger.With("component", "plugin", "plugin", manifest.ID),
	}
}

// Logger returns the plugin-scoped logger.
func (a *API) Logger() *slog.Logger { return a.logger }

// Bus returns the host event bus.
func (a *API) Bus() *bus.Bus { return a.host.Bus }

// WorkspaceDir returns the host's workspace directory.
func (a *API) WorkspaceDir() string { return a.host.WorkspaceDir }

// PluginConfig returns the per-plugin config block, if any.
func (a *API) PluginConfig() map[string]any {
	if a.host.Config == nil {
		return nil
	}
	entry, ok := a.host.Config.Plugins.Entry(a.manifest.ID)
	if !ok {
		return nil
	}
	return entry.Config
}

// RegisterTool contributes a tool.
func (a *API) RegisterTool(t tools.Tool) registry.Outcome {
	t.PluginID = a.manifest.ID
	return registry.SafeRegister(a.logger, "tool/"+t.ID, func() error {
		return a.host.Tools.Register(t)
	})
}

// RegisterCommand contributes a command.
func (a *API) RegisterCommand(c commands.Command) registry.Outcome {
	c.PluginID = a.manifest.ID
	return registry.SafeRegister(a.logger, "command/"+c.ID, func() error {
		return a.host.Commands.Register(c)
	})
}

// RegisterProvider contributes a model provider.
func (a *API) RegisterProvider(def providers.Definition, factory providers.Factory, defaults providers.CompletionDefaults) registry.Outcome {
	def.PluginID = a.manifest.ID
	return registry.SafeRegister(a.logger, "provider/"+def.ID, func() error {
		return a.host.Providers.Register(def, factory, defaults)
	})
}

// RegisterHook contributes a hook; the registration id is returned so the
// plugin can unregister it early.
func (a *API) RegisterHook(reg hooks.Registration) (string, registry.Outcome) {
	reg.PluginID = a.manifest.ID
	var id string
	outcome := registry.SafeRegister(a.logger, "hook/"+string(reg.Domain)+"/"+reg.Event, func() error {
		id = a.host.Hooks.Register(reg)
		return nil
	})
	if outcome.OK {
		a.hookIDs = append(a.hookIDs, id)
	}
	return id, outcome
}

// RegisterService contributes a named service implementation.
func (a *API) RegisterService(id string, impl any) registry.Outcome {
	return registry.SafeRegister(a.logger, "service/"+id, func() error {
		return a.host.Services.Register(id, a.manifest.ID, impl)
	})
}

// RegisterGatewayMethod contributes an RPC method.
func (a *API) RegisterGatewayMethod(name string, m gateway.Method) registry.Outcome {
	return registry.SafeRegister(a.logger, "method/"+name, func() error {
		return a.host.Methods.Register(name, a.manifest.ID, m)
	})
}

// RegisterHTTPRoute mounts a handler on the gateway. Public routes skip
// bearer auth.
func (a *API) RegisterHTTPRoute(method, path string, public bool, handler http.Handler) registry.Outcome {
	return registry.SafeRegister(a.logger, "route/"+method+" "+path, func() error {
		return a.host.Routes.Register(registry.Route{
			Method:   method,
			Path:     path,
			PluginID: a.manifest.ID,
			Public:   public,
			Handler:  handler,
		})
	})
}

// RegisterStatusIndicator contributes a status slot.
func (a *API) RegisterStatusIndicator(ind registry.Indicator) registry.Outcome {
	ind.PluginID = a.manifest.ID
	return registry.SafeRegister(a.logger, "status/"+ind.ID, func() error {
		return a.host.Status.Register(ind)
	})
}

// UpdateStatus sets a status indicator's value.
func (a *API) UpdateStatus(id, status string) error {
	return a.host.Status.UpdateStatus(id, status)
}

// StatusList returns every indicator with its current status.
func (a *API) StatusList() []registry.IndicatorState {
	return a.host.Status.List()
}
