package plugins

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/slashbot/slashbot/internal/commands"
	"github.com/slashbot/slashbot/internal/hooks"
	"github.com/slashbot/slashbot/internal/providers"
	"github.com/slashbot/slashbot/internal/registry"
	"github.com/slashbot/slashbot/internal/tools"
	"github.com/slashbot/slashbot/pkg/models"
)

// Builtins returns the plugin definitions compiled into the binary.
func Builtins() []Definition {
	return []Definition{
		{
			Manifest: Manifest{
				ID:          "core",
				Name:        "Core",
				Version:     "1.0.0",
				Description: "Bundled providers, the echo tool, and host introspection.",
				Priority:    10,
			},
			Factory: func() Plugin { return &corePlugin{Base{PluginID: "core"}, nil} },
		},
		{
			Manifest: Manifest{
				ID:           "workspace-hooks",
				Name:         "Workspace Hooks",
				Version:      "1.0.0",
				Description:  "Runs executable scripts from .slashbot/hooks on matching events.",
				Dependencies: []string{"core"},
				Priority:     20,
			},
			Factory: func() Plugin { return &workspaceHooksPlugin{Base: Base{PluginID: "workspace-hooks"}} },
		},
	}
}

type corePlugin struct {
	Base
	api *API
}

type echoArgs struct {
	Text string `json:"text"`
}

func (p *corePlugin) Setup(ctx context.Context, api *API) error {
	p.api = api

	if err := registerBuiltinProviders(api); err != nil {
		return err
	}

	api.RegisterTool(tools.Tool{
		ID:          "echo",
		Title:       "Echo",
		Description: "Returns its input text, useful for wiring checks.",
		Parameters:  tools.ParametersFor[echoArgs](),
		Execute: func(ctx context.Context, args map[string]any, tc tools.Context) (*models.ToolResult, error) {
			text, _ := args["text"].(string)
			return &models.ToolResult{OK: true, Output: text}, nil
		},
	})

	api.RegisterCommand(commands.Command{
		ID:          "status",
		Description: "Prints every status indicator and its current value.",
		Handler: func(ctx context.Context, inv commands.Invocation) int {
			for _, state := range api.StatusList() {
				status := state.Status
				if status == "" {
					status = "-"
				}
				fmt.Fprintf(inv.Stdout, "%-20s %s\n", state.Indicator.Label, status)
			}
			return 0
		},
	})

	api.RegisterGatewayMethod("system.info", func(ctx context.Context, params json.RawMessage) (any, error) {
		hostname, _ := os.Hostname()
		return map[string]any{
			"hostname":  hostname,
			"pid":       os.Getpid(),
			"goVersion": runtime.Version(),
			"os":        runtime.GOOS,
			"arch":      runtime.GOARCH,
			"workspace": api.WorkspaceDir(),
		}, nil
	})

	api.RegisterStatusIndicator(registry.Indicator{ID: "core", Label: "Core", Priority: 1})
	return nil
}

func (p *corePlugin) Activate(ctx context.Context) error {
	return p.api.UpdateStatus("core", "ready")
}

func registerBuiltinProviders(api *API) error {
	out := registry.SafeRegister(api.Logger(), "providers/builtin", func() error {
		return providers.RegisterBuiltins(api.host.Providers)
	})
	if !out.OK {
		return fmt.Errorf("register builtin providers: %s", out.Reason)
	}
	return nil
}

type workspaceHooksPlugin struct {
	Base
	watcher *hooks.ScriptWatcher
	cancel  context.CancelFunc
}

func (p *workspaceHooksPlugin) Setup(ctx context.Context, api *API) error {
	p.watcher = hooks.NewScriptWatcher(api.host.Hooks, api.WorkspaceDir(), api.Logger())
	api.RegisterStatusIndicator(registry.Indicator{ID: "workspace-hooks", Label: "Workspace hooks", Priority: 50})
	return nil
}

func (p *workspaceHooksPlugin) Activate(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	return p.watcher.Start(watchCtx)
}

func (p *workspaceHooksPlugin) Deactivate(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	if p.watcher != nil {
		p.watcher.Stop()
	}
	return nil
}
