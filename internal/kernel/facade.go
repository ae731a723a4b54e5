package kernel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/slashbot/slashbot/internal/commands"
	"github.com/slashbot/slashbot/internal/gateway"
	"github.com/slashbot/slashbot/internal/hooks"
	"github.com/slashbot/slashbot/internal/prompt"
	"github.com/slashbot/slashbot/internal/tools"
	"github.com/slashbot/slashbot/pkg/models"
)

// lifecycleRaceBudget bounds hook dispatch inside message lifecycle
// notifications; a slower dispatch finishes fire-and-forget.
const lifecycleRaceBudget = 250 * time.Millisecond

// RunTool executes a registered tool: the before hook may rewrite args,
// throws become typed error results, and the result flows through the
// after hook, the event bus, and the persist hook.
func (k *Kernel) RunTool(ctx context.Context, toolID string, args map[string]any, tc tools.Context) *models.ToolResult {
	before := k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventBeforeToolCall, hooks.Payload{
		"toolId":    toolID,
		"args":      args,
		"sessionId": tc.SessionID,
		"agentId":   tc.AgentID,
	})
	if rewritten, ok := before.Final["args"].(map[string]any); ok {
		args = rewritten
	}

	tool, found := k.host.Tools.Get(toolID)
	if !found {
		return models.ErrorResult(models.ErrCodeToolNotFound, fmt.Sprintf("tool %q is not registered", toolID))
	}

	start := time.Now()
	result := k.executeTool(ctx, tool, args, tc)
	elapsed := time.Since(start)

	if k.metrics != nil {
		status := "ok"
		if !result.OK {
			status = "error"
		}
		k.metrics.ToolExecutions.WithLabelValues(toolID, status).Inc()
		k.metrics.ToolDuration.WithLabelValues(toolID).Observe(elapsed.Seconds())
	}

	k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventAfterToolCall, hooks.Payload{
		"toolId":    toolID,
		"args":      args,
		"ok":        result.OK,
		"sessionId": tc.SessionID,
		"agentId":   tc.AgentID,
	})

	k.bus.Publish(models.NewEnvelope("tool:result", map[string]any{
		"toolId":    toolID,
		"ok":        result.OK,
		"sessionId": tc.SessionID,
		"elapsedMs": elapsed.Milliseconds(),
	}))

	k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventToolResultPersist, hooks.Payload{
		"toolId":    toolID,
		"result":    result,
		"sessionId": tc.SessionID,
		"agentId":   tc.AgentID,
	})

	return result
}

// executeTool runs the tool body, converting errors and panics into
// TOOL_EXECUTE_ERROR results.
func (k *Kernel) executeTool(ctx context.Context, tool tools.Tool, args map[string]any, tc tools.Context) (result *models.ToolResult) {
	defer func() {
		if p := recover(); p != nil {
			k.logger.Warn("tool panic", "tool", tool.ID, "panic", p)
			result = models.ErrorResult(models.ErrCodeToolExecute, fmt.Sprintf("tool panic: %v", p))
		}
	}()

	result, err := tool.Execute(ctx, args, tc)
	if err != nil {
		return models.ErrorResult(models.ErrCodeToolExecute, err.Error())
	}
	if result == nil {
		result = models.OKResult("")
	}
	return result
}

// RunCommand executes a registered command; unknown commands write to
// stderr and return exit code 1.
func (k *Kernel) RunCommand(ctx context.Context, commandID string, inv commands.Invocation) int {
	k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventBeforeCommand, hooks.Payload{
		"commandId": commandID,
		"args":      inv.Args,
		"sessionId": inv.SessionID,
	})

	cmd, found := k.host.Commands.Get(commandID)
	if !found {
		if inv.Stderr != nil {
			fmt.Fprintf(inv.Stderr, "command not found: %s\n", commandID)
		}
		return 1
	}

	exitCode := k.executeCommand(ctx, cmd, inv)

	k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventAfterCommand, hooks.Payload{
		"commandId": commandID,
		"exitCode":  exitCode,
		"sessionId": inv.SessionID,
	})
	return exitCode
}

func (k *Kernel) executeCommand(ctx context.Context, cmd commands.Command, inv commands.Invocation) (code int) {
	defer func() {
		if p := recover(); p != nil {
			k.logger.Warn("command panic", "command", cmd.ID, "panic", p)
			if inv.Stderr != nil {
				fmt.Fprintf(inv.Stderr, "command %s panicked: %v\n", cmd.ID, p)
			}
			code = 1
		}
	}()
	return cmd.Handler(ctx, inv)
}

// AssemblePrompt composes the system prompt between the assemble hooks.
// The after hook may replace the prompt wholesale via the "prompt" key.
func (k *Kernel) AssemblePrompt(ctx context.Context) string {
	k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventBeforePromptAssemble, nil)

	out := k.assembler.Assemble(ctx)

	after := k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventAfterPromptAssemble, hooks.Payload{
		"prompt": out,
	})
	if rewritten, ok := after.Final["prompt"].(string); ok {
		out = rewritten
	}
	return out
}

// Assembler exposes the prompt assembler for section registration.
func (k *Kernel) Assembler() *prompt.Assembler { return k.assembler }

// SendMessageLifecycle publishes a lifecycle event on the bus and
// dispatches the matching hook, racing the dispatch against a 250 ms
// budget. An over-budget dispatch finishes in the background.
func (k *Kernel) SendMessageLifecycle(ctx context.Context, event, sessionID, agentID string, msg models.Message) {
	k.bus.Publish(models.NewEnvelope("lifecycle:"+event, map[string]any{
		"sessionId": sessionID,
		"agentId":   agentID,
		"role":      string(msg.Role),
		"length":    msg.Content.Length(),
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, event, hooks.Payload{
			"sessionId": sessionID,
			"agentId":   agentID,
			"message":   msg.Content.ToText(),
			"role":      string(msg.Role),
		})
	}()

	select {
	case <-done:
	case <-time.After(lifecycleRaceBudget):
		k.logger.Warn("lifecycle hook dispatch over budget",
			"event", event,
			"session", sessionID,
			"budget", lifecycleRaceBudget)
	}
}

// StartSession persists session metadata and fires session_start.
// A metadata write failure is logged, never fatal to dispatch.
func (k *Kernel) StartSession(ctx context.Context, sessionID, agentID string) {
	if err := k.sessions.Start(sessionID, agentID); err != nil {
		k.logger.Warn("session metadata write failed", "session", sessionID, "error", err)
	}
	k.bus.Publish(models.NewEnvelope("lifecycle:session_start", map[string]any{
		"sessionId": sessionID,
		"agentId":   agentID,
	}))
	k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventSessionStart, hooks.Payload{
		"sessionId": sessionID,
		"agentId":   agentID,
	})
}

// EndSession updates session metadata, fires session_end, and clears the
// session's state (history and auth failure marks).
func (k *Kernel) EndSession(ctx context.Context, sessionID, agentID string) {
	if err := k.sessions.End(sessionID, agentID); err != nil {
		k.logger.Warn("session metadata write failed", "session", sessionID, "error", err)
	}
	k.bus.Publish(models.NewEnvelope("lifecycle:session_end", map[string]any{
		"sessionId": sessionID,
		"agentId":   agentID,
	}))
	k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventSessionEnd, hooks.Payload{
		"sessionId": sessionID,
		"agentId":   agentID,
	})

	k.router.ForgetSession(sessionID)
	k.mu.Lock()
	delete(k.conversations, sessionID)
	k.mu.Unlock()
}

// registerKernelMethods contributes the host's own RPC surface.
func (k *Kernel) registerKernelMethods() {
	must := func(name string, m gateway.Method) {
		if err := k.host.Methods.Register(name, "kernel", m); err != nil {
			k.logger.Warn("kernel method registration failed", "method", name, "error", err)
		}
	}

	must("system.health", func(ctx context.Context, params json.RawMessage) (any, error) {
		return k.Health(), nil
	})

	must("system.diagnostics", func(ctx context.Context, params json.RawMessage) (any, error) {
		return k.Diagnostics(), nil
	})

	must("tools.list", func(ctx context.Context, params json.RawMessage) (any, error) {
		type entry struct {
			ID          string `json:"id"`
			PluginID    string `json:"pluginId"`
			Description string `json:"description"`
		}
		var out []entry
		for _, t := range k.host.Tools.List() {
			out = append(out, entry{ID: t.ID, PluginID: t.PluginID, Description: t.Description})
		}
		return out, nil
	})

	must("tools.run", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			ToolID    string         `json:"toolId"`
			Args      map[string]any `json:"args"`
			SessionID string         `json:"sessionId"`
			AgentID   string         `json:"agentId"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, gateway.NewError(gateway.CodeInvalidRequest, "bad params: %v", err)
		}
		if req.ToolID == "" {
			return nil, gateway.NewError(gateway.CodeInvalidRequest, "toolId is required")
		}
		result := k.RunTool(ctx, req.ToolID, req.Args, tools.Context{
			SessionID: req.SessionID,
			AgentID:   req.AgentID,
		})
		if !result.OK && result.Error != nil {
			return nil, gateway.NewError(result.Error.Code, "%s", result.Error.Message)
		}
		return result, nil
	})

	must("status.list", func(ctx context.Context, params json.RawMessage) (any, error) {
		type entry struct {
			ID     string `json:"id"`
			Label  string `json:"label"`
			Status string `json:"status"`
		}
		var out []entry
		for _, s := range k.host.Status.List() {
			out = append(out, entry{ID: s.Indicator.ID, Label: s.Indicator.Label, Status: s.Status})
		}
		return out, nil
	})

	must("chat.send", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req struct {
			SessionID string `json:"sessionId"`
			AgentID   string `json:"agentId"`
			Text      string `json:"text"`
		}
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, gateway.NewError(gateway.CodeInvalidRequest, "bad params: %v", err)
		}
		if req.Text == "" {
			return nil, gateway.NewError(gateway.CodeInvalidRequest, "text is required")
		}
		if req.SessionID == "" {
			return nil, gateway.NewError(gateway.CodeInvalidRequest, "sessionId is required")
		}
		if req.AgentID == "" {
			req.AgentID = "default"
		}
		reply, err := k.SendMessage(ctx, req.SessionID, req.AgentID, req.Text)
		if err != nil {
			return nil, err
		}
		return map[string]any{"reply": reply}, nil
	})
}
