package kernel

import (
	"context"
	"fmt"

	"github.com/slashbot/slashbot/internal/auth"
	"github.com/slashbot/slashbot/internal/contextprep"
	"github.com/slashbot/slashbot/internal/hooks"
	"github.com/slashbot/slashbot/internal/providers"
	"github.com/slashbot/slashbot/internal/tools"
	"github.com/slashbot/slashbot/pkg/models"
)

// maxToolRounds bounds the tool-call loop within one SendMessage, so a
// model that keeps requesting tools cannot spin forever.
const maxToolRounds = 8

// SendMessage runs one user turn: resolve a provider, prepare context,
// call the model (recovering from context overflow), execute any tool
// calls it requests, and return the assistant's final text.
func (k *Kernel) SendMessage(ctx context.Context, sessionID, agentID, text string) (string, error) {
	userMsg := models.NewMessage(models.RoleUser, text)
	k.SendMessageLifecycle(ctx, hooks.EventMessageReceived, sessionID, agentID, userMsg)

	res, err := k.router.Resolve(auth.ResolveRequest{
		AgentID:   agentID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", err
	}
	def, ok := k.host.Providers.Get(res.ProviderID)
	if !ok {
		return "", fmt.Errorf("provider %q vanished after resolution", res.ProviderID)
	}

	if refreshed, err := k.authStore.RefreshProfile(ctx, agentID, res.Profile); err != nil {
		k.logger.Warn("oauth refresh failed, using stored token",
			"provider", res.ProviderID, "profile", res.Profile.ProfileID, "error", err)
	} else {
		res.Profile = refreshed
	}

	client, err := k.host.Providers.Connect(ctx, res.ProviderID, providers.ClientConfig{
		APIKey: res.Profile.Credential(),
	})
	if err != nil {
		k.router.ReportFailure(sessionID, res.ProviderID, res.Profile.ProfileID)
		return "", fmt.Errorf("connect provider %s: %w", res.ProviderID, err)
	}

	contextWindow := 0
	if model, ok := def.Model(res.ModelID); ok {
		contextWindow = model.ContextWindow
	}
	pipeCfg := k.pipelineConfig(res.ProviderID, contextWindow)

	system := k.AssemblePrompt(ctx)
	defaults, _ := k.host.Providers.Defaults(res.ProviderID)
	specs := k.toolSpecs()

	k.mu.Lock()
	history := append([]models.Message(nil), k.conversations[sessionID]...)
	k.mu.Unlock()
	history = append(history, userMsg)

	var reply string
	for round := 0; ; round++ {
		completion, err := k.complete(ctx, client, res, pipeCfg, providers.CompletionRequest{
			Model:       res.ModelID,
			System:      system,
			Tools:       specs,
			MaxTokens:   defaults.MaxTokens,
			Temperature: defaults.Temperature,
		}, history)
		if err != nil {
			return "", err
		}

		if len(completion.ToolCalls) == 0 || round >= maxToolRounds {
			reply = completion.Text
			break
		}

		// The model asked for tools: run them and feed the results back
		// as the next turn's input.
		if completion.Text != "" {
			history = append(history, models.NewMessage(models.RoleAssistant, completion.Text))
		}
		for _, call := range completion.ToolCalls {
			result := k.RunTool(ctx, call.Name, call.Args, tools.Context{
				SessionID: sessionID,
				AgentID:   agentID,
			})
			resultText := contextprep.TruncateToolResult(result.LLMText(), pipeCfg)
			history = append(history, models.NewMessage(models.RoleUser,
				fmt.Sprintf("Tool %s result:\n%s", call.Name, resultText)))
		}
	}

	assistantMsg := models.NewMessage(models.RoleAssistant, reply)
	history = append(history, assistantMsg)

	k.mu.Lock()
	k.conversations[sessionID] = history
	k.mu.Unlock()

	k.SendMessageLifecycle(ctx, hooks.EventMessageSending, sessionID, agentID, assistantMsg)
	k.SendMessageLifecycle(ctx, hooks.EventMessageSent, sessionID, agentID, assistantMsg)
	return reply, nil
}

// complete runs one model call through the context pipeline and overflow
// recovery, bracketed by the llm_call hooks.
func (k *Kernel) complete(ctx context.Context, client providers.Client, res *auth.Resolution, cfg contextprep.PipelineConfig, req providers.CompletionRequest, history []models.Message) (*providers.Completion, error) {
	prepared := contextprep.Prepare(history, cfg).Messages

	k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventBeforeLLMCall, hooks.Payload{
		"provider": res.ProviderID,
		"model":    res.ModelID,
		"messages": len(prepared),
	})

	var completion *providers.Completion
	onRetry := func(attempt int, strategy string) {
		k.logger.Warn("context overflow, retrying",
			"provider", res.ProviderID, "attempt", attempt, "strategy", strategy)
		if k.metrics != nil {
			k.metrics.OverflowRetries.WithLabelValues(strategy).Inc()
		}
	}
	err := contextprep.WithOverflowRecovery(ctx, cfg, prepared, onRetry,
		func(ctx context.Context, msgs []models.Message) error {
			r := req
			r.Messages = msgs
			out, callErr := client.Complete(ctx, r)
			if callErr != nil {
				return callErr
			}
			completion = out
			return nil
		})

	if k.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		k.metrics.LLMRequests.WithLabelValues(res.ProviderID, res.ModelID, status).Inc()
	}

	k.dispatcher.Dispatch(ctx, hooks.DomainLifecycle, hooks.EventAfterLLMCall, hooks.Payload{
		"provider": res.ProviderID,
		"model":    res.ModelID,
		"ok":       err == nil,
	})

	if err != nil {
		return nil, err
	}
	return completion, nil
}

// toolSpecs snapshots the tool registry as provider tool specs.
func (k *Kernel) toolSpecs() []providers.ToolSpec {
	list := k.host.Tools.List()
	specs := make([]providers.ToolSpec, 0, len(list))
	for _, t := range list {
		specs = append(specs, providers.ToolSpec{
			Name:        t.ID,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
	}
	return specs
}
