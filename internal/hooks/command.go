package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/slashbot/slashbot/internal/config"
)

// Environment variables exported to command hooks.
const (
	EnvHookEvent   = "SLASHBOT_HOOK_EVENT"
	EnvHookPayload = "SLASHBOT_HOOK_PAYLOAD"
)

// matchFields maps events to the payload field a config matcher compares
// against. Events without an entry ignore matchers.
var matchFields = map[string]string{
	EventBeforeToolCall:    "toolId",
	EventAfterToolCall:     "toolId",
	EventToolResultPersist: "toolId",
	EventBeforeCommand:     "commandId",
	EventAfterCommand:      "commandId",
}

// RegisterConfigHooks registers every hook declared under hooks.rules.
// Returns the registration ids.
func RegisterConfigHooks(d *Dispatcher, cfg config.HooksConfig, workDir string, logger *slog.Logger) []string {
	if logger == nil {
		logger = slog.Default()
	}

	var ids []string
	for event, rules := range cfg.Rules {
		domain := domainForEvent(event)
		for _, rule := range rules {
			for _, action := range rule.Hooks {
				if action.Type != "command" {
					logger.Warn("unsupported hook action type", "event", event, "type", action.Type)
					continue
				}

				timeout := time.Duration(action.TimeoutMs) * time.Millisecond
				handler := CommandHandler(action.Command, workDir, event, logger)
				if rule.Matcher != "" {
					handler = withMatcher(handler, event, rule.Matcher)
				}

				id := d.Register(Registration{
					PluginID:    "config",
					Domain:      domain,
					Event:       event,
					Timeout:     timeout,
					Handler:     handler,
					Description: "config hook: " + action.Command,
				})
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// domainForEvent classifies a config-declared event name.
func domainForEvent(event string) Domain {
	switch event {
	case EventStartup, EventShutdown:
		return DomainKernel
	case EventSessionStart, EventSessionEnd,
		EventMessageReceived, EventMessageSending, EventMessageSent,
		EventBeforeToolCall, EventAfterToolCall, EventToolResultPersist,
		EventBeforeCommand, EventAfterCommand,
		EventBeforePromptAssemble, EventAfterPromptAssemble,
		EventBeforeLLMCall, EventAfterLLMCall,
		EventCLIInit, EventCLIExit:
		return DomainLifecycle
	default:
		return DomainCustom
	}
}

// withMatcher short-circuits the handler when the event's match field is
// present in the payload and does not equal the matcher.
func withMatcher(inner Handler, event, matcher string) Handler {
	field, known := matchFields[event]
	if !known {
		return inner
	}
	return func(ctx context.Context, payload Payload) (Payload, error) {
		if value, present := payload[field]; present {
			if s, ok := value.(string); ok && s != matcher {
				return nil, nil
			}
		}
		return inner(ctx, payload)
	}
}

// CommandHandler builds a handler that shells out to command with the
// event name and JSON payload in the environment. Stdout is logged at
// debug, stderr at warn; the payload is never mutated.
func CommandHandler(command, workDir, event string, logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "hooks", "hook_command", command)

	return func(ctx context.Context, payload Payload) (Payload, error) {
		encoded, err := json.Marshal(map[string]any(payload))
		if err != nil {
			encoded = []byte("{}")
		}

		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Dir = workDir
		cmd.Env = append(cmd.Environ(),
			EnvHookEvent+"="+event,
			EnvHookPayload+"="+string(encoded),
		)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		runErr := cmd.Run()

		if out := strings.TrimSpace(stdout.String()); out != "" {
			logger.Debug("hook command stdout", "event", event, "output", out)
		}
		if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
			logger.Warn("hook command stderr", "event", event, "output", errOut)
		}

		if runErr != nil {
			return nil, fmt.Errorf("hook command %q: %w", command, runErr)
		}
		return nil, nil
	}
}
