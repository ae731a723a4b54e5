// Package hooks implements the priority-ordered, timeout-isolated,
// payload-mutating hook dispatcher used for kernel, lifecycle, and custom
// events.
package hooks

import (
	"context"
	"time"
)

// Domain partitions hook events.
type Domain string

const (
	DomainKernel    Domain = "kernel"
	DomainLifecycle Domain = "lifecycle"
	DomainCustom    Domain = "custom"
)

// Kernel events.
const (
	EventStartup  = "startup"
	EventShutdown = "shutdown"
)

// Lifecycle events.
const (
	EventSessionStart         = "session_start"
	EventSessionEnd           = "session_end"
	EventMessageReceived      = "message_received"
	EventMessageSending       = "message_sending"
	EventMessageSent          = "message_sent"
	EventBeforeToolCall       = "before_tool_call"
	EventAfterToolCall        = "after_tool_call"
	EventToolResultPersist    = "tool_result_persist"
	EventBeforeCommand        = "before_command"
	EventAfterCommand         = "after_command"
	EventBeforePromptAssemble = "before_prompt_assemble"
	EventAfterPromptAssemble  = "after_prompt_assemble"
	EventBeforeLLMCall        = "before_llm_call"
	EventAfterLLMCall         = "after_llm_call"
	EventCLIInit              = "cli_init"
	EventCLIExit              = "cli_exit"
)

// DefaultPriority orders hooks without an explicit priority.
const DefaultPriority = 100

// Payload is the mutable value threaded through a dispatch. Handlers get a
// shallow copy and may return a partial payload whose top-level keys merge
// into the working payload.
type Payload map[string]any

// Clone returns a top-level copy.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Handler processes one hook invocation. Returning a non-nil map merges it
// into the working payload; returning nil leaves the payload untouched.
type Handler func(ctx context.Context, payload Payload) (Payload, error)

// Registration is one registered hook.
type Registration struct {
	// ID uniquely identifies the registration.
	ID string

	// PluginID attributes failures and teardown.
	PluginID string

	Domain Domain
	Event  string

	// Priority orders invocation, ascending; 0 means DefaultPriority.
	Priority int

	// Timeout overrides the dispatcher's default per-hook timeout.
	Timeout time.Duration

	Handler Handler

	Description string

	// seq is the registration order, used to break priority ties.
	seq int
}

func (r *Registration) effectivePriority() int {
	if r.Priority == 0 {
		return DefaultPriority
	}
	return r.Priority
}

// Failure records one handler that threw, errored, or timed out during a
// dispatch. Prior payload mutations stand; later hooks still run.
type Failure struct {
	PluginID string `json:"plugin_id"`
	HookID   string `json:"hook_id"`
	Domain   Domain `json:"domain"`
	Event    string `json:"event"`
	Elapsed  int64  `json:"elapsed_ms"`
	Message  string `json:"message"`
	TimedOut bool   `json:"timed_out"`
}

// Report is the outcome of one dispatch call.
type Report struct {
	Initial  Payload
	Final    Payload
	Failures []Failure
}
