// Package tools defines tool contributions and their parameter schemas.
package tools

import (
	"context"
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/slashbot/slashbot/pkg/models"
)

// Context carries per-invocation state into a tool execution.
type Context struct {
	SessionID string
	AgentID   string
}

// ExecuteFunc runs a tool with decoded arguments.
type ExecuteFunc func(ctx context.Context, args map[string]any, tc Context) (*models.ToolResult, error)

// Tool is one registered tool definition. Tools are owned by the registry
// for the process lifetime; an id is never re-registered.
type Tool struct {
	ID          string
	PluginID    string
	Title       string
	Description string

	// Parameters is the JSON schema for the tool's arguments.
	Parameters json.RawMessage

	Execute ExecuteFunc
}

// RegistryID implements registry.Item.
func (t Tool) RegistryID() string { return t.ID }

// ParametersFor derives a JSON schema from a Go argument struct, inlining
// definitions so the result is self-contained.
func ParametersFor[T any]() json.RawMessage {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	var zero T
	schema := reflector.Reflect(&zero)
	data, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return data
}
