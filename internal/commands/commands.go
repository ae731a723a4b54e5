// Package commands defines command contributions executed by the kernel.
package commands

import (
	"context"
	"io"
)

// Invocation carries the arguments and output streams for one execution.
type Invocation struct {
	Args      []string
	SessionID string
	AgentID   string
	Stdout    io.Writer
	Stderr    io.Writer
}

// Handler runs a command and returns its exit code.
type Handler func(ctx context.Context, inv Invocation) int

// Command is one registered command definition.
type Command struct {
	ID          string
	PluginID    string
	Description string
	Subcommands []string
	Handler     Handler
}

// RegistryID implements registry.Item.
func (c Command) RegistryID() string { return c.ID }
