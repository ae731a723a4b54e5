// Package main provides the CLI entry point for the slashbot assistant host.
//
// Slashbot is a local-first, plugin-extensible assistant: plugins contribute
// tools, commands, model providers, hooks, and RPC methods to a shared
// kernel, which exposes them over an authenticated local gateway.
//
// # Basic Usage
//
// Start the host:
//
//	slashbot serve
//
// Check a running host:
//
//	slashbot status
//
// Call an RPC method directly:
//
//	slashbot call tools.list
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "slashbot",
		Short:         "Local-first plugin-extensible assistant host",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		buildServeCmd(),
		buildStatusCmd(),
		buildCallCmd(),
		buildVersionCmd(),
	)
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the slashbot version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "slashbot", Version)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
