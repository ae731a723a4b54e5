package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/slashbot/slashbot/internal/config"
	"github.com/slashbot/slashbot/internal/kernel"
	"github.com/slashbot/slashbot/internal/observability"
)

// shutdownGrace bounds how long serve waits for a clean shutdown after a
// termination signal.
const shutdownGrace = 10 * time.Second

// buildServeCmd creates the "serve" command that runs the kernel until
// the process receives SIGINT or SIGTERM.
func buildServeCmd() *cobra.Command {
	var (
		workspaceDir string
		debug        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the slashbot host",
		Long: `Start the slashbot host.

The host loads the layered configuration, discovers and activates
plugins, and serves the local RPC gateway when an auth token is
configured. SIGINT/SIGTERM trigger a graceful shutdown.`,
		Example: `  # Start in the current directory
  slashbot serve

  # Start against an explicit workspace
  slashbot serve --workspace ~/projects/demo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), workspaceDir, debug)
		},
	}

	cmd.Flags().StringVarP(&workspaceDir, "workspace", "w", "",
		"Workspace directory (defaults to the current directory)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging")

	return cmd
}

func runServe(ctx context.Context, workspaceDir string, debug bool) error {
	cfg, err := config.Load(config.LoadOptions{WorkspaceDir: workspaceDir})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{Level: level})

	k, err := kernel.New(kernel.Options{
		Config:       cfg,
		Logger:       logger,
		Metrics:      observability.Default(),
		WorkspaceDir: workspaceDir,
	})
	if err != nil {
		return err
	}
	if err := k.Start(ctx); err != nil {
		return err
	}

	if addr := k.GatewayAddr(); addr != "" {
		logger.Info("gateway listening", "addr", addr)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return k.Shutdown(shutdownCtx)
}
