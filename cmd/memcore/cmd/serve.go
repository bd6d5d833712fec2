package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/juergengeck/memory.core/internal/logging"
	"github.com/juergengeck/memory.core/internal/mcp"
	"github.com/juergengeck/memory.core/pkg/version"
)

type serveOptions struct {
	transport string
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server for AI assistant integration.

The server speaks JSON-RPC over stdio, so stdout carries protocol frames
exclusively; all logging goes to the log file. Use 'memcore logs' to watch
server activity.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "stdio", "Transport protocol (stdio)")

	return cmd
}

// runServe starts the MCP server. Nothing may be written to stdout before
// the protocol loop takes over.
func runServe(ctx context.Context, opts serveOptions) error {
	logCleanup, err := logging.SetupMCPMode()
	if err == nil {
		defer logCleanup()
	}

	if err := verifyStdinForMCP(); err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		slog.Error("failed to initialize", slog.String("error", err.Error()))
		return err
	}
	defer a.Close()

	unlock, err := a.lockDataDir()
	if err != nil {
		slog.Error("data directory busy", slog.String("error", err.Error()))
		return err
	}
	defer unlock()

	srv, err := mcp.NewServer(a.service, a.cfg, mcp.WithServerLogger(a.logger))
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	if a.metrics != nil {
		srv.SetMetrics(a.metrics)
	}

	if err := srv.RegisterResources(ctx); err != nil {
		a.logger.Warn("failed to register subject resources", slog.String("error", err.Error()))
	}

	a.logger.Info("memcore MCP server starting",
		slog.String("version", version.Version),
		slog.String("transport", opts.transport),
		slog.String("store", a.cfg.Store.Backend))

	return srv.Serve(ctx, opts.transport)
}

// stdinIsTerminal reports whether stdin is an interactive terminal.
func stdinIsTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// verifyStdinForMCP rejects interactive terminals. The MCP handshake needs
// a JSON-RPC pipe; a human at a TTY would just see the process hang.
func verifyStdinForMCP() error {
	if stdinIsTerminal() {
		return fmt.Errorf("stdin is a terminal: the MCP server expects a JSON-RPC pipe from an MCP client; use the other memcore commands for interactive work")
	}
	return nil
}
