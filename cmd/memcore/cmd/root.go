// Package cmd provides the CLI commands for memcore.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/profiling"
	"github.com/juergengeck/memory.core/pkg/version"
)

// Profiling flags, wired through the persistent pre/post hooks.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

// Global behavior flags.
var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the memcore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memcore",
		Short: "Subject memory with a keyword similarity index",
		Long: `memcore extracts recurring subjects from text records, deduplicates
them by keyword, and answers similarity queries over the result.

Records arrive through file arguments (extract), a spool directory
(watch), or a NATS subject (consume). Subjects persist in a SQLite or
git-backed store and are served to MCP clients over stdio.

Run 'memcore' with no arguments to start the MCP server.`,
		Version: version.Version,
		// Errors are printed once, formatted, by ExecuteContext.
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// If arguments were given, show help instead of silently
			// starting a server the caller did not ask for. Same for a
			// human at a terminal; MCP clients pipe stdin.
			if len(args) > 0 || stdinIsTerminal() {
				return cmd.Help()
			}
			return runServe(cmd.Context(), serveOptions{transport: "stdio"})
		},
	}

	cmd.SetVersionTemplate("memcore version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: .memcore.yaml discovery)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfiling
	cmd.PersistentPostRunE = stopProfiling

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSimilarCmd())
	cmd.AddCommand(newSubjectsCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConsumeCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfiling starts CPU/trace profiling if the flags are set.
func startProfiling(_ *cobra.Command, _ []string) error {
	var err error

	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

// stopProfiling stops profiling and writes the memory profile if requested.
func stopProfiling(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}

	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}

	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command under ctx so long-running commands
// stop on SIGINT/SIGTERM. Errors are printed to stderr with their
// suggestion (and, with --debug, cause and details) before returning.
func ExecuteContext(ctx context.Context) error {
	err := NewRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, mcerrors.FormatForUser(err, debugMode))
	}
	return err
}
