package cmd

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/juergengeck/memory.core/internal/logging"
	"github.com/juergengeck/memory.core/internal/output"
)

func newLogsCmd() *cobra.Command {
	var (
		follow  bool
		lines   int
		level   string
		filter  string
		noColor bool
		file    string
		source  string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View memcore log files",
		Long: `View and follow memcore log files.

The MCP server logs to server.log and the watch and consume commands log
to ingest.log, both under the log directory. Use --source to pick which,
or --file for an arbitrary path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, logsOptions{
				follow:  follow,
				lines:   lines,
				level:   level,
				filter:  filter,
				noColor: noColor,
				file:    file,
				source:  source,
			})
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow the log for new entries")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().StringVar(&filter, "filter", "", "Only show entries matching this regex")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&file, "file", "", "Explicit log file path")
	cmd.Flags().StringVar(&source, "source", "server", "Log source (server, ingest, all)")

	return cmd
}

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	file    string
	source  string
}

func runLogs(cmd *cobra.Command, opts logsOptions) error {
	paths, err := logging.FindLogFileBySource(logging.ParseLogSource(opts.source), opts.file)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	stdout := cmd.OutOrStdout()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:      opts.level,
		Pattern:    pattern,
		NoColor:    opts.noColor || !output.ColorEnabled(stdout),
		ShowSource: len(paths) > 1,
	}, stdout)

	for _, p := range paths {
		fmt.Fprintf(cmd.ErrOrStderr(), "Log file: %s\n", p)
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "---")

	if !opts.follow {
		var entries []logging.LogEntry
		if len(paths) == 1 {
			entries, err = viewer.Tail(paths[0], opts.lines)
		} else {
			entries, err = viewer.TailMultiple(paths, opts.lines)
		}
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	return followLogs(cmd, viewer, paths)
}

// followLogs streams new entries until the command context is cancelled.
func followLogs(cmd *cobra.Command, viewer *logging.Viewer, paths []string) error {
	ctx := cmd.Context()
	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)

	go func() {
		if len(paths) == 1 {
			errCh <- viewer.Follow(ctx, paths[0], entries)
			return
		}
		errCh <- viewer.FollowMultiple(ctx, paths, entries)
	}()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(cmd.ErrOrStderr(), "Stopped.")
			return nil
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case entry := <-entries:
			fmt.Fprintln(cmd.OutOrStdout(), viewer.FormatEntry(entry))
		}
	}
}
