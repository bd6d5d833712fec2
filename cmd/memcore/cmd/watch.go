package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/juergengeck/memory.core/internal/ingest"
	"github.com/juergengeck/memory.core/internal/output"
)

func newWatchCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch a spool directory and extract from dropped files",
		Long: `Watch a spool directory and run batch extraction on every file that is
created or modified there.

Writes are debounced so half-written files are not picked up. Without a
directory argument the configured ingest.spool_dir is watched. Runs until
interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			}
			return runWatch(cmd, dir, scope)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "spool", "Extraction scope for spooled files")

	return cmd
}

func runWatch(cmd *cobra.Command, dir, scope string) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	a, err := openIngestApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	unlock, err := a.lockDataDir()
	if err != nil {
		return err
	}
	defer unlock()

	if dir == "" {
		dir = a.cfg.Ingest.SpoolDir
	}

	w, err := ingest.NewWatcher(dir,
		ingest.WithDebounce(a.cfg.Ingest.DebounceInterval()),
		ingest.WithWatcherLogger(a.logger))
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	startErr := make(chan error, 1)
	go func() { startErr <- w.Start(ctx) }()

	out.Statusf("👀", "Watching %s (scope %s, Ctrl+C to stop)", dir, scope)

	for {
		select {
		case <-ctx.Done():
			out.Status("", "Stopped.")
			return nil

		case err := <-startErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if ev.Op == ingest.OpDelete {
				continue
			}
			processSpoolFile(ctx, a, out, scope, ev.Path)

		case werr, ok := <-w.Errors():
			if !ok {
				return nil
			}
			out.Warning(fmt.Sprintf("watch error: %v", werr))
		}
	}
}

// processSpoolFile extracts one dropped file. Failures are reported and
// swallowed so a bad file cannot stop the watch loop.
func processSpoolFile(ctx context.Context, a *app, out *output.Writer, scope, path string) {
	base := filepath.Base(path)

	records, err := ingest.ReadRecords(path)
	if err != nil {
		out.Warning(fmt.Sprintf("%s: %v", base, err))
		return
	}
	if len(records) == 0 {
		return
	}

	report, err := a.service.AnalyzeBatch(ctx, scope, records)
	if err != nil {
		out.Warning(fmt.Sprintf("%s: %v", base, err))
		return
	}

	out.Statusf("📄", "%s: %d record(s), %d created, %d merged, %d failed",
		base, report.Records, report.Created, report.Merged, report.Failed)
}
