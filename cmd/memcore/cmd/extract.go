package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/extract"
	"github.com/juergengeck/memory.core/internal/ingest"
	"github.com/juergengeck/memory.core/internal/output"
)

func newExtractCmd() *cobra.Command {
	var (
		scope      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "extract <file>...",
		Short: "Extract subjects from text files",
		Long: `Extract subject candidates from one or more text files and persist them.

Files ending in .jsonl or .ndjson are read as one record per line with
"id" and "text" fields; any other file becomes a single record. Candidates
whose label matches an existing subject are merged into it, the rest become
new subjects.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, args, scope, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "adhoc", "Extraction scope to run under")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the batch report as JSON")

	return cmd
}

func runExtract(cmd *cobra.Command, args []string, scope string, jsonOutput bool) error {
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		out = output.NewSilent()
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var records []extract.Record
	for _, path := range args {
		recs, err := ingest.ReadRecords(path)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			out.Warning(fmt.Sprintf("%s: no records, skipping", path))
			continue
		}
		records = append(records, recs...)
	}
	if len(records) == 0 {
		return mcerrors.New(mcerrors.ErrCodeInvalidInput,
			"no records found in the given files", nil).
			WithSuggestion("Provide non-empty text or .jsonl files")
	}

	out.Statusf("📄", "Read %d records from %d file(s)", len(records), len(args))
	out.Status("", "Extracting keywords...")

	report, err := a.service.AnalyzeBatch(ctx, scope, records)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out.Successf("Batch complete in %s", report.Elapsed.Round(time.Millisecond))
	out.Status("", fmt.Sprintf("Scope:     %s", report.Scope))
	out.Status("", fmt.Sprintf("Records:   %d processed, %d failed", report.Processed, report.Failed))
	out.Status("", fmt.Sprintf("Subjects:  %d created, %d merged", report.Created, report.Merged))
	if report.Failed > 0 {
		out.Warning("Some records failed extraction; see 'memcore logs' for details")
	}
	return nil
}
