package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/juergengeck/memory.core/internal/index"
	"github.com/juergengeck/memory.core/internal/output"
)

func newSimilarCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "similar <subject-id>",
		Short: "Find subjects similar to an existing one",
		Long: `Find subjects whose keywords overlap with the given subject's keywords.

The subject itself is excluded from the results.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(cmd, args[0], limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSimilar(cmd *cobra.Command, id string, limit int, jsonOutput bool) error {
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

	if limit <= 0 {
		limit = a.cfg.Index.DefaultLimit
	}

	subject, err := a.service.GetSubject(ctx, id)
	if err != nil {
		return err
	}

	matches, err := a.service.SimilarSubjects(ctx, id, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		if matches == nil {
			matches = []index.Match{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}

	if len(matches) == 0 {
		out.Statusf("🔍", "No subjects similar to %q", subject.Label)
		return nil
	}

	out.Statusf("🔍", "Found %d subject(s) similar to %q", len(matches), subject.Label)
	out.Newline()
	printMatches(out, matches)
	return nil
}
