package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/juergengeck/memory.core/internal/index"
	"github.com/juergengeck/memory.core/internal/output"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <keyword>...",
		Short: "Find subjects by keyword similarity",
		Long: `Find subjects whose keyword sets are similar to the query keywords.

Results are ranked by Jaccard similarity between the query set and each
subject's keywords. Unknown keywords simply do not match; a query with no
matches is not an error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results (default from config)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, keywords []string, limit int, jsonOutput bool) error {
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

	matches, err := a.service.Search(ctx, keywords, limit)
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
		out.Statusf("🔍", "No subjects match %s", strings.Join(keywords, " "))
		out.Status("", "Try broader keywords, or run 'memcore subjects list' to see what is stored.")
		return nil
	}

	out.Statusf("🔍", "Found %d subject(s) for %s", len(matches), strings.Join(keywords, " "))
	out.Newline()
	printMatches(out, matches)
	return nil
}

// printMatches renders ranked matches with their matching keywords.
// Shared by search and similar.
func printMatches(out *output.Writer, matches []index.Match) {
	for i, m := range matches {
		out.Status("", fmt.Sprintf("%d. %s (similarity: %.2f)", i+1, m.Label, m.Similarity))
		out.Status("", fmt.Sprintf("   id:      %s", m.ID))
		if len(m.MatchingKeywords) > 0 {
			out.Status("", fmt.Sprintf("   matched: %s", strings.Join(m.MatchingKeywords, ", ")))
		}
		out.Newline()
	}
}
