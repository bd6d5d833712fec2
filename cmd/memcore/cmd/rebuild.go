package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/juergengeck/memory.core/internal/output"
)

func newRebuildCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the similarity index from the store",
		Long: `Rebuild the in-memory similarity index from all stored subjects.

The index is normally maintained incrementally; rebuild exists for recovery
after store-level surgery or to verify the store is readable end to end.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			out.Status("🔨", "Rebuilding index from store...")

			if err := a.service.RebuildIndex(ctx); err != nil {
				return err
			}

			stats, err := a.service.IndexStats(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}

			out.Successf("Index rebuilt: %d subject(s), %d distinct keyword(s)",
				stats.SubjectCount, stats.DistinctKeywordCount)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output index stats as JSON")

	return cmd
}
