package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/output"
	"github.com/juergengeck/memory.core/internal/store"
)

func newSubjectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subjects",
		Short: "Manage stored subjects",
		Long:  `List, inspect, create, and delete subjects in the memory store.`,
	}

	cmd.AddCommand(newSubjectsListCmd())
	cmd.AddCommand(newSubjectsShowCmd())
	cmd.AddCommand(newSubjectsAddCmd())
	cmd.AddCommand(newSubjectsRmCmd())
	cmd.AddCommand(newSubjectsHistoryCmd())

	return cmd
}

func newSubjectsListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all subjects",
		Args:  cobra.NoArgs,
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

			subjects, err := a.service.ListSubjects(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				if subjects == nil {
					subjects = []*store.Subject{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(subjects)
			}

			if len(subjects) == 0 {
				out.Status("", "No subjects stored yet. Run 'memcore extract <file>' to create some.")
				return nil
			}

			out.Statusf("📚", "%d subject(s)", len(subjects))
			out.Newline()
			for _, s := range subjects {
				out.Status("", fmt.Sprintf("%s  %s", s.ID, s.Label))
				out.Status("", fmt.Sprintf("   keywords: %s", strings.Join(s.Keywords, ", ")))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output subjects as JSON")

	return cmd
}

func newSubjectsShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <subject-id>",
		Short: "Show one subject in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			subject, err := a.service.GetSubject(ctx, args[0])
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(subject)
			}

			printSubject(out, subject)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the subject as JSON")

	return cmd
}

func newSubjectsAddCmd() *cobra.Command {
	var (
		label       string
		description string
		keywords    []string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a subject by hand",
		Long: `Create a subject without running extraction.

Useful for seeding well-known subjects that batch extraction should merge
into rather than duplicate.`,
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

			subject, err := a.service.CreateSubject(ctx, store.SubjectFields{
				Label:       label,
				Description: description,
				Keywords:    keywords,
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(subject)
			}

			out.Successf("Created subject %s", subject.ID)
			printSubject(out, subject)
			return nil
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "Subject label (required)")
	cmd.Flags().StringVar(&description, "description", "", "Optional description")
	cmd.Flags().StringSliceVar(&keywords, "keywords", nil, "Comma-separated keywords")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the created subject as JSON")
	_ = cmd.MarkFlagRequired("label")

	return cmd
}

func newSubjectsRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <subject-id>",
		Short: "Delete a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := output.New(cmd.OutOrStdout())

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			deleted, err := a.service.DeleteSubject(ctx, args[0])
			if err != nil {
				return err
			}
			if !deleted {
				out.Warning(fmt.Sprintf("No subject with id %s", args[0]))
				return nil
			}

			out.Successf("Deleted subject %s", args[0])
			return nil
		},
	}

	return cmd
}

func newSubjectsHistoryCmd() *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history [subject-id]",
		Short: "Show change history",
		Long: `Show the change history the configured backend records.

With the sqlite backend a subject id is required and its revision rows are
shown. With the git backend the store-wide commit log is shown and the
subject id is not used. The memory backend keeps no history.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) > 0 {
				id = args[0]
			}
			return runSubjectsHistory(cmd, id, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum history entries (git backend)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output history as JSON")

	return cmd
}

// revisionLister is implemented by stores that keep per-subject revisions.
type revisionLister interface {
	Revisions(ctx context.Context, subjectID string) ([]store.Revision, error)
}

// commitLister is implemented by stores backed by a commit log.
type commitLister interface {
	History(ctx context.Context, limit int) ([]store.CommitInfo, error)
}

func runSubjectsHistory(cmd *cobra.Command, id string, limit int, jsonOutput bool) error {
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

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	switch st := a.store.(type) {
	case revisionLister:
		if id == "" {
			return mcerrors.New(mcerrors.ErrCodeInvalidInput,
				"the sqlite backend records history per subject", nil).
				WithSuggestion("Pass a subject id: memcore subjects history <subject-id>")
		}
		revisions, err := st.Revisions(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			if revisions == nil {
				revisions = []store.Revision{}
			}
			return enc.Encode(revisions)
		}
		if len(revisions) == 0 {
			out.Status("", fmt.Sprintf("No history for subject %s", id))
			return nil
		}
		out.Statusf("🕐", "%d revision(s) for subject %s", len(revisions), id)
		out.Newline()
		for _, r := range revisions {
			out.Status("", fmt.Sprintf("v%-3d %-7s %s  %s",
				r.Version, r.Change, r.RecordedAt.Format(time.RFC3339), r.Label))
		}
		return nil

	case commitLister:
		commits, err := st.History(ctx, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			if commits == nil {
				commits = []store.CommitInfo{}
			}
			return enc.Encode(commits)
		}
		if len(commits) == 0 {
			out.Status("", "No commits recorded yet")
			return nil
		}
		out.Statusf("🕐", "%d commit(s)", len(commits))
		out.Newline()
		for _, c := range commits {
			hash := c.Hash
			if len(hash) > 8 {
				hash = hash[:8]
			}
			out.Status("", fmt.Sprintf("%s  %s  %s", hash, c.Timestamp.Format(time.RFC3339), c.Message))
		}
		return nil

	default:
		return mcerrors.New(mcerrors.ErrCodeInvalidInput,
			fmt.Sprintf("the %s backend keeps no history", a.cfg.Store.Backend), nil).
			WithSuggestion("Use the sqlite or git store backend to record history")
	}
}

func printSubject(out *output.Writer, s *store.Subject) {
	out.Status("", fmt.Sprintf("ID:          %s", s.ID))
	out.Status("", fmt.Sprintf("Label:       %s", s.Label))
	if s.Description != "" {
		out.Status("", fmt.Sprintf("Description: %s", s.Description))
	}
	out.Status("", fmt.Sprintf("Keywords:    %s", strings.Join(s.Keywords, ", ")))
	out.Status("", fmt.Sprintf("Version:     %d", s.Version))
	out.Status("", fmt.Sprintf("Created:     %s", s.CreatedAt.Format(time.RFC3339)))
	out.Status("", fmt.Sprintf("Updated:     %s", s.UpdatedAt.Format(time.RFC3339)))
	if len(s.Metadata) > 0 {
		out.Status("", "Metadata:")
		for k, v := range s.Metadata {
			out.Status("", fmt.Sprintf("   %s: %s", k, v))
		}
	}
}
