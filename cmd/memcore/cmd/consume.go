package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juergengeck/memory.core/internal/ingest"
	"github.com/juergengeck/memory.core/internal/output"
)

func newConsumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume extraction records from NATS",
		Long: `Subscribe to the configured NATS subject and extract subjects from
incoming record messages.

Messages are JSON objects with "id", "text", and an optional "scope" field.
Records are batched per scope before extraction; batches that fail are
retried and eventually moved to the dead-letter subject. Runs until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConsume(cmd)
		},
	}

	return cmd
}

func runConsume(cmd *cobra.Command) error {
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

	nc, err := ingest.Dial(ctx, a.cfg.Ingest.NATS)
	if err != nil {
		return err
	}
	defer nc.Close()

	consumer, err := ingest.NewConsumer(a.service, nc, a.cfg.Ingest.NATS,
		ingest.WithConsumerLogger(a.logger))
	if err != nil {
		return err
	}

	if err := consumer.Start(ctx); err != nil {
		return err
	}

	subject := a.cfg.Ingest.NATS.Subject
	if subject == "" {
		subject = ingest.DefaultSubject
	}
	out.Statusf("📨", "Consuming %s from %s (Ctrl+C to stop)", subject, nc.ConnectedUrl())

	<-ctx.Done()

	if err := consumer.Close(); err != nil {
		out.Warning(fmt.Sprintf("consumer shutdown: %v", err))
	}
	out.Status("", "Stopped.")
	return nil
}
