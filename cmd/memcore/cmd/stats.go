package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/juergengeck/memory.core/internal/index"
	"github.com/juergengeck/memory.core/internal/output"
	"github.com/juergengeck/memory.core/internal/profiling"
	"github.com/juergengeck/memory.core/internal/telemetry"
)

// statsOutput is the JSON shape of 'memcore stats'.
type statsOutput struct {
	Index     index.Stats     `json:"index"`
	Telemetry *telemetryStats `json:"telemetry,omitempty"`
}

type telemetryStats struct {
	From          string                            `json:"from"`
	To            string                            `json:"to"`
	QueryCounts   map[string]int64                  `json:"query_counts"`
	ZeroResults   map[string]int64                  `json:"zero_results"`
	Latency       map[telemetry.LatencyBucket]int64 `json:"latency"`
	RecentBatches []telemetry.BatchEvent            `json:"recent_batches"`
}

// latencyBucketLabels maps histogram buckets to display labels, in order.
var latencyBucketLabels = []struct {
	bucket telemetry.LatencyBucket
	label  string
}{
	{telemetry.BucketP10, "<10ms"},
	{telemetry.BucketP50, "10-50ms"},
	{telemetry.BucketP100, "50-100ms"},
	{telemetry.BucketP500, "100-500ms"},
	{telemetry.BucketP1000, ">500ms"},
}

func newStatsCmd() *cobra.Command {
	var (
		showTelemetry bool
		days          int
		jsonOutput    bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Long: `Show similarity index statistics: subject count, distinct keywords, and
approximate memory use.

With --telemetry, also show persisted query and batch telemetry for the
last N days (requires telemetry.enabled in the config).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd, showTelemetry, days, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&showTelemetry, "telemetry", false, "Include persisted query telemetry")
	cmd.Flags().IntVar(&days, "days", 7, "Telemetry window in days")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output stats as JSON")

	return cmd
}

func runStats(cmd *cobra.Command, showTelemetry bool, days int, jsonOutput bool) error {
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

	stats, err := a.service.IndexStats(ctx)
	if err != nil {
		return err
	}
	result := statsOutput{Index: stats}

	if showTelemetry {
		result.Telemetry, err = collectTelemetry(a, days)
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	mem := profiling.MemStats()
	out.Statusf("📊", "Index")
	out.Status("", fmt.Sprintf("Subjects:          %d", stats.SubjectCount))
	out.Status("", fmt.Sprintf("Distinct keywords: %d", stats.DistinctKeywordCount))
	out.Status("", fmt.Sprintf("Avg keywords:      %.1f", stats.AvgKeywordsPerSubject))
	out.Status("", fmt.Sprintf("Approx memory:     %s", profiling.FormatBytes(uint64(stats.ApproxMemoryBytes))))
	out.Status("", fmt.Sprintf("Process heap:      %s", profiling.FormatBytes(mem.HeapAlloc)))

	if !showTelemetry {
		return nil
	}
	if result.Telemetry == nil {
		out.Newline()
		out.Status("", "Telemetry is disabled. Set telemetry.enabled in the config to record query stats.")
		return nil
	}

	t := result.Telemetry
	out.Newline()
	out.Statusf("📈", "Queries (%s to %s)", t.From, t.To)
	if len(t.QueryCounts) == 0 {
		out.Status("", "No queries recorded in this window")
	}
	for kind, count := range t.QueryCounts {
		out.Status("", fmt.Sprintf("%-8s %d (%d zero-result)", kind+":", count, t.ZeroResults[kind]))
	}

	if len(t.Latency) > 0 {
		out.Newline()
		out.Status("", "Latency:")
		for _, b := range latencyBucketLabels {
			if count, ok := t.Latency[b.bucket]; ok {
				out.Status("", fmt.Sprintf("   %-10s %d", b.label, count))
			}
		}
	}

	if len(t.RecentBatches) > 0 {
		out.Newline()
		out.Status("", "Recent batches:")
		for _, b := range t.RecentBatches {
			out.Status("", fmt.Sprintf("   %s  scope=%s records=%d created=%d merged=%d",
				b.Timestamp.Format(time.RFC3339), b.Scope, b.Records, b.Created, b.Merged))
		}
	}
	return nil
}

// collectTelemetry reads persisted rollups for the last N days. A nil result
// with no error means telemetry is disabled.
func collectTelemetry(a *app, days int) (*telemetryStats, error) {
	if a.telemetryStore == nil {
		return nil, nil
	}
	if days <= 0 {
		days = 7
	}

	now := time.Now()
	from := now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	to := now.Format("2006-01-02")

	counts, zeros, err := a.telemetryStore.QueryTotals(from, to)
	if err != nil {
		return nil, err
	}
	latency, err := a.telemetryStore.LatencyTotals(from, to)
	if err != nil {
		return nil, err
	}
	batches, err := a.telemetryStore.RecentBatches(10)
	if err != nil {
		return nil, err
	}

	return &telemetryStats{
		From:          from,
		To:            to,
		QueryCounts:   counts,
		ZeroResults:   zeros,
		Latency:       latency,
		RecentBatches: batches,
	}, nil
}
