package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/juergengeck/memory.core/internal/store"
	"github.com/juergengeck/memory.core/internal/telemetry"
)

// subjectURIPrefix is the URI scheme for subject resources.
const subjectURIPrefix = "subject://"

// telemetryURI is the URI of the telemetry resource.
const telemetryURI = "memcore://telemetry"

// RegisterResources publishes every stored subject as an MCP resource.
// This should be called after the server is created and before serving.
// Subjects created later are reachable through the get_subject tool.
func (s *Server) RegisterResources(ctx context.Context) error {
	subjects, err := s.svc.ListSubjects(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subjects: %w", err)
	}

	for _, sub := range subjects {
		s.registerSubjectResource(sub)
	}

	s.logger.Info("registered subject resources", slog.Int("count", len(subjects)))
	return nil
}

// registerSubjectResource registers a single subject as an MCP resource.
func (s *Server) registerSubjectResource(sub *store.Subject) {
	uri := subjectURIPrefix + sub.ID
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        sub.Label,
			URI:         uri,
			Description: fmt.Sprintf("%s (%d keywords)", sub.Label, len(sub.Keywords)),
			MIMEType:    "application/json",
		},
		s.makeSubjectHandler(sub.ID),
	)
}

// makeSubjectHandler creates a read handler for a specific subject.
// The subject is re-read on every request so the content reflects
// updates made after registration.
func (s *Server) makeSubjectHandler(id string) mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := subjectURIPrefix + id

		sub, err := s.svc.GetSubject(ctx, id)
		if err != nil {
			mapped := MapError(err)
			if mapped.Code == ErrCodeSubjectMissing {
				return nil, NewResourceNotFoundError(uri)
			}
			return nil, mapped
		}

		content, err := json.MarshalIndent(toSubjectOutput(sub), "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      uri,
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}

// TelemetryOutput is the JSON structure for the telemetry resource.
type TelemetryOutput struct {
	Summary             TelemetrySummary       `json:"summary"`
	QueryCounts         map[string]int64       `json:"query_counts"`
	LatencyDistribution map[string]int64       `json:"latency_distribution"`
	RecentBatches       []telemetry.BatchEvent `json:"recent_batches"`
}

// TelemetrySummary provides overview statistics.
type TelemetrySummary struct {
	TotalQueries  int64   `json:"total_queries"`
	ZeroResultPct float64 `json:"zero_result_pct"`
	Batches       int64   `json:"batches"`
	Since         string  `json:"since"`
}

// registerTelemetryResource registers the telemetry resource.
func (s *Server) registerTelemetryResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "telemetry",
			URI:         telemetryURI,
			Description: "Local usage counters for queries and batch runs",
			MIMEType:    "application/json",
		},
		s.makeTelemetryHandler(),
	)
}

// makeTelemetryHandler creates a handler for the telemetry resource.
func (s *Server) makeTelemetryHandler() mcp.ResourceHandler {
	return func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		s.mu.RLock()
		metrics := s.metrics
		s.mu.RUnlock()

		if metrics == nil {
			return nil, NewInvalidParamsError("telemetry not available")
		}

		snapshot := metrics.Snapshot()

		output := TelemetryOutput{
			Summary: TelemetrySummary{
				TotalQueries:  snapshot.TotalQueries,
				ZeroResultPct: snapshot.ZeroResultPercentage(),
				Batches:       snapshot.Batches,
				Since:         snapshot.Since.UTC().Format(time.RFC3339),
			},
			QueryCounts:         snapshot.QueryCounts,
			LatencyDistribution: make(map[string]int64, len(snapshot.LatencyDistribution)),
			RecentBatches:       snapshot.RecentBatches,
		}
		for bucket, count := range snapshot.LatencyDistribution {
			output.LatencyDistribution[string(bucket)] = count
		}

		content, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return nil, MapError(err)
		}

		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{
					URI:      telemetryURI,
					MIMEType: "application/json",
					Text:     string(content),
				},
			},
		}, nil
	}
}
