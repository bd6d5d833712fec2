package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/juergengeck/memory.core/internal/config"
	"github.com/juergengeck/memory.core/internal/extract"
	"github.com/juergengeck/memory.core/internal/telemetry"
	"github.com/juergengeck/memory.core/internal/topics"
	"github.com/juergengeck/memory.core/pkg/version"
)

const serverName = "memory.core"

// defaultScope is used for extract_subjects batches that name no scope.
const defaultScope = "adhoc"

// maxLimit caps the result limit a client may request.
const maxLimit = 50

// Server is the MCP server for memory.core.
// It bridges AI clients with the keyword similarity index.
type Server struct {
	mcp    *mcp.Server
	svc    *topics.Service
	config *config.Config
	logger *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.Recorder

	mu sync.RWMutex
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// NewServer creates a new MCP server on top of the topic service.
func NewServer(svc *topics.Service, cfg *config.Config, opts ...ServerOption) (*Server, error) {
	if svc == nil {
		return nil, errors.New("topic service is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	s := &Server{
		svc:    svc,
		config: cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Create MCP server with implementation info
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version.Version,
		},
		nil, // ServerOptions - capabilities are inferred from registered tools/resources
	)

	s.registerTools()

	return s, nil
}

// SetMetrics sets the telemetry recorder.
// When set, a telemetry resource is registered.
func (s *Server) SetMetrics(m *telemetry.Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m

	if m != nil {
		s.registerTelemetryResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return serverName, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return []ToolInfo{
		{
			Name:        "search_subjects",
			Description: "Find subjects whose keyword sets overlap the given keywords, ranked by Jaccard similarity. Use this to locate topics related to what you are working on.",
		},
		{
			Name:        "similar_subjects",
			Description: "Find the nearest neighbours of an existing subject by keyword overlap. The subject itself is never part of the result.",
		},
		{
			Name:        "extract_subjects",
			Description: "Extract keywords from a batch of text records and create or merge subjects from them. Returns counts of created and merged subjects.",
		},
		{
			Name:        "get_subject",
			Description: "Fetch one subject with its full keyword set, metadata, and version.",
		},
		{
			Name:        "list_subjects",
			Description: "List all subjects ordered by label. Returns compact summaries.",
		},
		{
			Name:        "rebuild_index",
			Description: "Rebuild the in-memory similarity index from the subject store. Use after external writes to the store.",
		},
		{
			Name:        "index_stats",
			Description: "Report index size: subject count, distinct keywords, and approximate memory use.",
		},
	}
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	for _, info := range s.ListTools() {
		tool := &mcp.Tool{Name: info.Name, Description: info.Description}
		switch info.Name {
		case "search_subjects":
			mcp.AddTool(s.mcp, tool, s.searchSubjectsHandler)
		case "similar_subjects":
			mcp.AddTool(s.mcp, tool, s.similarSubjectsHandler)
		case "extract_subjects":
			mcp.AddTool(s.mcp, tool, s.extractSubjectsHandler)
		case "get_subject":
			mcp.AddTool(s.mcp, tool, s.getSubjectHandler)
		case "list_subjects":
			mcp.AddTool(s.mcp, tool, s.listSubjectsHandler)
		case "rebuild_index":
			mcp.AddTool(s.mcp, tool, s.rebuildIndexHandler)
		case "index_stats":
			mcp.AddTool(s.mcp, tool, s.indexStatsHandler)
		}
		s.logger.Debug("Registered tool", slog.String("name", info.Name))
	}

	s.logger.Info("MCP tools registered", slog.Int("count", len(s.ListTools())))
}

// searchSubjectsHandler is the MCP SDK handler for the search_subjects tool.
func (s *Server) searchSubjectsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchSubjectsInput) (
	*mcp.CallToolResult,
	SearchSubjectsOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()

	keywords := cleanKeywords(input.Keywords)
	if len(keywords) == 0 {
		return nil, SearchSubjectsOutput{}, NewInvalidParamsError("keywords parameter is required and must contain at least one non-empty keyword")
	}
	limit := clampLimit(input.Limit, s.config.Index.DefaultLimit, 1, maxLimit)

	s.logger.Info("search_subjects started",
		slog.String("request_id", requestID),
		slog.Int("keyword_count", len(keywords)),
		slog.Int("limit", limit))

	matches, err := s.svc.Search(ctx, keywords, limit)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("search_subjects failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, SearchSubjectsOutput{}, MapError(err)
	}

	s.logger.Info("search_subjects completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(matches)))

	return nil, SearchSubjectsOutput{Matches: toMatchOutputs(matches)}, nil
}

// similarSubjectsHandler is the MCP SDK handler for the similar_subjects tool.
func (s *Server) similarSubjectsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SimilarSubjectsInput) (
	*mcp.CallToolResult,
	SearchSubjectsOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()

	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, SearchSubjectsOutput{}, NewInvalidParamsError("id parameter is required")
	}
	limit := clampLimit(input.Limit, s.config.Index.DefaultLimit, 1, maxLimit)

	s.logger.Info("similar_subjects started",
		slog.String("request_id", requestID),
		slog.String("subject_id", id),
		slog.Int("limit", limit))

	matches, err := s.svc.SimilarSubjects(ctx, id, limit)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("similar_subjects failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, SearchSubjectsOutput{}, MapError(err)
	}

	s.logger.Info("similar_subjects completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(matches)))

	return nil, SearchSubjectsOutput{Matches: toMatchOutputs(matches)}, nil
}

// extractSubjectsHandler is the MCP SDK handler for the extract_subjects tool.
func (s *Server) extractSubjectsHandler(ctx context.Context, _ *mcp.CallToolRequest, input ExtractSubjectsInput) (
	*mcp.CallToolResult,
	BatchReportOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()

	if len(input.Records) == 0 {
		return nil, BatchReportOutput{}, NewInvalidParamsError("records parameter is required and must contain at least one record")
	}
	scope := strings.TrimSpace(input.Scope)
	if scope == "" {
		scope = defaultScope
	}

	records := make([]extract.Record, 0, len(input.Records))
	for i, r := range input.Records {
		id := strings.TrimSpace(r.ID)
		if id == "" {
			id = fmt.Sprintf("%s-%d", requestID, i+1)
		}
		records = append(records, extract.Record{ID: id, Text: r.Text})
	}

	s.logger.Info("extract_subjects started",
		slog.String("request_id", requestID),
		slog.String("scope", scope),
		slog.Int("records", len(records)))

	report, err := s.svc.AnalyzeBatch(ctx, scope, records)
	duration := time.Since(start)

	if err != nil {
		s.logger.Error("extract_subjects failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, BatchReportOutput{}, MapError(err)
	}

	s.logger.Info("extract_subjects completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("created", report.Created),
		slog.Int("merged", report.Merged))

	return nil, toBatchReportOutput(report), nil
}

// getSubjectHandler is the MCP SDK handler for the get_subject tool.
func (s *Server) getSubjectHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetSubjectInput) (
	*mcp.CallToolResult,
	SubjectOutput,
	error,
) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		return nil, SubjectOutput{}, NewInvalidParamsError("id parameter is required")
	}

	sub, err := s.svc.GetSubject(ctx, id)
	if err != nil {
		return nil, SubjectOutput{}, MapError(err)
	}

	return nil, toSubjectOutput(sub), nil
}

// listSubjectsHandler is the MCP SDK handler for the list_subjects tool.
func (s *Server) listSubjectsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListSubjectsInput) (
	*mcp.CallToolResult,
	ListSubjectsOutput,
	error,
) {
	subjects, err := s.svc.ListSubjects(ctx)
	if err != nil {
		return nil, ListSubjectsOutput{}, MapError(err)
	}

	output := ListSubjectsOutput{
		Subjects: make([]SubjectSummary, 0, len(subjects)),
		Count:    len(subjects),
	}
	for _, sub := range subjects {
		output.Subjects = append(output.Subjects, SubjectSummary{
			ID:           sub.ID,
			Label:        sub.Label,
			KeywordCount: len(sub.Keywords),
		})
	}

	return nil, output, nil
}

// rebuildIndexHandler is the MCP SDK handler for the rebuild_index tool.
func (s *Server) rebuildIndexHandler(ctx context.Context, _ *mcp.CallToolRequest, _ RebuildIndexInput) (
	*mcp.CallToolResult,
	RebuildIndexOutput,
	error,
) {
	start := time.Now()
	requestID := generateRequestID()

	s.logger.Info("rebuild_index started", slog.String("request_id", requestID))

	if err := s.svc.RebuildIndex(ctx); err != nil {
		s.logger.Error("rebuild_index failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, RebuildIndexOutput{}, MapError(err)
	}

	stats, err := s.svc.IndexStats(ctx)
	if err != nil {
		return nil, RebuildIndexOutput{}, MapError(err)
	}
	duration := time.Since(start)

	s.logger.Info("rebuild_index completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("subjects", stats.SubjectCount))

	return nil, RebuildIndexOutput{
		SubjectCount:         stats.SubjectCount,
		DistinctKeywordCount: stats.DistinctKeywordCount,
		ElapsedMS:            duration.Milliseconds(),
	}, nil
}

// indexStatsHandler is the MCP SDK handler for the index_stats tool.
func (s *Server) indexStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatsInput) (
	*mcp.CallToolResult,
	IndexStatsOutput,
	error,
) {
	stats, err := s.svc.IndexStats(ctx)
	if err != nil {
		return nil, IndexStatsOutput{}, MapError(err)
	}

	return nil, IndexStatsOutput{
		SubjectCount:          stats.SubjectCount,
		DistinctKeywordCount:  stats.DistinctKeywordCount,
		AvgKeywordsPerSubject: stats.AvgKeywordsPerSubject,
		ApproxMemoryBytes:     stats.ApproxMemoryBytes,
	}, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server",
		slog.String("transport", transport))

	switch transport {
	case "stdio":
		s.logger.Debug("Using stdio transport for JSON-RPC")
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error",
				slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	// The MCP server stops when its context is canceled
	return nil
}

// cleanKeywords trims whitespace and drops empty entries, preserving order.
func cleanKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		out = append(out, kw)
	}
	return out
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
