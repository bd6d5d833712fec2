package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/juergengeck/memory.core/internal/config"
	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/extract"
	"github.com/juergengeck/memory.core/internal/index"
	"github.com/juergengeck/memory.core/internal/keyword"
	"github.com/juergengeck/memory.core/internal/store"
	"github.com/juergengeck/memory.core/internal/telemetry"
)

// ErrNilDependency is returned when a required service dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// BatchReport summarizes one AnalyzeBatch run.
type BatchReport struct {
	Scope     string        `json:"scope"`
	Records   int           `json:"records"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Created   int           `json:"created"`
	Merged    int           `json:"merged"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Service implements the query and maintenance APIs over the subject store
// and the similarity index. Every write flows through the service so the
// coordinator sees each mutation and the index stays current.
type Service struct {
	store       store.SubjectStore
	index       *index.Index
	coordinator *Coordinator
	pipeline    *extract.Pipeline
	extractor   keyword.Extractor
	cfg         *config.Config
	metrics     *telemetry.Recorder
	logger      *slog.Logger
}

// ServiceOption configures optional service collaborators.
type ServiceOption func(*Service)

// WithMetrics sets the telemetry recorder. Nil disables recording.
func WithMetrics(r *telemetry.Recorder) ServiceOption {
	return func(s *Service) { s.metrics = r }
}

// WithServiceLogger sets the logger. Nil is ignored.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates the topics service. The extractor may be nil: queries
// keep working and AnalyzeBatch fails fast with an extractor-missing error.
func NewService(st store.SubjectStore, ix *index.Index, extractor keyword.Extractor, cfg *config.Config, opts ...ServiceOption) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: subject store is required", ErrNilDependency)
	}
	if ix == nil {
		return nil, fmt.Errorf("%w: similarity index is required", ErrNilDependency)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrNilDependency)
	}

	s := &Service{
		store:     st,
		index:     ix,
		extractor: extractor,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.coordinator = NewCoordinator(st, ix,
		WithRebuildParallelism(cfg.Index.RebuildParallelism),
		WithCoordinatorLogger(s.logger))

	s.pipeline = extract.NewPipeline(extractor,
		extract.WithMaxKeywords(cfg.Extraction.MaxKeywords),
		extract.WithMinConfidence(cfg.Extraction.MinConfidence),
		extract.WithLogger(s.logger))

	return s, nil
}

// AnalyzeBatch extracts subject candidates from records and persists each
// surviving one: a candidate whose label matches an existing subject
// case-insensitively is merged into it (keyword union, version bump), any
// other candidate becomes a new subject. The extractor and the scope gate
// are checked before any record is touched.
func (s *Service) AnalyzeBatch(ctx context.Context, scope string, records []extract.Record) (*BatchReport, error) {
	start := time.Now()

	if s.extractor == nil {
		return nil, mcerrors.New(mcerrors.ErrCodeExtractorMissing,
			"no keyword extractor configured", nil).
			WithSuggestion("Configure extraction.extractor (frequency or ollama)")
	}
	if !s.cfg.Extraction.Enabled(scope) {
		return nil, mcerrors.New(mcerrors.ErrCodeScopeDisabled,
			fmt.Sprintf("extraction is disabled for scope %q", scope), nil).
			WithDetail("scope", scope).
			WithSuggestion("Enable the scope under extraction.scopes in the config")
	}

	result, err := s.pipeline.Run(ctx, records)
	if err != nil {
		return nil, err
	}

	// The label lookup spans existing subjects plus those written earlier
	// in this batch.
	if err := s.coordinator.EnsureBuilt(ctx); err != nil {
		return nil, err
	}
	byLabel := make(map[string]string)
	for _, e := range s.index.All() {
		byLabel[keyword.Normalize(e.Label)] = e.ID
	}

	report := &BatchReport{
		Scope:     scope,
		Records:   len(records),
		Processed: result.Processed,
		Failed:    result.Failed,
	}

	for _, cand := range result.Candidates {
		key := keyword.Normalize(cand.Label)

		if id, ok := byLabel[key]; ok {
			if err := s.mergeCandidate(ctx, id, cand); err != nil {
				s.logger.Warn("merge failed, candidate skipped",
					slog.String("label", cand.Label),
					slog.String("subject_id", id),
					slog.String("error", err.Error()))
				continue
			}
			report.Merged++
			continue
		}

		subject, err := s.store.Create(ctx, store.SubjectFields{
			Label:    cand.Label,
			Keywords: cand.Keywords,
		})
		if err != nil {
			s.logger.Warn("create failed, candidate skipped",
				slog.String("label", cand.Label),
				slog.String("error", err.Error()))
			continue
		}
		s.coordinator.OnSaved(subject)
		byLabel[key] = subject.ID
		report.Created++
	}

	report.Elapsed = time.Since(start)
	s.recordBatch(report)
	s.logger.Info("batch analyzed",
		slog.String("scope", scope),
		slog.Int("records", report.Records),
		slog.Int("processed", report.Processed),
		slog.Int("failed", report.Failed),
		slog.Int("created", report.Created),
		slog.Int("merged", report.Merged),
		slog.Duration("elapsed", report.Elapsed))
	return report, nil
}

// mergeCandidate folds candidate keywords into an existing subject:
// keyword union on normalized identity, existing label and description
// kept, version bumped by the store update.
func (s *Service) mergeCandidate(ctx context.Context, id string, cand extract.Candidate) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	updated, err := s.store.Update(ctx, id, store.SubjectFields{
		Label:       existing.Label,
		Description: existing.Description,
		Keywords:    unionKeywords(existing.Keywords, cand.Keywords),
		Metadata:    existing.Metadata,
	})
	if err != nil {
		return err
	}
	s.coordinator.OnSaved(updated)
	return nil
}

// Search returns subjects ranked by similarity to the given keywords.
// Empty and fully-unmatched queries return an empty result, not an error.
func (s *Service) Search(ctx context.Context, keywords []string, limit int) ([]index.Match, error) {
	start := time.Now()
	if err := s.coordinator.EnsureBuilt(ctx); err != nil {
		return nil, err
	}

	matches := s.index.FindSimilar(keywords, limit)
	s.recordQuery("search", len(keywords), len(matches), time.Since(start))
	return matches, nil
}

// SimilarSubjects ranks other subjects by similarity to the keywords of the
// subject under id, excluding the subject itself.
func (s *Service) SimilarSubjects(ctx context.Context, id string, limit int) ([]index.Match, error) {
	start := time.Now()
	if err := s.coordinator.EnsureBuilt(ctx); err != nil {
		return nil, err
	}

	subject, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, mcerrors.SubjectNotFound(id)
		}
		return nil, mcerrors.StoreError("load subject", err)
	}

	if limit <= 0 {
		limit = index.DefaultLimit
	}
	// Ask for one extra match since the subject always matches itself.
	matches := s.index.FindSimilar(subject.Keywords, limit+1)
	out := make([]index.Match, 0, len(matches))
	for _, m := range matches {
		if m.ID == id {
			continue
		}
		out = append(out, m)
	}
	if len(out) > limit {
		out = out[:limit]
	}

	s.recordQuery("similar", len(subject.Keywords), len(out), time.Since(start))
	return out, nil
}

// CreateSubject stores a new subject and indexes it.
func (s *Service) CreateSubject(ctx context.Context, fields store.SubjectFields) (*store.Subject, error) {
	if strings.TrimSpace(fields.Label) == "" {
		return nil, mcerrors.New(mcerrors.ErrCodeInvalidInput,
			"subject label must not be empty", nil)
	}

	subject, err := s.store.Create(ctx, fields)
	if err != nil {
		return nil, mcerrors.StoreError("create subject", err)
	}
	s.coordinator.OnSaved(subject)
	return subject, nil
}

// UpdateSubject replaces the mutable fields of an existing subject and
// reindexes it.
func (s *Service) UpdateSubject(ctx context.Context, id string, fields store.SubjectFields) (*store.Subject, error) {
	if strings.TrimSpace(fields.Label) == "" {
		return nil, mcerrors.New(mcerrors.ErrCodeInvalidInput,
			"subject label must not be empty", nil)
	}

	subject, err := s.store.Update(ctx, id, fields)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, mcerrors.SubjectNotFound(id)
		}
		return nil, mcerrors.StoreError("update subject", err)
	}
	s.coordinator.OnSaved(subject)
	return subject, nil
}

// DeleteSubject removes a subject from the store and the index, reporting
// whether it existed.
func (s *Service) DeleteSubject(ctx context.Context, id string) (bool, error) {
	existed, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, mcerrors.StoreError("delete subject", err)
	}
	if existed {
		s.coordinator.OnDeleted(id)
	}
	return existed, nil
}

// GetSubject returns the subject under id.
func (s *Service) GetSubject(ctx context.Context, id string) (*store.Subject, error) {
	subject, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, mcerrors.SubjectNotFound(id)
		}
		return nil, mcerrors.StoreError("load subject", err)
	}
	return subject, nil
}

// ListSubjects returns every subject sorted by label, ties by id.
func (s *Service) ListSubjects(ctx context.Context) ([]*store.Subject, error) {
	ids, err := s.store.List(ctx)
	if err != nil {
		return nil, mcerrors.StoreError("list subjects", err)
	}

	subjects := make([]*store.Subject, 0, len(ids))
	for _, id := range ids {
		subject, err := s.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, mcerrors.StoreError("load subject", err)
		}
		subjects = append(subjects, subject)
	}

	sort.Slice(subjects, func(i, j int) bool {
		a := strings.ToLower(subjects[i].Label)
		b := strings.ToLower(subjects[j].Label)
		if a != b {
			return a < b
		}
		return subjects[i].ID < subjects[j].ID
	})
	return subjects, nil
}

// RebuildIndex rebuilds the similarity index from the store.
func (s *Service) RebuildIndex(ctx context.Context) error {
	return s.coordinator.Rebuild(ctx)
}

// IndexStats returns index size diagnostics, building the index first if
// this process has not served a query yet.
func (s *Service) IndexStats(ctx context.Context) (index.Stats, error) {
	if err := s.coordinator.EnsureBuilt(ctx); err != nil {
		return index.Stats{}, err
	}
	return s.index.Stats(), nil
}

// Close releases the extractor and the store.
func (s *Service) Close() error {
	var errs []error

	if s.extractor != nil {
		if err := s.extractor.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// recordQuery records query telemetry if a recorder is configured.
func (s *Service) recordQuery(kind string, keywords, results int, latency time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordQuery(telemetry.QueryEvent{
		Kind:         kind,
		KeywordCount: keywords,
		ResultCount:  results,
		Latency:      latency,
		Timestamp:    time.Now(),
	})
}

// recordBatch records batch telemetry if a recorder is configured.
func (s *Service) recordBatch(report *BatchReport) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordBatch(telemetry.BatchEvent{
		Scope:     report.Scope,
		Records:   report.Records,
		Processed: report.Processed,
		Failed:    report.Failed,
		Created:   report.Created,
		Merged:    report.Merged,
		Latency:   report.Elapsed,
		Timestamp: time.Now(),
	})
}

// unionKeywords appends keywords from add whose normalized form is not
// already present in base, preserving base order and original spellings.
func unionKeywords(base, add []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, kw := range base {
		if n := keyword.Normalize(kw); n != "" {
			seen[n] = struct{}{}
		}
	}

	out := make([]string, 0, len(base)+len(add))
	out = append(out, base...)
	for _, kw := range add {
		n := keyword.Normalize(kw)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, kw)
	}
	return out
}
