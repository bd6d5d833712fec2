// Package extract implements the subject extraction pipeline: it turns a
// batch of text records into deduplicated candidate subjects by collecting
// keywords per record, tracking keyword frequency across the batch, and
// scoring candidates by how dominant their keywords are.
//
// The pipeline is deliberately sequential. Candidate labels and confidence
// depend on the running frequency counts at the point each record is
// processed, so record order is part of the contract.
package extract

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/keyword"
)

// Pipeline defaults.
const (
	// DefaultMaxKeywords requested from the extractor per record.
	DefaultMaxKeywords = 10

	// DefaultMinConfidence below which candidates are dropped.
	DefaultMinConfidence = 0.5

	// labelKeywordCount is how many top keywords form a candidate label.
	labelKeywordCount = 3
)

// Record is the unit of batch extraction: an identifier for diagnostics and
// the raw text keywords are extracted from.
type Record struct {
	ID   string
	Text string
}

// Candidate is a potential subject produced by a batch run.
type Candidate struct {
	// Label is built from the most frequent keywords at the time the
	// record was processed, joined with single spaces.
	Label string

	// Keywords is the record's own extracted set, normalized.
	Keywords []string

	// Confidence in [0,1]: how dominant the label keywords were across
	// the batch when this candidate formed.
	Confidence float64
}

// BatchResult reports a pipeline run. Processed counts records that yielded
// keywords; Failed counts records skipped because extraction failed or
// returned nothing usable. Processed + Failed equals the batch size unless
// the run was cancelled.
type BatchResult struct {
	Candidates []Candidate
	Processed  int
	Failed     int
	Elapsed    time.Duration
}

// Pipeline runs batch keyword extraction. Construct with NewPipeline; the
// zero value is not usable.
type Pipeline struct {
	extractor     keyword.Extractor
	maxKeywords   int
	minConfidence float64
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxKeywords sets the keyword budget requested per record.
// Non-positive values are ignored.
func WithMaxKeywords(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxKeywords = n
		}
	}
}

// WithMinConfidence sets the confidence floor for candidates.
// Values outside [0,1] are ignored.
func WithMinConfidence(min float64) Option {
	return func(p *Pipeline) {
		if min >= 0 && min <= 1 {
			p.minConfidence = min
		}
	}
}

// WithLogger sets the logger for per-record failures and run summaries.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates a pipeline around an extractor. The extractor may be
// nil; Run then fails its precondition check before touching any record.
func NewPipeline(extractor keyword.Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		extractor:     extractor,
		maxKeywords:   DefaultMaxKeywords,
		minConfidence: DefaultMinConfidence,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes records in order. Per-record extraction failures are logged
// and counted, never fatal; a missing extractor is a precondition error
// returned before any record is processed. Cancellation aborts between
// records and returns the partial result alongside the context error.
func (p *Pipeline) Run(ctx context.Context, records []Record) (*BatchResult, error) {
	if p.extractor == nil {
		return nil, mcerrors.New(mcerrors.ErrCodeExtractorMissing,
			"no keyword extractor configured", nil).
			WithSuggestion("Configure extraction.extractor (frequency or ollama)")
	}

	start := time.Now()
	result := &BatchResult{}
	if len(records) == 0 {
		result.Elapsed = time.Since(start)
		return result, nil
	}

	total := len(records)
	freq := make(map[string]int, total*p.maxKeywords)
	var firstSeen []string

	// Dedupe by lowercase label, keeping the higher confidence. Position of
	// the first occurrence decides output order.
	byLabel := make(map[string]int)
	var candidates []Candidate

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			result.Elapsed = time.Since(start)
			return result, err
		}

		raw, err := p.extractor.ExtractKeywords(ctx, rec.Text, p.maxKeywords)
		if err != nil {
			result.Failed++
			p.logger.Warn("keyword extraction failed",
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()))
			continue
		}

		keywords := keyword.NormalizeSet(raw)
		if len(keywords) == 0 {
			result.Failed++
			p.logger.Warn("no keywords extracted",
				slog.String("record_id", rec.ID))
			continue
		}
		result.Processed++

		for _, kw := range keywords {
			if freq[kw] == 0 {
				firstSeen = append(firstSeen, kw)
			}
			freq[kw]++
		}

		top := topKeywords(freq, firstSeen, labelKeywordCount)
		label := strings.Join(top, " ")
		confidence := meanFrequency(freq, top) / float64(total)
		if confidence > 1.0 {
			confidence = 1.0
		}

		if confidence < p.minConfidence {
			continue
		}

		key := strings.ToLower(label)
		if i, seen := byLabel[key]; seen {
			if confidence > candidates[i].Confidence {
				candidates[i] = Candidate{Label: label, Keywords: keywords, Confidence: confidence}
			}
			continue
		}
		byLabel[key] = len(candidates)
		candidates = append(candidates, Candidate{Label: label, Keywords: keywords, Confidence: confidence})
	}

	result.Candidates = candidates
	result.Elapsed = time.Since(start)

	p.logger.Debug("extraction batch finished",
		slog.Int("records", total),
		slog.Int("processed", result.Processed),
		slog.Int("failed", result.Failed),
		slog.Int("candidates", len(result.Candidates)),
		slog.Duration("elapsed", result.Elapsed))

	return result, nil
}

// topKeywords returns up to n keywords ranked by frequency, ties broken by
// first appearance in the batch.
func topKeywords(freq map[string]int, firstSeen []string, n int) []string {
	ranked := make([]string, len(firstSeen))
	copy(ranked, firstSeen)
	sort.SliceStable(ranked, func(i, j int) bool {
		return freq[ranked[i]] > freq[ranked[j]]
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// meanFrequency averages the counts of the given keywords.
func meanFrequency(freq map[string]int, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	sum := 0
	for _, kw := range keywords {
		sum += freq[kw]
	}
	return float64(sum) / float64(len(keywords))
}
