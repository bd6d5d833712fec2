package keyword

import (
	"context"
	"sort"
)

// FrequencyExtractor derives keywords by term frequency: tokenize, filter
// stop words, rank by occurrence count (ties broken by first appearance).
// It needs no model or network and is the default extractor.
type FrequencyExtractor struct {
	stopWords map[string]struct{}
}

// Verify interface implementation at compile time
var _ Extractor = (*FrequencyExtractor)(nil)

// FrequencyOption configures a FrequencyExtractor.
type FrequencyOption func(*FrequencyExtractor)

// WithStopWords replaces the default stop word list.
func WithStopWords(words []string) FrequencyOption {
	return func(e *FrequencyExtractor) {
		e.stopWords = BuildStopWordMap(words)
	}
}

// NewFrequencyExtractor creates a frequency-based extractor with the
// default English stop word list.
func NewFrequencyExtractor(opts ...FrequencyOption) *FrequencyExtractor {
	e := &FrequencyExtractor{
		stopWords: BuildStopWordMap(DefaultStopWords),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractKeywords returns the maxCount most frequent non-stop-word tokens
// in text, most frequent first. Equal counts keep text order.
func (e *FrequencyExtractor) ExtractKeywords(ctx context.Context, text string, maxCount int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if maxCount <= 0 {
		maxCount = DefaultMaxKeywords
	}

	tokens := FilterStopWords(Tokenize(text), e.stopWords)
	if len(tokens) == 0 {
		return nil, nil
	}

	counts := make(map[string]int, len(tokens))
	firstSeen := make(map[string]int, len(tokens))
	order := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		if _, ok := counts[tok]; !ok {
			firstSeen[tok] = i
			order = append(order, tok)
		}
		counts[tok]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		ci, cj := counts[order[i]], counts[order[j]]
		if ci != cj {
			return ci > cj
		}
		return firstSeen[order[i]] < firstSeen[order[j]]
	})

	if len(order) > maxCount {
		order = order[:maxCount]
	}
	return order, nil
}

// Name returns the extractor identifier.
func (e *FrequencyExtractor) Name() string {
	return "frequency"
}

// Available always reports true; frequency extraction has no external
// dependency.
func (e *FrequencyExtractor) Available(ctx context.Context) bool {
	return true
}

// Close releases resources (none held).
func (e *FrequencyExtractor) Close() error {
	return nil
}
