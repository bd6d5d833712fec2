package keyword

import "context"

// Extraction constants.
const (
	// DefaultMaxKeywords is the keyword budget per record when the caller
	// does not specify one.
	DefaultMaxKeywords = 10

	// DefaultKeywordCacheSize is the default number of extraction results
	// kept by CachedExtractor. Keyword lists are tiny; 1000 entries is well
	// under a megabyte.
	DefaultKeywordCacheSize = 1000
)

// Extractor derives raw keywords from free text. Implementations return at
// most maxCount keywords, best first. They do not normalize; the core
// applies Normalize/NormalizeSet to everything an Extractor returns.
type Extractor interface {
	// ExtractKeywords returns up to maxCount keywords for text.
	// maxCount <= 0 means DefaultMaxKeywords.
	ExtractKeywords(ctx context.Context, text string, maxCount int) ([]string, error)

	// Name returns the extractor identifier (used in logs and cache keys).
	Name() string

	// Available checks if the extractor is ready
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}
