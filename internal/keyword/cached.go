package keyword

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedExtractor wraps an Extractor with LRU caching so repeated records
// (re-ingested spool files, NATS redeliveries) do not pay for extraction
// twice. Keys cover extractor name, keyword budget, and text.
type CachedExtractor struct {
	inner Extractor
	cache *lru.Cache[string, []string]
}

// Verify interface implementation at compile time
var _ Extractor = (*CachedExtractor)(nil)

// NewCachedExtractor creates a cached extractor wrapping inner.
// cacheSize <= 0 uses DefaultKeywordCacheSize.
func NewCachedExtractor(inner Extractor, cacheSize int) *CachedExtractor {
	if cacheSize <= 0 {
		cacheSize = DefaultKeywordCacheSize
	}
	cache, _ := lru.New[string, []string](cacheSize)
	return &CachedExtractor{
		inner: inner,
		cache: cache,
	}
}

// cacheKey hashes extractor name, budget, and text; SHA-256 keeps keys a
// fixed length regardless of record size.
func (c *CachedExtractor) cacheKey(text string, maxCount int) string {
	combined := fmt.Sprintf("%s\x00%d\x00%s", c.inner.Name(), maxCount, text)
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// ExtractKeywords returns the cached result if available, otherwise
// extracts and caches. Failed extractions are not cached.
func (c *CachedExtractor) ExtractKeywords(ctx context.Context, text string, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		maxCount = DefaultMaxKeywords
	}
	key := c.cacheKey(text, maxCount)

	if keywords, ok := c.cache.Get(key); ok {
		return keywords, nil
	}

	keywords, err := c.inner.ExtractKeywords(ctx, text, maxCount)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, keywords)
	return keywords, nil
}

// Name returns the inner extractor identifier.
func (c *CachedExtractor) Name() string {
	return c.inner.Name()
}

// Available checks if the inner extractor is ready (passthrough).
func (c *CachedExtractor) Available(ctx context.Context) bool {
	return c.inner.Available(ctx)
}

// Close releases resources and closes the inner extractor.
func (c *CachedExtractor) Close() error {
	return c.inner.Close()
}

// Inner returns the underlying extractor.
func (c *CachedExtractor) Inner() Extractor {
	return c.inner
}
