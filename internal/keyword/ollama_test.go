package keyword

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeywords_Formats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "comma separated",
			raw:  "rust, systems programming, memory safety",
			want: []string{"rust", "systems programming", "memory safety"},
		},
		{
			name: "bulleted list",
			raw:  "- rust\n- systems\n* memory",
			want: []string{"rust", "systems", "memory"},
		},
		{
			name: "numbered list",
			raw:  "1. rust\n2. systems\n3) memory",
			want: []string{"rust", "systems", "memory"},
		},
		{
			name: "quoted entries",
			raw:  `"rust", "go"`,
			want: []string{"rust", "go"},
		},
		{
			name: "duplicates removed case-insensitively",
			raw:  "Rust, rust, RUST, go",
			want: []string{"Rust", "go"},
		},
		{
			name: "blank lines skipped",
			raw:  "rust\n\n\ngo\n",
			want: []string{"rust", "go"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseKeywords(tt.raw, 10))
		})
	}
}

func TestParseKeywords_CapsAtMaxCount(t *testing.T) {
	got := parseKeywords("a, b, c, d, e", 3)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestOllamaExtractor_ExtractKeywords(t *testing.T) {
	// Given: a fake Ollama endpoint returning a keyword list
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Contains(t, req.Prompt, "keywords")

		resp := ollamaGenerateResponse{
			Model:    req.Model,
			Response: "rust, borrow checker, systems",
			Done:     true,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = server.URL
	cfg.SkipHealthCheck = true

	e, err := NewOllamaExtractor(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// When: extracting keywords
	keywords, err := e.ExtractKeywords(context.Background(), "Rust ownership and the borrow checker", 5)

	// Then: the parsed model output is returned
	require.NoError(t, err)
	assert.Equal(t, []string{"rust", "borrow checker", "systems"}, keywords)
}

func TestOllamaExtractor_EmptyTextSkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for empty text")
	}))
	defer server.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = server.URL
	cfg.SkipHealthCheck = true

	e, err := NewOllamaExtractor(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	keywords, err := e.ExtractKeywords(context.Background(), "   ", 5)

	require.NoError(t, err)
	assert.Empty(t, keywords)
}

func TestOllamaExtractor_HealthCheckResolvesModel(t *testing.T) {
	// Given: an endpoint listing only a fallback model
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		resp := ollamaModelListResponse{
			Models: []ollamaModelInfo{{Name: "llama3.1:8b"}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	cfg := DefaultOllamaConfig()
	cfg.Host = server.URL

	// When: constructing with the health check enabled
	e, err := NewOllamaExtractor(context.Background(), cfg)

	// Then: the installed fallback is selected
	require.NoError(t, err)
	defer func() { _ = e.Close() }()
	assert.Equal(t, "ollama:llama3.1:8b", e.Name())
}

func TestOllamaExtractor_ClosedRejectsCalls(t *testing.T) {
	cfg := DefaultOllamaConfig()
	cfg.SkipHealthCheck = true

	e, err := NewOllamaExtractor(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.ExtractKeywords(context.Background(), "text", 5)
	assert.Error(t, err)
}
