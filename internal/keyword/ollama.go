package keyword

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	mcerrors "github.com/juergengeck/memory.core/internal/errors"
)

// Ollama API constants.
const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default generation model for keyword
	// extraction. Small instruct models follow the list-output prompt
	// reliably; larger models add latency without better keywords.
	DefaultOllamaModel = "llama3.2:3b"

	// OllamaConnectTimeout bounds the initial health check.
	OllamaConnectTimeout = 5 * time.Second

	// OllamaRequestTimeout bounds a single generate call.
	OllamaRequestTimeout = 60 * time.Second

	// OllamaPoolSize for the HTTP connection pool.
	OllamaPoolSize = 4

	// OllamaMaxRetries for transient generate failures.
	OllamaMaxRetries = 3
)

// FallbackOllamaModels are tried in order if the primary model is not
// installed.
var FallbackOllamaModels = []string{
	"llama3.2",
	"llama3.1",
	"qwen2.5:3b",
	"mistral",
}

// OllamaConfig configures the Ollama keyword extractor.
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the generation model to use
	Model string

	// FallbackModels are tried in order if the primary model is unavailable
	FallbackModels []string

	// Timeout for generate requests (default: 60s)
	Timeout time.Duration

	// ConnectTimeout for the initial health check (default: 5s)
	ConnectTimeout time.Duration

	// MaxRetries for transient failures (default: 3)
	MaxRetries int

	// PoolSize for the HTTP connection pool (default: 4)
	PoolSize int

	// SkipHealthCheck skips the initial availability check (for testing)
	SkipHealthCheck bool
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:           DefaultOllamaHost,
		Model:          DefaultOllamaModel,
		FallbackModels: FallbackOllamaModels,
		Timeout:        OllamaRequestTimeout,
		ConnectTimeout: OllamaConnectTimeout,
		MaxRetries:     OllamaMaxRetries,
		PoolSize:       OllamaPoolSize,
	}
}

// ollamaGenerateRequest is the Ollama /api/generate request.
type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// ollamaGenerateResponse is the Ollama /api/generate response.
type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// ollamaModelListResponse is the Ollama /api/tags response.
type ollamaModelListResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

// ollamaModelInfo describes an installed model.
type ollamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// OllamaExtractor extracts keywords using a local Ollama model.
// The model is prompted for a plain comma-separated keyword list;
// parseKeywords tolerates bulleted and numbered output as well.
type OllamaExtractor struct {
	client    *http.Client
	transport *http.Transport // kept for connection cleanup on Close
	config    OllamaConfig
	modelName string
	breaker   *mcerrors.CircuitBreaker

	mu     sync.Mutex
	closed bool
}

// Verify interface implementation at compile time
var _ Extractor = (*OllamaExtractor)(nil)

// NewOllamaExtractor creates an Ollama-backed extractor. Unless
// SkipHealthCheck is set it verifies the endpoint is reachable and resolves
// the model name against the installed models (falling back per config).
func NewOllamaExtractor(ctx context.Context, cfg OllamaConfig) (*OllamaExtractor, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.FallbackModels == nil {
		cfg.FallbackModels = FallbackOllamaModels
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = OllamaRequestTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = OllamaConnectTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = OllamaMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}

	// Short IdleConnTimeout: extraction runs are short-lived CLI work and
	// connections should be released promptly after interruption.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	// No client-level timeout: per-request contexts carry the deadline so a
	// single slow generate cannot be mistaken for a dead endpoint.
	e := &OllamaExtractor{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		breaker:   mcerrors.NewCircuitBreaker("ollama"),
	}

	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()

		modelName, err := e.findAvailableModel(checkCtx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, fmt.Errorf("failed to connect to Ollama or find model: %w", err)
		}
		e.modelName = modelName
	}

	return e, nil
}

// ExtractKeywords prompts the model for up to maxCount keywords.
// Repeated backend failures trip a circuit breaker; while it is open,
// calls fail fast with a retryable error instead of contacting the host.
func (e *OllamaExtractor) ExtractKeywords(ctx context.Context, text string, maxCount int) ([]string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, fmt.Errorf("extractor is closed")
	}
	e.mu.Unlock()

	if maxCount <= 0 {
		maxCount = DefaultMaxKeywords
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	prompt := buildKeywordPrompt(text, maxCount)

	var raw string
	var lastErr error
	for attempt := 0; attempt <= e.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if !e.breaker.Allow() {
			return nil, mcerrors.New(mcerrors.ErrCodeExtractorUnavailable, "Ollama backend unavailable", mcerrors.ErrCircuitOpen).
				WithDetail("host", e.config.Host).
				WithSuggestion("Check that Ollama is running ('ollama serve')")
		}

		raw, lastErr = e.generate(ctx, prompt)
		if lastErr == nil {
			e.breaker.RecordSuccess()
			break
		}
		e.breaker.RecordFailure()
		if attempt < e.config.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * time.Second):
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("keyword generation failed after %d retries: %w", e.config.MaxRetries, lastErr)
	}

	return parseKeywords(raw, maxCount), nil
}

// generate performs a single /api/generate call.
func (e *OllamaExtractor) generate(ctx context.Context, prompt string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:  e.modelName,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.config.Host + "/api/generate"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Response, nil
}

// listModels gets available models from Ollama.
func (e *OllamaExtractor) listModels(ctx context.Context) ([]ollamaModelInfo, error) {
	url := e.config.Host + "/api/tags"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Models, nil
}

// findAvailableModel resolves the configured model against installed ones,
// matching on full name first, then base name without tag, then fallbacks.
func (e *OllamaExtractor) findAvailableModel(ctx context.Context) (string, error) {
	models, err := e.listModels(ctx)
	if err != nil {
		return "", err
	}

	available := make(map[string]string) // normalized -> actual
	for _, m := range models {
		name := strings.ToLower(m.Name)
		available[name] = m.Name
		base := strings.Split(name, ":")[0]
		if _, exists := available[base]; !exists {
			available[base] = m.Name
		}
	}

	candidates := append([]string{e.config.Model}, e.config.FallbackModels...)
	for _, candidate := range candidates {
		name := strings.ToLower(candidate)
		if actual, ok := available[name]; ok {
			return actual, nil
		}
		base := strings.Split(name, ":")[0]
		if actual, ok := available[base]; ok {
			return actual, nil
		}
	}

	return "", fmt.Errorf("no generation model available (tried %s and %v)", e.config.Model, e.config.FallbackModels)
}

// Name returns the extractor identifier.
func (e *OllamaExtractor) Name() string {
	return "ollama:" + e.modelName
}

// Available checks whether the Ollama endpoint responds. Reports false
// without a network round trip while the circuit breaker is open.
func (e *OllamaExtractor) Available(ctx context.Context) bool {
	if !e.breaker.Allow() {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, e.config.ConnectTimeout)
	defer cancel()

	_, err := e.listModels(checkCtx)
	return err == nil
}

// Close releases pooled connections. Safe to call more than once.
func (e *OllamaExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

// buildKeywordPrompt asks for bare comma-separated keywords. Models still
// sometimes answer with bullets or numbering; parseKeywords handles both.
func buildKeywordPrompt(text string, maxCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract up to %d keywords that best describe the following text. ", maxCount)
	b.WriteString("Reply with only the keywords, comma-separated, no explanations.\n\nText:\n")
	b.WriteString(text)
	return b.String()
}

// parseKeywords turns model output into a clean keyword list: split on
// newlines and commas, strip list markers and surrounding quotes, drop
// empties and duplicates, cap at maxCount.
func parseKeywords(raw string, maxCount int) []string {
	var fields []string
	for _, line := range strings.Split(raw, "\n") {
		fields = append(fields, strings.Split(line, ",")...)
	}

	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, maxCount)
	for _, field := range fields {
		kw := strings.TrimSpace(field)
		kw = strings.TrimLeft(kw, "-*•")
		kw = strings.TrimLeftFunc(kw, func(r rune) bool {
			return unicode.IsDigit(r) || r == '.' || r == ')' || r == ' '
		})
		kw = strings.Trim(kw, `"'`)
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}

		lower := strings.ToLower(kw)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		keywords = append(keywords, kw)
		if len(keywords) >= maxCount {
			break
		}
	}
	return keywords
}
