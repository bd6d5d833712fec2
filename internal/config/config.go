// Package config loads and validates memcore configuration.
//
// Configuration is layered, later layers overriding earlier ones:
//
//  1. Hardcoded defaults (DefaultConfig)
//  2. User config (~/.config/memcore/config.yaml)
//  3. Project config (.memcore.yaml in the working directory)
//  4. MEMCORE_* environment variables
//
// YAML files are unmarshaled directly into the default-initialized struct,
// so absent fields keep their defaults and explicit zero values (for example
// `telemetry: {enabled: false}`) take effect.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	mcerrors "github.com/juergengeck/memory.core/internal/errors"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendGit    = "git"
)

// Extractor implementations.
const (
	ExtractorFrequency = "frequency"
	ExtractorOllama    = "ollama"
)

// Config is the complete memcore configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Extraction ExtractionConfig `yaml:"extraction" json:"extraction"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
}

// StoreConfig selects and locates the subject store backend.
type StoreConfig struct {
	// Backend is one of "sqlite" (default), "git", or "memory".
	Backend string `yaml:"backend" json:"backend"`

	// Path overrides the backend's default location under DataDir:
	// a database file for sqlite, a repository directory for git.
	// Ignored by the memory backend.
	Path string `yaml:"path" json:"path"`
}

// ExtractionConfig configures the subject extraction pipeline.
type ExtractionConfig struct {
	// Extractor is "frequency" (default, no network) or "ollama".
	Extractor string `yaml:"extractor" json:"extractor"`

	// MaxKeywords per record (default: 10).
	MaxKeywords int `yaml:"max_keywords" json:"max_keywords"`

	// MinConfidence below which candidates are dropped (default: 0.5).
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// Scopes restricts extraction to the named scopes. Empty means every
	// scope is enabled.
	Scopes []string `yaml:"scopes" json:"scopes"`

	// Disabled lists scopes that are always rejected, even when listed in
	// Scopes.
	Disabled []string `yaml:"disabled" json:"disabled"`

	// CacheSize is the number of extraction results kept by the LRU cache
	// in front of the extractor. 0 disables caching.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	Ollama OllamaConfig `yaml:"ollama" json:"ollama"`
}

// OllamaConfig configures the ollama extractor backend.
type OllamaConfig struct {
	// Host is the Ollama API endpoint. Empty uses http://localhost:11434.
	Host string `yaml:"host" json:"host"`

	// Model is the generation model. Empty uses the extractor default.
	Model string `yaml:"model" json:"model"`

	// Timeout per generate request as a duration string (default: "60s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// IndexConfig tunes the similarity index.
type IndexConfig struct {
	// DefaultLimit is the result cap applied when a query passes limit <= 0.
	DefaultLimit int `yaml:"default_limit" json:"default_limit"`

	// RebuildParallelism bounds concurrent subject loads during a rebuild.
	RebuildParallelism int `yaml:"rebuild_parallelism" json:"rebuild_parallelism"`
}

// IngestConfig configures the spool watcher and the broker consumer.
type IngestConfig struct {
	// SpoolDir is the directory watched for record files. Empty disables
	// the watcher unless a directory is passed on the command line.
	SpoolDir string `yaml:"spool_dir" json:"spool_dir"`

	// Debounce is the quiet period before a changed spool file is
	// processed, as a duration string (default: "500ms").
	Debounce string `yaml:"debounce" json:"debounce"`

	NATS NATSConfig `yaml:"nats" json:"nats"`
}

// NATSConfig configures the record consumer.
type NATSConfig struct {
	// URL of the NATS server. Empty uses nats://127.0.0.1:4222.
	URL string `yaml:"url" json:"url"`

	// Subject carrying record messages.
	Subject string `yaml:"subject" json:"subject"`

	// Queue group for load-balanced consumption.
	Queue string `yaml:"queue" json:"queue"`

	// DLQSubject receives messages that exhausted their retries.
	DLQSubject string `yaml:"dlq_subject" json:"dlq_subject"`

	// MaxRetries before a message is moved to the DLQ subject.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// TelemetryConfig configures query/batch metrics recording.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path overrides the default telemetry database under DataDir.
	Path string `yaml:"path" json:"path"`
}

// DefaultConfig returns the configuration used when no file and no
// environment overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: DefaultDataDir(),
		Store: StoreConfig{
			Backend: BackendSQLite,
		},
		Extraction: ExtractionConfig{
			Extractor:     ExtractorFrequency,
			MaxKeywords:   10,
			MinConfidence: 0.5,
			CacheSize:     1000,
			Ollama: OllamaConfig{
				Timeout: "60s",
			},
		},
		Index: IndexConfig{
			DefaultLimit:       10,
			RebuildParallelism: 8,
		},
		Ingest: IngestConfig{
			Debounce: "500ms",
			NATS: NATSConfig{
				Subject:    "memcore.records",
				Queue:      "memcore",
				DLQSubject: "memcore.records.dlq",
				MaxRetries: 3,
			},
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
		},
	}
}

// DefaultDataDir returns ~/.memcore, falling back to a temp path when the
// home directory cannot be resolved.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".memcore")
	}
	return filepath.Join(home, ".memcore")
}

// UserConfigPath returns the user/global configuration file path following
// the XDG base directory convention:
//   - $XDG_CONFIG_HOME/memcore/config.yaml when XDG_CONFIG_HOME is set
//   - ~/.config/memcore/config.yaml otherwise
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "memcore", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "memcore", "config.yaml")
	}
	return filepath.Join(home, ".config", "memcore", "config.yaml")
}

// UserConfigDir returns the directory containing the user configuration.
func UserConfigDir() string {
	return filepath.Dir(UserConfigPath())
}

// UserConfigExists reports whether the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(UserConfigPath())
}

// Load builds the effective configuration for a project directory. The user
// config and the project's .memcore.yaml (or .yml) are both optional; the
// result always validates before it is returned.
func Load(dir string) (*Config, error) {
	cfg := DefaultConfig()

	if p := UserConfigPath(); fileExists(p) {
		if err := cfg.loadYAML(p); err != nil {
			return nil, err
		}
	}

	for _, name := range []string{".memcore.yaml", ".memcore.yml"} {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			if err := cfg.loadYAML(p); err != nil {
				return nil, err
			}
			break
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads configuration from an explicit file path on top of the
// defaults. Unlike Load, a missing file is an error.
func LoadFile(path string) (*Config, error) {
	if !fileExists(path) {
		return nil, mcerrors.New(mcerrors.ErrCodeConfigNotFound,
			fmt.Sprintf("config file not found: %s", path), nil).
			WithDetail("path", path).
			WithSuggestion("Run 'memcore config init' to create one")
	}

	cfg := DefaultConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load for callers that treat configuration as optional:
// any load or validation error falls back to defaults plus environment
// overrides.
func LoadOrDefault(dir string) *Config {
	cfg, err := Load(dir)
	if err != nil {
		cfg = DefaultConfig()
		cfg.applyEnvOverrides()
	}
	return cfg
}

// loadYAML unmarshals a file into c in place.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return mcerrors.New(mcerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to read config file %s", path), err).
			WithDetail("path", path)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return mcerrors.New(mcerrors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err).
			WithDetail("path", path).
			WithSuggestion("Check the YAML syntax")
	}
	return nil
}

// applyEnvOverrides applies MEMCORE_* environment variables. They take
// precedence over every file layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEMCORE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("MEMCORE_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("MEMCORE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("MEMCORE_EXTRACTOR"); v != "" {
		c.Extraction.Extractor = v
	}
	if v := os.Getenv("MEMCORE_MAX_KEYWORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Extraction.MaxKeywords = n
		}
	}
	if v := os.Getenv("MEMCORE_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && f >= 0 && f <= 1 {
			c.Extraction.MinConfidence = f
		}
	}
	if v := os.Getenv("MEMCORE_OLLAMA_HOST"); v != "" {
		c.Extraction.Ollama.Host = v
	}
	if v := os.Getenv("MEMCORE_OLLAMA_MODEL"); v != "" {
		c.Extraction.Ollama.Model = v
	}
	if v := os.Getenv("MEMCORE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("MEMCORE_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("MEMCORE_SPOOL_DIR"); v != "" {
		c.Ingest.SpoolDir = v
	}
	if v := os.Getenv("MEMCORE_NATS_URL"); v != "" {
		c.Ingest.NATS.URL = v
	}
	if v := os.Getenv("MEMCORE_NATS_SUBJECT"); v != "" {
		c.Ingest.NATS.Subject = v
	}
	if v := os.Getenv("MEMCORE_TELEMETRY"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
}

// Enabled reports whether an extraction scope may run. The Disabled list
// always wins; an empty Scopes list enables everything else.
func (e ExtractionConfig) Enabled(scope string) bool {
	scope = strings.TrimSpace(scope)

	for _, d := range e.Disabled {
		if strings.EqualFold(strings.TrimSpace(d), scope) {
			return false
		}
	}

	if len(e.Scopes) == 0 {
		return true
	}
	for _, s := range e.Scopes {
		if strings.EqualFold(strings.TrimSpace(s), scope) {
			return true
		}
	}
	return false
}

// StorePath resolves the subject store location for the configured backend.
// Empty for the memory backend.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	switch c.Store.Backend {
	case BackendSQLite:
		return filepath.Join(c.DataDir, "subjects.db")
	case BackendGit:
		return filepath.Join(c.DataDir, "subjects")
	default:
		return ""
	}
}

// TelemetryPath resolves the telemetry database location.
func (c *Config) TelemetryPath() string {
	if c.Telemetry.Path != "" {
		return c.Telemetry.Path
	}
	return filepath.Join(c.DataDir, "telemetry.db")
}

// DebounceInterval parses the spool debounce duration, falling back to
// 500ms on empty or invalid values.
func (i IngestConfig) DebounceInterval() time.Duration {
	if d, err := time.ParseDuration(i.Debounce); err == nil && d > 0 {
		return d
	}
	return 500 * time.Millisecond
}

// RequestTimeout parses the Ollama request timeout, falling back to 60s.
func (o OllamaConfig) RequestTimeout() time.Duration {
	if d, err := time.ParseDuration(o.Timeout); err == nil && d > 0 {
		return d
	}
	return 60 * time.Second
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	invalid := func(msg string) error {
		return mcerrors.New(mcerrors.ErrCodeConfigInvalid, msg, nil)
	}

	switch c.Store.Backend {
	case BackendMemory, BackendSQLite, BackendGit:
	default:
		return invalid(fmt.Sprintf("store.backend must be %q, %q, or %q, got %q",
			BackendMemory, BackendSQLite, BackendGit, c.Store.Backend))
	}

	switch c.Extraction.Extractor {
	case ExtractorFrequency, ExtractorOllama:
	default:
		return invalid(fmt.Sprintf("extraction.extractor must be %q or %q, got %q",
			ExtractorFrequency, ExtractorOllama, c.Extraction.Extractor))
	}

	if c.Extraction.MaxKeywords < 0 {
		return invalid(fmt.Sprintf("extraction.max_keywords must be non-negative, got %d", c.Extraction.MaxKeywords))
	}
	if c.Extraction.MinConfidence < 0 || c.Extraction.MinConfidence > 1 {
		return invalid(fmt.Sprintf("extraction.min_confidence must be between 0 and 1, got %g", c.Extraction.MinConfidence))
	}
	if c.Extraction.CacheSize < 0 {
		return invalid(fmt.Sprintf("extraction.cache_size must be non-negative, got %d", c.Extraction.CacheSize))
	}

	if c.Index.DefaultLimit < 0 {
		return invalid(fmt.Sprintf("index.default_limit must be non-negative, got %d", c.Index.DefaultLimit))
	}
	if c.Index.RebuildParallelism < 0 {
		return invalid(fmt.Sprintf("index.rebuild_parallelism must be non-negative, got %d", c.Index.RebuildParallelism))
	}

	if c.Ingest.Debounce != "" {
		if _, err := time.ParseDuration(c.Ingest.Debounce); err != nil {
			return invalid(fmt.Sprintf("ingest.debounce is not a duration: %q", c.Ingest.Debounce))
		}
	}
	if c.Ingest.NATS.MaxRetries < 0 {
		return invalid(fmt.Sprintf("ingest.nats.max_retries must be non-negative, got %d", c.Ingest.NATS.MaxRetries))
	}

	if !strings.EqualFold(c.Server.Transport, "stdio") {
		return invalid(fmt.Sprintf("server.transport must be \"stdio\", got %q", c.Server.Transport))
	}

	switch strings.ToLower(c.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return invalid(fmt.Sprintf("server.log_level must be debug, info, warn, or error, got %q", c.Server.LogLevel))
	}

	return nil
}

// WriteYAML writes the configuration to path, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// .memcore.yaml/.yml file. When neither is found it returns startDir itself.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".memcore.yaml")) ||
			fileExists(filepath.Join(currentDir, ".memcore.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
