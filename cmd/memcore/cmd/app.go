package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/juergengeck/memory.core/internal/config"
	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/index"
	"github.com/juergengeck/memory.core/internal/keyword"
	"github.com/juergengeck/memory.core/internal/logging"
	"github.com/juergengeck/memory.core/internal/store"
	"github.com/juergengeck/memory.core/internal/telemetry"
	"github.com/juergengeck/memory.core/internal/topics"
)

// app bundles the collaborators a command needs: effective config, logger,
// subject store, telemetry, and the topic service wired over them.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   store.SubjectStore
	service *topics.Service
	metrics *telemetry.Recorder

	telemetryStore *telemetry.Store
	logCleanup     func()
}

// openApp builds the service stack for one command invocation. Logging goes
// to the log file only, so stdout stays free for command output and for the
// MCP protocol.
func openApp(ctx context.Context) (*app, error) {
	return openAppWithLogging(ctx, logging.DefaultConfig())
}

// openIngestApp is openApp with logging routed to the ingest log file, used
// by the long-running watch and consume commands.
func openIngestApp(ctx context.Context) (*app, error) {
	return openAppWithLogging(ctx, logging.IngestConfig(debugMode))
}

func openAppWithLogging(ctx context.Context, logCfg logging.Config) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: slog.Default()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	logCfg.WriteToStderr = false
	logCfg.Level = cfg.Server.LogLevel
	if debugMode {
		logCfg.Level = "debug"
	}
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		a.logger = logger
		a.logCleanup = cleanup
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	a.store, err = openStore(cfg)
	if err != nil {
		return nil, err
	}

	extractor, err := buildExtractor(ctx, cfg, a.logger)
	if err != nil {
		return nil, err
	}

	if cfg.Telemetry.Enabled {
		ts, err := telemetry.NewStore(cfg.TelemetryPath())
		if err != nil {
			a.logger.Warn("telemetry store unavailable, metrics stay in memory",
				slog.String("error", err.Error()))
		} else {
			a.telemetryStore = ts
		}
		a.metrics = telemetry.NewRecorder(a.telemetryStore)
	}

	opts := []topics.ServiceOption{topics.WithServiceLogger(a.logger)}
	if a.metrics != nil {
		opts = append(opts, topics.WithMetrics(a.metrics))
	}

	a.service, err = topics.NewService(a.store, index.New(), extractor, cfg, opts...)
	if err != nil {
		_ = extractor.Close()
		return nil, err
	}

	ok = true
	return a, nil
}

// Close releases the stack in reverse construction order. The service owns
// the store and the extractor; both are closed through it once it exists.
func (a *app) Close() {
	if a.service != nil {
		if err := a.service.Close(); err != nil {
			a.logger.Warn("failed to close service", slog.String("error", err.Error()))
		}
	} else if a.store != nil {
		_ = a.store.Close()
	}

	if a.metrics != nil {
		_ = a.metrics.Close()
	}
	if a.telemetryStore != nil {
		_ = a.telemetryStore.Close()
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
}

// lockDataDir takes the exclusive data-directory lock held by long-running
// processes (serve, watch, consume). One-shot commands stay lock-free;
// SQLite serializes their writes on its own.
func (a *app) lockDataDir() (func(), error) {
	if a.cfg.Store.Backend == config.BackendMemory {
		return func() {}, nil
	}

	lk := store.NewFileLock(a.cfg.DataDir)
	locked, err := lk.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, mcerrors.New(mcerrors.ErrCodeDataDirLocked,
			fmt.Sprintf("data directory %s is in use", a.cfg.DataDir), nil).
			WithDetail("data_dir", a.cfg.DataDir).
			WithSuggestion("Another memcore process (serve, watch, or consume) already holds this data directory")
	}
	return func() { _ = lk.Unlock() }, nil
}

// loadConfig resolves the effective configuration: an explicit --config file
// when given, otherwise the layered project/user/env lookup.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}

	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	return config.Load(root)
}

// openStore opens the configured subject store backend.
func openStore(cfg *config.Config) (store.SubjectStore, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		return store.NewMemoryStore(), nil
	case config.BackendGit:
		return store.NewGitStore(cfg.StorePath())
	default:
		return store.NewSQLiteStore(cfg.StorePath())
	}
}

// buildExtractor constructs the configured keyword extractor, wrapped in the
// LRU cache when one is configured.
func buildExtractor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (keyword.Extractor, error) {
	var base keyword.Extractor

	switch cfg.Extraction.Extractor {
	case config.ExtractorOllama:
		ex, err := keyword.NewOllamaExtractor(ctx, keyword.OllamaConfig{
			Host:    cfg.Extraction.Ollama.Host,
			Model:   cfg.Extraction.Ollama.Model,
			Timeout: cfg.Extraction.Ollama.RequestTimeout(),
		})
		if err != nil {
			return nil, err
		}
		logger.Debug("ollama extractor ready", slog.String("model", ex.Name()))
		base = ex
	default:
		base = keyword.NewFrequencyExtractor()
	}

	if size := cfg.Extraction.CacheSize; size > 0 {
		return keyword.NewCachedExtractor(base, size), nil
	}
	return base, nil
}
