package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/juergengeck/memory.core/internal/config"
	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/extract"
	"github.com/juergengeck/memory.core/internal/topics"
)

const (
	// DefaultSubject carries record messages when none is configured.
	DefaultSubject = "memcore.records"
	// DefaultBatchSize flushes a scope's buffer once it holds this many records.
	DefaultBatchSize = 32
	// DefaultFlushInterval flushes partially filled buffers on this cadence.
	DefaultFlushInterval = 2 * time.Second
	// DefaultScope is assigned to messages that carry no scope of their own.
	DefaultScope = "broker"
	// DefaultMaxRetries before a record moves to the dead-letter subject.
	DefaultMaxRetries = 3

	retryHeader = "X-Retry-Count"
)

// ErrNilDependency is returned when a required constructor argument is nil.
var ErrNilDependency = errors.New("nil dependency")

// RecordMessage is the JSON payload expected on the record subject.
type RecordMessage struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Scope string `json:"scope,omitempty"`
}

// deadLetter wraps a record that exhausted its retries, or raw bytes that
// never parsed at all.
type deadLetter struct {
	Data    []byte `json:"data"`
	Error   string `json:"error"`
	Retries int    `json:"retries"`
}

// BatchAnalyzer is the slice of the topics service the consumer needs.
type BatchAnalyzer interface {
	AnalyzeBatch(ctx context.Context, scope string, records []extract.Record) (*topics.BatchReport, error)
}

// publisher abstracts the publish side of the connection for testing.
type publisher interface {
	PublishMsg(msg *nats.Msg) error
}

type bufferedRecord struct {
	record  extract.Record
	retries int
}

// Consumer subscribes to a record subject and turns incoming messages into
// extraction batches. Records are buffered per scope and flushed when a
// buffer fills or on the flush interval. A failed batch re-publishes its
// records with an incremented retry header; records that keep failing are
// published to the dead-letter subject instead.
type Consumer struct {
	svc        BatchAnalyzer
	nc         *nats.Conn
	pub        publisher
	subject    string
	queue      string
	dlqSubject string
	maxRetries int
	batchSize  int
	flushEvery time.Duration
	scope      string
	logger     *slog.Logger

	mu      sync.Mutex
	buffers map[string][]bufferedRecord
	sub     *nats.Subscription
	runCtx  context.Context
	stopCh  chan struct{}
	stopped bool
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithBatchSize sets how many records fill a scope's buffer. Values below
// one are ignored.
func WithBatchSize(n int) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithFlushInterval sets the cadence for flushing partial buffers.
func WithFlushInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.flushEvery = d
		}
	}
}

// WithDefaultScope sets the scope for messages that do not name one.
func WithDefaultScope(scope string) ConsumerOption {
	return func(c *Consumer) {
		if scope != "" {
			c.scope = scope
		}
	}
}

// WithConsumerLogger sets the logger. A nil logger is ignored.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Dial connects to the configured NATS server, retrying with backoff so a
// broker that is still starting up does not fail the command outright.
func Dial(ctx context.Context, cfg config.NATSConfig) (*nats.Conn, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	retryCfg := mcerrors.DefaultRetryConfig()
	retryCfg.InitialDelay = 500 * time.Millisecond
	retryCfg.MaxDelay = 4 * time.Second

	return mcerrors.RetryWithResult(ctx, retryCfg, func() (*nats.Conn, error) {
		nc, err := nats.Connect(url)
		if err != nil {
			return nil, mcerrors.New(mcerrors.ErrCodeBrokerUnavailable, fmt.Sprintf("failed to connect to NATS at %s", url), err)
		}
		return nc, nil
	})
}

// NewConsumer creates a consumer over an established NATS connection.
func NewConsumer(svc BatchAnalyzer, nc *nats.Conn, cfg config.NATSConfig, opts ...ConsumerOption) (*Consumer, error) {
	if nc == nil {
		return nil, fmt.Errorf("%w: NATS connection is required", ErrNilDependency)
	}
	c, err := newConsumer(svc, nc, cfg, opts...)
	if err != nil {
		return nil, err
	}
	c.nc = nc
	return c, nil
}

func newConsumer(svc BatchAnalyzer, pub publisher, cfg config.NATSConfig, opts ...ConsumerOption) (*Consumer, error) {
	if svc == nil {
		return nil, fmt.Errorf("%w: batch analyzer is required", ErrNilDependency)
	}

	c := &Consumer{
		svc:        svc,
		pub:        pub,
		subject:    cfg.Subject,
		queue:      cfg.Queue,
		dlqSubject: cfg.DLQSubject,
		maxRetries: cfg.MaxRetries,
		batchSize:  DefaultBatchSize,
		flushEvery: DefaultFlushInterval,
		scope:      DefaultScope,
		logger:     slog.Default(),
		buffers:    make(map[string][]bufferedRecord),
		stopCh:     make(chan struct{}),
	}
	if c.subject == "" {
		c.subject = DefaultSubject
	}
	if c.dlqSubject == "" {
		c.dlqSubject = c.subject + ".dlq"
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxRetries
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start subscribes to the record subject and begins the flush loop.
// It returns immediately; processing happens on NATS callbacks.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	handler := func(msg *nats.Msg) { c.handleMessage(msg) }

	var (
		sub *nats.Subscription
		err error
	)
	if c.queue != "" {
		sub, err = c.nc.QueueSubscribe(c.subject, c.queue, handler)
	} else {
		sub, err = c.nc.Subscribe(c.subject, handler)
	}
	if err != nil {
		return mcerrors.New(mcerrors.ErrCodeBrokerUnavailable, fmt.Sprintf("failed to subscribe to %s", c.subject), err)
	}

	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	c.logger.Info("consuming records",
		slog.String("subject", c.subject),
		slog.String("queue", c.queue),
		slog.Int("batch_size", c.batchSize),
	)

	go c.flushLoop(ctx)
	return nil
}

func (c *Consumer) handleMessage(msg *nats.Msg) {
	var m RecordMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		c.logger.Warn("malformed record message moved to dead-letter subject",
			slog.String("error", err.Error()),
		)
		c.deadLetterRaw(msg.Data, err, 0)
		return
	}
	if strings.TrimSpace(m.Text) == "" {
		c.logger.Debug("skipping record message with empty text", slog.String("id", m.ID))
		return
	}

	scope := m.Scope
	if scope == "" {
		scope = c.scope
	}
	retries := retryCount(msg)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.buffers[scope] = append(c.buffers[scope], bufferedRecord{
		record:  extract.Record{ID: m.ID, Text: m.Text},
		retries: retries,
	})
	full := len(c.buffers[scope]) >= c.batchSize
	ctx := c.runCtx
	c.mu.Unlock()

	if full {
		c.flushScope(ctx, scope)
	}
}

// retryCount reads the retry header; absent or unparseable means zero.
func retryCount(msg *nats.Msg) int {
	if msg.Header == nil {
		return 0
	}
	v := msg.Header.Get(retryHeader)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// flushScope analyzes the buffered records of one scope as a batch.
func (c *Consumer) flushScope(ctx context.Context, scope string) {
	c.mu.Lock()
	batch := c.buffers[scope]
	delete(c.buffers, scope)
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	records := make([]extract.Record, len(batch))
	for i, item := range batch {
		records[i] = item.record
	}

	report, err := c.svc.AnalyzeBatch(ctx, scope, records)
	if err != nil {
		c.logger.Error("batch analysis failed, retrying records",
			slog.String("scope", scope),
			slog.Int("records", len(batch)),
			slog.String("error", err.Error()),
		)
		c.retryBatch(batch, scope, err)
		return
	}

	c.logger.Info("batch analyzed from broker",
		slog.String("scope", scope),
		slog.Int("processed", report.Processed),
		slog.Int("failed", report.Failed),
		slog.Int("created", report.Created),
		slog.Int("merged", report.Merged),
	)
}

// retryBatch re-publishes each record with an incremented retry count, or
// dead-letters it once the count reaches the retry cap.
func (c *Consumer) retryBatch(batch []bufferedRecord, scope string, cause error) {
	for _, item := range batch {
		retries := item.retries + 1

		m := RecordMessage{ID: item.record.ID, Text: item.record.Text, Scope: scope}
		data, err := json.Marshal(m)
		if err != nil {
			c.logger.Error("failed to marshal retry message", slog.String("error", err.Error()))
			continue
		}

		if retries >= c.maxRetries {
			c.deadLetterRaw(data, mcerrors.New(mcerrors.ErrCodeIngestFailed,
				fmt.Sprintf("batch analysis failed after %d attempts: %v", retries, cause), cause), retries)
			continue
		}

		retry := nats.NewMsg(c.subject)
		retry.Data = data
		retry.Header.Set(retryHeader, strconv.Itoa(retries))
		if err := c.pub.PublishMsg(retry); err != nil {
			c.logger.Error("failed to republish record for retry",
				slog.String("id", item.record.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (c *Consumer) deadLetterRaw(data []byte, cause error, retries int) {
	payload, err := json.Marshal(deadLetter{Data: data, Error: cause.Error(), Retries: retries})
	if err != nil {
		c.logger.Error("failed to marshal dead-letter payload", slog.String("error", err.Error()))
		return
	}

	msg := nats.NewMsg(c.dlqSubject)
	msg.Data = payload
	if err := c.pub.PublishMsg(msg); err != nil {
		c.logger.Error("failed to publish to dead-letter subject",
			slog.String("subject", c.dlqSubject),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.flushAll(ctx)
		}
	}
}

// flushAll flushes every scope with buffered records.
func (c *Consumer) flushAll(ctx context.Context) {
	c.mu.Lock()
	scopes := make([]string, 0, len(c.buffers))
	for scope := range c.buffers {
		scopes = append(scopes, scope)
	}
	c.mu.Unlock()

	for _, scope := range scopes {
		c.flushScope(ctx, scope)
	}
}

// Close unsubscribes, stops the flush loop, and analyzes whatever is still
// buffered. Safe to call multiple times.
func (c *Consumer) Close() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	sub := c.sub
	close(c.stopCh)
	c.mu.Unlock()

	var errs []error
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
		}
	}
	c.flushAll(context.Background())

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
