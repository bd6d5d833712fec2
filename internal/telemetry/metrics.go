// Package telemetry records query and batch metrics for diagnostics.
// All data stays in a local SQLite database - nothing is reported anywhere.
package telemetry

import (
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Events
// =============================================================================

// QueryEvent describes one similarity query for telemetry recording.
// The keywords themselves are never recorded, only their count.
type QueryEvent struct {
	Kind         string // "search" or "similar"
	KeywordCount int
	ResultCount  int
	Latency      time.Duration
	Timestamp    time.Time
}

// IsZeroResult reports whether the query returned nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// BatchEvent describes one completed extraction batch.
type BatchEvent struct {
	Scope     string        `json:"scope"`
	Records   int           `json:"records"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Created   int           `json:"created"`
	Merged    int           `json:"merged"`
	Latency   time.Duration `json:"latency"`
	Timestamp time.Time     `json:"timestamp"`
}

// =============================================================================
// Latency Buckets
// =============================================================================

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// =============================================================================
// Circular Buffer
// =============================================================================

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // next write position
	size     int // current number of items
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity

	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in FIFO order, oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear removes all items from the buffer.
func (b *CircularBuffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.head = 0
	b.size = 0
}

// =============================================================================
// Snapshot
// =============================================================================

// Snapshot is an immutable view of the in-memory metrics since process
// start. Historical totals live in the Store.
type Snapshot struct {
	QueryCounts         map[string]int64        `json:"query_counts"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	Batches             int64                   `json:"batches"`
	RecentBatches       []BatchEvent            `json:"recent_batches"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// =============================================================================
// Recorder
// =============================================================================

// RecorderConfig configures the metrics recorder.
type RecorderConfig struct {
	FlushInterval         time.Duration // aggregate flush cadence (0 = no auto-flush)
	RecentBatchesCapacity int           // in-memory recent batch buffer size
}

// DefaultRecorderConfig returns the defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		FlushInterval:         60 * time.Second,
		RecentBatchesCapacity: 20,
	}
}

// Recorder aggregates query metrics in memory and flushes them to the
// store periodically; batch events are written through immediately.
// Safe for concurrent use. A recording failure is never surfaced to the
// caller: telemetry degrades, the operation does not.
type Recorder struct {
	mu sync.Mutex

	queryCounts     map[string]int64
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	batchCount      int64
	recentBatches   *CircularBuffer[BatchEvent]
	startTime       time.Time

	// unflushed deltas; cleared after each successful flush
	pendingQueries   map[string]int64
	pendingZeros     map[string]int64
	pendingLatencies map[LatencyBucket]int64

	store       *Store
	config      RecorderConfig
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewRecorder creates a recorder with default configuration. A nil store
// keeps metrics in memory only.
func NewRecorder(store *Store) *Recorder {
	return NewRecorderWithConfig(store, DefaultRecorderConfig())
}

// NewRecorderWithConfig creates a recorder with custom configuration.
func NewRecorderWithConfig(store *Store, cfg RecorderConfig) *Recorder {
	if cfg.RecentBatchesCapacity <= 0 {
		cfg.RecentBatchesCapacity = 20
	}

	r := &Recorder{
		queryCounts:      make(map[string]int64),
		latencies:        make(map[LatencyBucket]int64),
		recentBatches:    NewCircularBuffer[BatchEvent](cfg.RecentBatchesCapacity),
		startTime:        time.Now(),
		pendingQueries:   make(map[string]int64),
		pendingZeros:     make(map[string]int64),
		pendingLatencies: make(map[LatencyBucket]int64),
		store:            store,
		config:           cfg,
		stopCh:           make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		r.flushTicker = time.NewTicker(cfg.FlushInterval)
		go r.flushLoop()
	}

	return r
}

func (r *Recorder) flushLoop() {
	for {
		select {
		case <-r.flushTicker.C:
			if err := r.Flush(); err != nil {
				slog.Debug("telemetry flush failed", slog.String("error", err.Error()))
			}
		case <-r.stopCh:
			return
		}
	}
}

// RecordQuery captures one query event. Thread-safe and non-blocking.
func (r *Recorder) RecordQuery(event QueryEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	kind := event.Kind
	if kind == "" {
		kind = "search"
	}

	r.queryCounts[kind]++
	r.totalQueries++
	r.pendingQueries[kind]++

	if event.IsZeroResult() {
		r.zeroResultCount++
		r.pendingZeros[kind]++
	}

	bucket := LatencyToBucket(event.Latency)
	r.latencies[bucket]++
	r.pendingLatencies[bucket]++
}

// RecordBatch captures one batch event and writes it through to the store.
func (r *Recorder) RecordBatch(event BatchEvent) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.batchCount++
	r.recentBatches.Add(event)
	store := r.store
	r.mu.Unlock()

	if store == nil {
		return
	}
	if err := store.AddBatch(event); err != nil {
		slog.Debug("failed to persist batch telemetry", slog.String("error", err.Error()))
	}
}

// Snapshot returns the in-memory metrics for reporting.
func (r *Recorder) Snapshot() *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	queryCounts := make(map[string]int64, len(r.queryCounts))
	for k, v := range r.queryCounts {
		queryCounts[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(r.latencies))
	for k, v := range r.latencies {
		latencies[k] = v
	}

	return &Snapshot{
		QueryCounts:         queryCounts,
		TotalQueries:        r.totalQueries,
		ZeroResultCount:     r.zeroResultCount,
		LatencyDistribution: latencies,
		Batches:             r.batchCount,
		RecentBatches:       r.recentBatches.Items(),
		Since:               r.startTime,
	}
}

// Flush persists the unflushed query aggregates. Safe to call with no
// store configured. The lock is held across the store write; flushes are
// infrequent and the write is small.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushLocked()
}

func (r *Recorder) flushLocked() error {
	if r.store == nil {
		return nil
	}
	if len(r.pendingQueries) == 0 && len(r.pendingLatencies) == 0 {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	if err := r.store.AddQueryCounts(date, r.pendingQueries, r.pendingZeros); err != nil {
		return err
	}
	if err := r.store.AddLatencyCounts(date, r.pendingLatencies); err != nil {
		return err
	}

	r.pendingQueries = make(map[string]int64)
	r.pendingZeros = make(map[string]int64)
	r.pendingLatencies = make(map[LatencyBucket]int64)
	return nil
}

// Close stops the flush loop and performs a final flush.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ticker := r.flushTicker
	r.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(r.stopCh)
	}

	return r.Flush()
}
