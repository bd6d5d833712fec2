package telemetry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// maxBatchRows caps the batch_runs table; older runs are trimmed on insert.
const maxBatchRows = 200

// Store persists aggregated telemetry in its own SQLite database, kept
// separate from the subject database so telemetry can be wiped or
// disabled without touching authoritative data.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens or creates the telemetry database at path.
// An empty path opens an in-memory database for testing.
func NewStore(path string) (*Store, error) {
	dsn := path
	if path == "" {
		dsn = ":memory:"
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize telemetry schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	-- Daily query counts per kind, with zero-result tally
	CREATE TABLE IF NOT EXISTS query_stats (
		date         TEXT NOT NULL,
		kind         TEXT NOT NULL,
		count        INTEGER NOT NULL DEFAULT 0,
		zero_results INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, kind)
	);

	-- Daily latency histogram (buckets: <10ms, 10-50ms, 50-100ms, 100-500ms, >=500ms)
	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date   TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count  INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);

	-- Recent extraction batch runs (trimmed to the newest rows on insert)
	CREATE TABLE IF NOT EXISTS batch_runs (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		scope      TEXT NOT NULL,
		records    INTEGER NOT NULL,
		processed  INTEGER NOT NULL,
		failed     INTEGER NOT NULL,
		created    INTEGER NOT NULL,
		merged     INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		run_at     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_batch_runs_run_at ON batch_runs(run_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// AddQueryCounts adds per-kind query and zero-result deltas for a date.
// Counts accumulate across calls via upsert.
func (s *Store) AddQueryCounts(date string, counts, zeroResults map[string]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_stats (date, kind, count, zero_results)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(date, kind) DO UPDATE SET
			count = count + excluded.count,
			zero_results = zero_results + excluded.zero_results
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for kind, count := range counts {
		if _, err := stmt.Exec(date, kind, count, zeroResults[kind]); err != nil {
			return fmt.Errorf("insert query count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// QueryTotals returns per-kind query and zero-result totals for a date
// range (inclusive, dates formatted as 2006-01-02).
func (s *Store) QueryTotals(from, to string) (counts, zeroResults map[string]int64, err error) {
	rows, err := s.db.Query(`
		SELECT kind, SUM(count), SUM(zero_results)
		FROM query_stats
		WHERE date >= ? AND date <= ?
		GROUP BY kind
	`, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("query totals: %w", err)
	}
	defer rows.Close()

	counts = make(map[string]int64)
	zeroResults = make(map[string]int64)
	for rows.Next() {
		var kind string
		var count, zeros int64
		if err := rows.Scan(&kind, &count, &zeros); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		counts[kind] = count
		zeroResults[kind] = zeros
	}
	return counts, zeroResults, rows.Err()
}

// AddLatencyCounts adds latency histogram deltas for a date.
func (s *Store) AddLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_latency_stats (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for bucket, count := range counts {
		if _, err := stmt.Exec(date, string(bucket), count); err != nil {
			return fmt.Errorf("insert latency count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LatencyTotals returns the latency distribution for a date range.
func (s *Store) LatencyTotals(from, to string) (map[LatencyBucket]int64, error) {
	rows, err := s.db.Query(`
		SELECT bucket, SUM(count)
		FROM query_latency_stats
		WHERE date >= ? AND date <= ?
		GROUP BY bucket
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query latency totals: %w", err)
	}
	defer rows.Close()

	counts := make(map[LatencyBucket]int64)
	for rows.Next() {
		var bucket string
		var count int64
		if err := rows.Scan(&bucket, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[LatencyBucket(bucket)] = count
	}
	return counts, rows.Err()
}

// AddBatch records an extraction batch run and trims old rows.
func (s *Store) AddBatch(event BatchEvent) error {
	runAt := event.Timestamp
	if runAt.IsZero() {
		runAt = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO batch_runs (scope, records, processed, failed, created, merged, latency_ms, run_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, event.Scope, event.Records, event.Processed, event.Failed,
		event.Created, event.Merged, event.Latency.Milliseconds(), formatTime(runAt))
	if err != nil {
		return fmt.Errorf("insert batch run: %w", err)
	}

	_, err = s.db.Exec(`
		DELETE FROM batch_runs
		WHERE id NOT IN (
			SELECT id FROM batch_runs
			ORDER BY id DESC
			LIMIT ?
		)
	`, maxBatchRows)
	if err != nil {
		return fmt.Errorf("trim batch runs: %w", err)
	}

	return nil
}

// RecentBatches returns the most recent batch runs, newest first.
func (s *Store) RecentBatches(limit int) ([]BatchEvent, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`
		SELECT scope, records, processed, failed, created, merged, latency_ms, run_at
		FROM batch_runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batch runs: %w", err)
	}
	defer rows.Close()

	var batches []BatchEvent
	for rows.Next() {
		var ev BatchEvent
		var latencyMS int64
		var runAt string
		if err := rows.Scan(&ev.Scope, &ev.Records, &ev.Processed, &ev.Failed,
			&ev.Created, &ev.Merged, &latencyMS, &runAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		ev.Latency = time.Duration(latencyMS) * time.Millisecond
		ts, err := parseTime(runAt)
		if err != nil {
			return nil, err
		}
		ev.Timestamp = ts
		batches = append(batches, ev)
	}
	return batches, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
