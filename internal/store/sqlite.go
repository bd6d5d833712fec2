package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

// SQLiteStore is the default persistent SubjectStore. WAL mode allows a
// reader (e.g. the MCP server) to coexist with a writing extraction run in
// another process.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ SubjectStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the subject database at path.
// An empty path opens an in-memory database for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
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
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer prevents lock contention; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite; DSN params
	// are not honored.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStore{
		db:   db,
		path: path,
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the subjects table and the revision audit table.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Schema version tracking
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- Authoritative subject records; keywords and metadata are JSON
	CREATE TABLE IF NOT EXISTS subjects (
		id          TEXT PRIMARY KEY,
		label       TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		keywords    TEXT NOT NULL DEFAULT '[]',
		metadata    TEXT NOT NULL DEFAULT '{}',
		version     INTEGER NOT NULL DEFAULT 1,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_subjects_label ON subjects(label);

	-- State snapshot per mutation; never read on the hot path
	CREATE TABLE IF NOT EXISTS subject_revisions (
		seq         INTEGER PRIMARY KEY AUTOINCREMENT,
		subject_id  TEXT NOT NULL,
		version     INTEGER NOT NULL,
		label       TEXT NOT NULL,
		keywords    TEXT NOT NULL,
		change      TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_revisions_subject ON subject_revisions(subject_id);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// List returns the ids of all stored subjects, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM subjects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get returns the subject under id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, label, description, keywords, metadata, version, created_at, updated_at
		 FROM subjects WHERE id = ?`, id)
	return scanSubject(row)
}

// Create stores a new subject under a fresh uuid and records a create
// revision in the same transaction.
func (s *SQLiteStore) Create(ctx context.Context, fields SubjectFields) (*Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	fields = fields.sanitize()
	now := time.Now().UTC()
	subject := &Subject{
		ID:          uuid.NewString(),
		Label:       fields.Label,
		Description: fields.Description,
		Keywords:    fields.Keywords,
		Metadata:    fields.Metadata,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	keywordsJSON, metadataJSON, err := marshalSubjectJSON(subject)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO subjects (id, label, description, keywords, metadata, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		subject.ID, subject.Label, subject.Description, keywordsJSON, metadataJSON,
		subject.Version, formatTime(subject.CreatedAt), formatTime(subject.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert subject: %w", err)
	}

	if err := insertRevision(ctx, tx, subject, ChangeCreate, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return subject.Clone(), nil
}

// Update replaces the mutable fields of an existing subject, bumping its
// version and recording an update revision.
func (s *SQLiteStore) Update(ctx context.Context, id string, fields SubjectFields) (*Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT id, label, description, keywords, metadata, version, created_at, updated_at
		 FROM subjects WHERE id = ?`, id)
	existing, err := scanSubject(row)
	if err != nil {
		return nil, err
	}

	fields = fields.sanitize()
	now := time.Now().UTC()
	updated := &Subject{
		ID:          existing.ID,
		Label:       fields.Label,
		Description: fields.Description,
		Keywords:    fields.Keywords,
		Metadata:    fields.Metadata,
		Version:     existing.Version + 1,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   now,
	}

	keywordsJSON, metadataJSON, err := marshalSubjectJSON(updated)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE subjects SET label = ?, description = ?, keywords = ?, metadata = ?, version = ?, updated_at = ?
		 WHERE id = ?`,
		updated.Label, updated.Description, keywordsJSON, metadataJSON,
		updated.Version, formatTime(updated.UpdatedAt), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update subject: %w", err)
	}

	if err := insertRevision(ctx, tx, updated, ChangeUpdate, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return updated.Clone(), nil
}

// Delete removes the subject under id, recording a delete revision with the
// final state. Reports false for unknown ids.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT id, label, description, keywords, metadata, version, created_at, updated_at
		 FROM subjects WHERE id = ?`, id)
	existing, err := scanSubject(row)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM subjects WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete subject: %w", err)
	}

	if err := insertRevision(ctx, tx, existing, ChangeDelete, time.Now().UTC()); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit: %w", err)
	}
	return true, nil
}

// Revisions returns the audit history for a subject, oldest first.
func (s *SQLiteStore) Revisions(ctx context.Context, subjectID string) ([]Revision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT subject_id, version, label, keywords, change, recorded_at
		 FROM subject_revisions WHERE subject_id = ? ORDER BY seq`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	var revisions []Revision
	for rows.Next() {
		var (
			rev          Revision
			keywordsJSON string
			recordedAt   string
		)
		if err := rows.Scan(&rev.SubjectID, &rev.Version, &rev.Label, &keywordsJSON, &rev.Change, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &rev.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode revision keywords: %w", err)
		}
		rev.RecordedAt, err = parseTime(recordedAt)
		if err != nil {
			return nil, err
		}
		revisions = append(revisions, rev)
	}
	return revisions, rows.Err()
}

// Close closes the database. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// helpers

// scanner abstracts *sql.Row and *sql.Rows for scanSubject.
type scanner interface {
	Scan(dest ...any) error
}

func scanSubject(row scanner) (*Subject, error) {
	var (
		subject      Subject
		keywordsJSON string
		metadataJSON string
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&subject.ID, &subject.Label, &subject.Description,
		&keywordsJSON, &metadataJSON, &subject.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan subject: %w", err)
	}

	if err := json.Unmarshal([]byte(keywordsJSON), &subject.Keywords); err != nil {
		return nil, fmt.Errorf("failed to decode keywords: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &subject.Metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if subject.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if subject.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &subject, nil
}

func insertRevision(ctx context.Context, tx *sql.Tx, subject *Subject, change ChangeKind, at time.Time) error {
	keywordsJSON, err := json.Marshal(subject.Keywords)
	if err != nil {
		return fmt.Errorf("failed to encode revision keywords: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO subject_revisions (subject_id, version, label, keywords, change, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		subject.ID, subject.Version, subject.Label, string(keywordsJSON), string(change), formatTime(at))
	if err != nil {
		return fmt.Errorf("failed to insert revision: %w", err)
	}
	return nil
}

func marshalSubjectJSON(subject *Subject) (keywords, metadata string, err error) {
	kw := subject.Keywords
	if kw == nil {
		kw = []string{}
	}
	kwJSON, err := json.Marshal(kw)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode keywords: %w", err)
	}

	md := subject.Metadata
	if md == nil {
		md = map[string]string{}
	}
	mdJSON, err := json.Marshal(md)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	return string(kwJSON), string(mdJSON), nil
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
