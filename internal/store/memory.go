package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory SubjectStore. It backs tests and ephemeral
// runs; nothing survives process exit.
type MemoryStore struct {
	mu       sync.RWMutex
	subjects map[string]*Subject
	closed   bool
}

// Verify interface implementation at compile time
var _ SubjectStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subjects: make(map[string]*Subject),
	}
}

// List returns the ids of all stored subjects in unspecified order.
func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	ids := make([]string, 0, len(m.subjects))
	for id := range m.subjects {
		ids = append(ids, id)
	}
	return ids, nil
}

// Get returns the subject under id, or ErrNotFound.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	subject, ok := m.subjects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return subject.Clone(), nil
}

// Create stores a new subject under a fresh uuid.
func (m *MemoryStore) Create(ctx context.Context, fields SubjectFields) (*Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
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
	m.subjects[subject.ID] = subject
	return subject.Clone(), nil
}

// Update replaces the mutable fields of an existing subject.
func (m *MemoryStore) Update(ctx context.Context, id string, fields SubjectFields) (*Subject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}

	existing, ok := m.subjects[id]
	if !ok {
		return nil, ErrNotFound
	}

	fields = fields.sanitize()
	updated := &Subject{
		ID:          existing.ID,
		Label:       fields.Label,
		Description: fields.Description,
		Keywords:    fields.Keywords,
		Metadata:    fields.Metadata,
		Version:     existing.Version + 1,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   time.Now().UTC(),
	}
	m.subjects[id] = updated
	return updated.Clone(), nil
}

// Delete removes the subject under id, reporting whether it existed.
func (m *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrClosed
	}

	if _, ok := m.subjects[id]; !ok {
		return false, nil
	}
	delete(m.subjects, id)
	return true, nil
}

// Close marks the store closed; subsequent calls return ErrClosed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
