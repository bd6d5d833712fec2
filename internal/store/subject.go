// Package store provides authoritative persistence for subjects behind the
// SubjectStore interface, with in-memory, SQLite, and git-backed
// implementations. The similarity index is always rebuildable from a store;
// stores never talk to the index directly.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Sentinel errors returned by SubjectStore implementations.
var (
	// ErrNotFound is returned when no subject exists under the requested id.
	ErrNotFound = errors.New("subject not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Subject is a deduplicated topic extracted from source text: a stable
// identifier, a human-readable label, an unordered keyword set, and
// free-form string metadata. Version starts at 1 and increments on every
// update; merges are performed by the owning service, never silently by a
// store.
type Subject struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	Description string            `json:"description,omitempty"`
	Keywords    []string          `json:"keywords"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Version     int               `json:"version"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate persisted state through a returned pointer.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	out := *s
	if s.Keywords != nil {
		out.Keywords = make([]string, len(s.Keywords))
		copy(out.Keywords, s.Keywords)
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// SubjectFields carries the mutable fields for Create and Update. Update
// replaces all of them; additive merge semantics belong to the caller.
type SubjectFields struct {
	Label       string            `json:"label"`
	Description string            `json:"description,omitempty"`
	Keywords    []string          `json:"keywords"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// sanitize trims the label and drops empty and exactly-duplicated keywords,
// preserving order. Case-insensitive keyword merging is a service concern.
func (f SubjectFields) sanitize() SubjectFields {
	f.Label = strings.TrimSpace(f.Label)

	if len(f.Keywords) > 0 {
		seen := make(map[string]struct{}, len(f.Keywords))
		keywords := make([]string, 0, len(f.Keywords))
		for _, kw := range f.Keywords {
			kw = strings.TrimSpace(kw)
			if kw == "" {
				continue
			}
			if _, dup := seen[kw]; dup {
				continue
			}
			seen[kw] = struct{}{}
			keywords = append(keywords, kw)
		}
		f.Keywords = keywords
	}
	return f
}

// SubjectStore is the authoritative persistence boundary for subjects.
// Get returns ErrNotFound for unknown ids; Delete reports false instead.
// Implementations must be safe for concurrent use.
type SubjectStore interface {
	// List returns the ids of all stored subjects.
	List(ctx context.Context) ([]string, error)

	// Get returns the subject under id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Subject, error)

	// Create stores a new subject and returns it with id, version, and
	// timestamps assigned.
	Create(ctx context.Context, fields SubjectFields) (*Subject, error)

	// Update replaces the mutable fields of an existing subject, bumping
	// its version. Returns ErrNotFound for unknown ids.
	Update(ctx context.Context, id string, fields SubjectFields) (*Subject, error)

	// Delete removes the subject under id, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Close releases store resources.
	Close() error
}

// ChangeKind classifies a revision in a store's audit history.
type ChangeKind string

const (
	ChangeCreate ChangeKind = "create"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Revision is one audit-history entry: the subject state snapshot taken
// when a mutation was applied.
type Revision struct {
	SubjectID  string     `json:"subject_id"`
	Version    int        `json:"version"`
	Label      string     `json:"label"`
	Keywords   []string   `json:"keywords"`
	Change     ChangeKind `json:"change"`
	RecordedAt time.Time  `json:"recorded_at"`
}
