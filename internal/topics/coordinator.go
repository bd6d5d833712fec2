// Package topics owns the subject lifecycle over the authoritative store
// and the derived similarity index. Service implements the query and
// maintenance APIs with merge-or-create persistence; Coordinator keeps the
// index consistent with the store, building it lazily on first use.
package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/index"
	"github.com/juergengeck/memory.core/internal/store"
)

// DefaultRebuildParallelism bounds concurrent subject loads during a rebuild.
const DefaultRebuildParallelism = 8

// Coordinator keeps the similarity index consistent with the subject store.
// The index is derived state: the coordinator rebuilds it from the store
// lazily before the first query and applies incremental updates after every
// store write. An index update never rolls back a store write.
type Coordinator struct {
	store       store.SubjectStore
	index       *index.Index
	parallelism int
	logger      *slog.Logger

	mu    sync.Mutex
	built bool
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithRebuildParallelism sets how many subjects are loaded concurrently
// during a rebuild. Values below one are ignored.
func WithRebuildParallelism(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithCoordinatorLogger sets the logger. Nil is ignored.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCoordinator creates a coordinator over the given store and index.
func NewCoordinator(st store.SubjectStore, ix *index.Index, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:       st,
		index:       ix,
		parallelism: DefaultRebuildParallelism,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureBuilt builds the index from the store on first call; later calls
// return immediately. Query paths call this so a fresh process serves its
// first search without an explicit rebuild step.
func (c *Coordinator) EnsureBuilt(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.built {
		return nil
	}
	return c.rebuildLocked(ctx)
}

// Rebuild discards the index contents and rebuilds them from the store.
func (c *Coordinator) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebuildLocked(ctx)
}

// Built reports whether the index has been built since process start.
func (c *Coordinator) Built() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.built
}

// OnSaved applies a create or update to the index. Callers invoke it after
// the store write has succeeded; the index operation itself cannot fail.
func (c *Coordinator) OnSaved(subject *store.Subject) {
	if subject == nil {
		return
	}
	c.index.Update(index.NewEntry(subject.ID, subject.Label, subject.Keywords))
}

// OnDeleted removes a subject from the index after a store delete.
func (c *Coordinator) OnDeleted(id string) {
	c.index.Remove(id)
}

// rebuildLocked loads every subject and swaps the index contents in a
// single BuildFrom. Caller holds c.mu.
func (c *Coordinator) rebuildLocked(ctx context.Context) error {
	start := time.Now()

	entries, err := c.loadEntries(ctx)
	if err != nil {
		return mcerrors.New(mcerrors.ErrCodeRebuildFailed, "index rebuild failed", err)
	}

	c.index.BuildFrom(entries)
	c.built = true

	c.logger.Debug("similarity index built",
		slog.Int("subjects", len(entries)),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// loadEntries lists all subject ids and loads each subject with bounded
// parallelism. Subjects deleted between List and Get are skipped.
func (c *Coordinator) loadEntries(ctx context.Context) ([]index.Entry, error) {
	ids, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	entries := make([]index.Entry, len(ids))
	loaded := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, id := range ids {
		g.Go(func() error {
			subject, err := c.store.Get(gctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					c.logger.Debug("subject vanished during rebuild", slog.String("id", id))
					return nil
				}
				return fmt.Errorf("load subject %s: %w", id, err)
			}
			entries[i] = index.NewEntry(subject.ID, subject.Label, subject.Keywords)
			loaded[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]index.Entry, 0, len(entries))
	for i := range entries {
		if loaded[i] {
			out = append(out, entries[i])
		}
	}
	return out, nil
}
