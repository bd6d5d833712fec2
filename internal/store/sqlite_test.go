package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_Contract(t *testing.T) {
	runSubjectStoreTests(t, func(t *testing.T) SubjectStore {
		s, err := NewSQLiteStore("") // in-memory
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	// Given: a subject written to an on-disk database
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "subjects.db")

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)

	created, err := s1.Create(ctx, SubjectFields{
		Label:    "rust systems",
		Keywords: []string{"rust", "systems"},
	})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	// When: reopening the same file
	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	// Then: the subject survives with all fields intact
	got, err := s2.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "rust systems", got.Label)
	assert.Equal(t, []string{"rust", "systems"}, got.Keywords)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
}

func TestSQLiteStore_RecordsRevisions(t *testing.T) {
	// Given: a subject that is created, updated, and deleted
	ctx := context.Background()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	created, err := s.Create(ctx, SubjectFields{Label: "v1", Keywords: []string{"a"}})
	require.NoError(t, err)

	_, err = s.Update(ctx, created.ID, SubjectFields{Label: "v2", Keywords: []string{"a", "b"}})
	require.NoError(t, err)

	deleted, err := s.Delete(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, deleted)

	// When: reading the audit history
	revisions, err := s.Revisions(ctx, created.ID)
	require.NoError(t, err)

	// Then: one snapshot per mutation, in order
	require.Len(t, revisions, 3)
	assert.Equal(t, ChangeCreate, revisions[0].Change)
	assert.Equal(t, 1, revisions[0].Version)
	assert.Equal(t, "v1", revisions[0].Label)

	assert.Equal(t, ChangeUpdate, revisions[1].Change)
	assert.Equal(t, 2, revisions[1].Version)
	assert.Equal(t, "v2", revisions[1].Label)
	assert.Equal(t, []string{"a", "b"}, revisions[1].Keywords)

	assert.Equal(t, ChangeDelete, revisions[2].Change)
	assert.Equal(t, 2, revisions[2].Version)
}

func TestSQLiteStore_CloseIsIdempotent(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
