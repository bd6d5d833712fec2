package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juergengeck/memory.core/internal/ingest"
)

// Watcher Integration Tests - These run the spool watcher against a real
// directory to verify file drops surface as debounced events and that a
// dropped batch flows through the service end to end.

// startWatcher creates and starts a watcher over dir with a short debounce.
func startWatcher(t *testing.T, dir string) *ingest.Watcher {
	t.Helper()
	w, err := ingest.NewWatcher(dir, ingest.WithDebounce(100*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Start(ctx) }()
	t.Cleanup(func() { _ = w.Stop() })

	// Wait for the fsnotify watch to be registered.
	time.Sleep(200 * time.Millisecond)
	return w
}

// TestWatcher_RecordFileDropped_EmitsCreate tests that dropping a record
// file into the spool emits a create event after the quiet period.
func TestWatcher_RecordFileDropped_EmitsCreate(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a watcher over an empty spool directory
	dir := t.TempDir()
	w := startWatcher(t, dir)

	// When: dropping a record file
	path := filepath.Join(dir, "drop.jsonl")
	err := os.WriteFile(path, []byte(`{"id": "r1", "text": "redis eviction"}`+"\n"), 0644)
	require.NoError(t, err)

	// Then: a create event for the file arrives
	select {
	case event := <-w.Events():
		assert.Equal(t, ingest.OpCreate, event.Op)
		assert.Equal(t, "drop.jsonl", filepath.Base(event.Path))
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for create event")
	}
}

// TestWatcher_RapidRewrites_CoalesceToOneEvent tests that a burst of writes
// to the same file surfaces as a single debounced event.
func TestWatcher_RapidRewrites_CoalesceToOneEvent(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a watcher over an empty spool directory
	dir := t.TempDir()
	w := startWatcher(t, dir)

	// When: writing the same file three times inside the debounce window
	path := filepath.Join(dir, "burst.jsonl")
	for i := 0; i < 3; i++ {
		err := os.WriteFile(path, []byte(`{"id": "r1", "text": "retry"}`+"\n"), 0644)
		require.NoError(t, err)
		time.Sleep(20 * time.Millisecond)
	}

	// Then: exactly one create event arrives for the file
	select {
	case event := <-w.Events():
		assert.Equal(t, ingest.OpCreate, event.Op)
		assert.Equal(t, "burst.jsonl", filepath.Base(event.Path))
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for coalesced event")
	}

	select {
	case event := <-w.Events():
		t.Fatalf("Expected a single coalesced event, got a second one: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}

// TestWatcher_FileDeleted_EmitsDelete tests that deleting a spool file
// emits a delete event.
func TestWatcher_FileDeleted_EmitsDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a spool directory with an existing record file
	dir := t.TempDir()
	path := filepath.Join(dir, "stale.jsonl")
	err := os.WriteFile(path, []byte(`{"id": "r1", "text": "old"}`+"\n"), 0644)
	require.NoError(t, err)

	w := startWatcher(t, dir)

	// When: deleting the file
	require.NoError(t, os.Remove(path))

	// Then: a delete event arrives
	select {
	case event := <-w.Events():
		assert.Equal(t, ingest.OpDelete, event.Op)
		assert.Equal(t, "stale.jsonl", filepath.Base(event.Path))
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for delete event")
	}
}

// TestWatcher_IgnoresScratchFiles tests that hidden and temporary files
// produce no events while a real record file does.
func TestWatcher_IgnoresScratchFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a watcher over an empty spool directory
	dir := t.TempDir()
	w := startWatcher(t, dir)

	// When: dropping editor scratch files and one real record file
	for _, name := range []string{".hidden.jsonl", "draft.tmp", "notes.jsonl~", "swap.swp"} {
		err := os.WriteFile(filepath.Join(dir, name), []byte("x\n"), 0644)
		require.NoError(t, err)
	}
	err := os.WriteFile(filepath.Join(dir, "real.jsonl"), []byte(`{"id": "r1", "text": "keep"}`+"\n"), 0644)
	require.NoError(t, err)

	// Then: only the record file surfaces
	select {
	case event := <-w.Events():
		assert.Equal(t, "real.jsonl", filepath.Base(event.Path))
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for record file event")
	}

	select {
	case event := <-w.Events():
		t.Fatalf("Scratch files should not produce events, got: %+v", event)
	case <-time.After(300 * time.Millisecond):
	}
}

// TestWatcher_StopTwice_IsSafe tests that Stop is idempotent and closes
// the event channel.
func TestWatcher_StopTwice_IsSafe(t *testing.T) {
	// Given: a watcher that never started
	w, err := ingest.NewWatcher(t.TempDir())
	require.NoError(t, err)

	// When: stopping it twice
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// Then: the event channel is closed
	_, ok := <-w.Events()
	assert.False(t, ok, "Events channel should be closed after Stop")
}

// TestWatcher_SpoolToService_CreatesSubjects tests the full spool flow: a
// dropped batch is read, analyzed, and stored as a searchable subject.
func TestWatcher_SpoolToService_CreatesSubjects(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	// Given: a watcher over a spool directory and a service behind it
	dir := t.TempDir()
	w := startWatcher(t, dir)
	svc := testService(t, testSQLiteStore(t))
	ctx := context.Background()

	// When: dropping a record batch and feeding the event to the service
	content := `{"id": "r1", "text": "Kubernetes deployment rollout strategy notes"}
{"id": "r2", "text": "Kubernetes deployment rollout failed again yesterday"}
{"id": "r3", "text": "Canary kubernetes deployment rollout guide draft"}
`
	err := os.WriteFile(filepath.Join(dir, "batch.jsonl"), []byte(content), 0644)
	require.NoError(t, err)

	select {
	case event := <-w.Events():
		require.Equal(t, ingest.OpCreate, event.Op)

		records, err := ingest.ReadRecords(event.Path)
		require.NoError(t, err)
		require.Len(t, records, 3)

		report, err := svc.AnalyzeBatch(ctx, "spool", records)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Created)
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for spool event")
	}

	// Then: the subject is searchable
	matches, err := svc.Search(ctx, []string{"kubernetes", "rollout"}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "kubernetes deployment rollout", matches[0].Label)
}
