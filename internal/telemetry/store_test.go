package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestStore_AddQueryCounts(t *testing.T) {
	store := setupStore(t)

	err := store.AddQueryCounts("2026-08-20",
		map[string]int64{"search": 10, "similar": 4},
		map[string]int64{"search": 2})
	require.NoError(t, err)

	counts, zeros, err := store.QueryTotals("2026-08-20", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(10), counts["search"])
	assert.Equal(t, int64(4), counts["similar"])
	assert.Equal(t, int64(2), zeros["search"])
	assert.Equal(t, int64(0), zeros["similar"])
}

func TestStore_AddQueryCounts_Incremental(t *testing.T) {
	store := setupStore(t)

	err := store.AddQueryCounts("2026-08-20", map[string]int64{"search": 10}, map[string]int64{"search": 1})
	require.NoError(t, err)

	// Second add accumulates into the same row.
	err = store.AddQueryCounts("2026-08-20", map[string]int64{"search": 5}, map[string]int64{"search": 2})
	require.NoError(t, err)

	counts, zeros, err := store.QueryTotals("2026-08-20", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(15), counts["search"])
	assert.Equal(t, int64(3), zeros["search"])
}

func TestStore_AddQueryCounts_EmptyMap(t *testing.T) {
	store := setupStore(t)

	err := store.AddQueryCounts("2026-08-20", map[string]int64{}, nil)
	require.NoError(t, err)
}

func TestStore_QueryTotals_DateRange(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.AddQueryCounts("2026-08-18", map[string]int64{"search": 10}, nil))
	require.NoError(t, store.AddQueryCounts("2026-08-19", map[string]int64{"search": 20}, nil))
	require.NoError(t, store.AddQueryCounts("2026-08-20", map[string]int64{"search": 30}, nil))

	counts, _, err := store.QueryTotals("2026-08-18", "2026-08-19")
	require.NoError(t, err)

	assert.Equal(t, int64(30), counts["search"]) // 10 + 20
}

func TestStore_AddLatencyCounts(t *testing.T) {
	store := setupStore(t)

	err := store.AddLatencyCounts("2026-08-20", map[LatencyBucket]int64{
		BucketP10:  100,
		BucketP50:  50,
		BucketP500: 3,
	})
	require.NoError(t, err)

	result, err := store.LatencyTotals("2026-08-20", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(100), result[BucketP10])
	assert.Equal(t, int64(50), result[BucketP50])
	assert.Equal(t, int64(3), result[BucketP500])
}

func TestStore_AddLatencyCounts_Incremental(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.AddLatencyCounts("2026-08-20", map[LatencyBucket]int64{BucketP10: 10}))
	require.NoError(t, store.AddLatencyCounts("2026-08-20", map[LatencyBucket]int64{BucketP10: 5}))

	result, err := store.LatencyTotals("2026-08-20", "2026-08-20")
	require.NoError(t, err)

	assert.Equal(t, int64(15), result[BucketP10])
}

func TestStore_AddBatch_RoundTrip(t *testing.T) {
	store := setupStore(t)

	runAt := time.Date(2026, 8, 20, 14, 30, 0, 0, time.UTC)
	err := store.AddBatch(BatchEvent{
		Scope:     "email",
		Records:   10,
		Processed: 9,
		Failed:    1,
		Created:   4,
		Merged:    5,
		Latency:   250 * time.Millisecond,
		Timestamp: runAt,
	})
	require.NoError(t, err)

	batches, err := store.RecentBatches(10)
	require.NoError(t, err)
	require.Len(t, batches, 1)

	got := batches[0]
	assert.Equal(t, "email", got.Scope)
	assert.Equal(t, 10, got.Records)
	assert.Equal(t, 9, got.Processed)
	assert.Equal(t, 1, got.Failed)
	assert.Equal(t, 4, got.Created)
	assert.Equal(t, 5, got.Merged)
	assert.Equal(t, 250*time.Millisecond, got.Latency)
	assert.True(t, got.Timestamp.Equal(runAt))
}

func TestStore_RecentBatches_NewestFirst(t *testing.T) {
	store := setupStore(t)

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	for i, scope := range []string{"email", "chat", "notes"} {
		err := store.AddBatch(BatchEvent{Scope: scope, Records: i + 1, Timestamp: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	batches, err := store.RecentBatches(2)
	require.NoError(t, err)
	require.Len(t, batches, 2)

	assert.Equal(t, "notes", batches[0].Scope)
	assert.Equal(t, "chat", batches[1].Scope)
}

func TestStore_AddBatch_TrimsOldRuns(t *testing.T) {
	store := setupStore(t)

	for i := 0; i < maxBatchRows+5; i++ {
		err := store.AddBatch(BatchEvent{Scope: "email", Records: i})
		require.NoError(t, err)
	}

	batches, err := store.RecentBatches(maxBatchRows * 2)
	require.NoError(t, err)

	assert.Len(t, batches, maxBatchRows)
	// The oldest runs are the ones trimmed.
	assert.Equal(t, maxBatchRows+4, batches[0].Records)
}

func TestNewStore_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "telemetry.db")

	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = os.Stat(filepath.Dir(path))
	assert.NoError(t, err)
}

func TestNewStore_InMemory(t *testing.T) {
	store, err := NewStore("")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.AddQueryCounts("2026-08-20", map[string]int64{"search": 1}, nil))

	counts, _, err := store.QueryTotals("2026-08-20", "2026-08-20")
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["search"])
}
