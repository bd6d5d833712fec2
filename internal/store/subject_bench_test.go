package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// =============================================================================
// Performance Benchmarks - Subject Store
// =============================================================================
// Targets:
// - Get: < 1ms per call
// - Create: > 500 subjects/sec
// - List: < 10ms for 1K subjects
// =============================================================================

// BenchmarkSQLiteStore_Get benchmarks single subject retrieval.
func BenchmarkSQLiteStore_Get(b *testing.B) {
	s, ids, cleanup := setupBenchmarkStore(b, 1000)
	defer cleanup()

	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, err := s.Get(ctx, ids[i%len(ids)])
		if err != nil {
			b.Fatalf("Get failed: %v", err)
		}
	}
}

// BenchmarkSQLiteStore_Create benchmarks subject insertion, revision row
// included.
func BenchmarkSQLiteStore_Create(b *testing.B) {
	s, _, cleanup := setupBenchmarkStore(b, 0)
	defer cleanup()

	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, err := s.Create(ctx, benchFields(i))
		if err != nil {
			b.Fatalf("Create failed: %v", err)
		}
	}

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "subjects/sec")
}

// BenchmarkSQLiteStore_Update benchmarks field replacement with version bump.
func BenchmarkSQLiteStore_Update(b *testing.B) {
	s, ids, cleanup := setupBenchmarkStore(b, 1000)
	defer cleanup()

	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, err := s.Update(ctx, ids[i%len(ids)], benchFields(i))
		if err != nil {
			b.Fatalf("Update failed: %v", err)
		}
	}
}

// BenchmarkSQLiteStore_List benchmarks id listing at various store sizes.
func BenchmarkSQLiteStore_List(b *testing.B) {
	counts := []int{100, 1000, 5000}

	for _, count := range counts {
		b.Run(fmt.Sprintf("subjects_%d", count), func(b *testing.B) {
			s, _, cleanup := setupBenchmarkStore(b, count)
			defer cleanup()

			ctx := context.Background()

			b.ResetTimer()
			b.ReportAllocs()

			for i := 0; i < b.N; i++ {
				_, err := s.List(ctx)
				if err != nil {
					b.Fatalf("List failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkSQLiteStore_Concurrent benchmarks reads under contention. The
// store runs a single connection, so this measures serialization cost.
func BenchmarkSQLiteStore_Concurrent(b *testing.B) {
	s, ids, cleanup := setupBenchmarkStore(b, 1000)
	defer cleanup()

	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, err := s.Get(ctx, ids[i%len(ids)])
			if err != nil {
				b.Fatalf("Get failed: %v", err)
			}
			i++
		}
	})
}

// =============================================================================
// Benchmark Helpers
// =============================================================================

// setupBenchmarkStore creates a SQLite store pre-populated with n subjects
// and returns their ids.
func setupBenchmarkStore(b *testing.B, n int) (*SQLiteStore, []string, func()) {
	b.Helper()

	tmpDir, err := os.MkdirTemp("", "bench-subjects-*")
	if err != nil {
		b.Fatalf("failed to create temp dir: %v", err)
	}

	s, err := NewSQLiteStore(filepath.Join(tmpDir, "subjects.db"))
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		b.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		subject, err := s.Create(ctx, benchFields(i))
		if err != nil {
			_ = s.Close()
			_ = os.RemoveAll(tmpDir)
			b.Fatalf("failed to seed subject: %v", err)
		}
		ids[i] = subject.ID
	}

	return s, ids, func() {
		_ = s.Close()
		_ = os.RemoveAll(tmpDir)
	}
}

// benchFields builds deterministic subject fields for seeding.
func benchFields(i int) SubjectFields {
	return SubjectFields{
		Label: fmt.Sprintf("bench subject %d", i),
		Keywords: []string{
			fmt.Sprintf("keyword%d", i%50),
			fmt.Sprintf("topic%d", i%20),
			"benchmark",
		},
	}
}
