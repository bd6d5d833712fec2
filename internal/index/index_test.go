package index

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func matchIDs(matches []Match) []string {
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids
}

func findMatch(t *testing.T, matches []Match, id string) Match {
	t.Helper()
	for _, m := range matches {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("no match with id %q in %v", id, matchIDs(matches))
	return Match{}
}

func TestIndex_Add_ReAddIsIdempotent(t *testing.T) {
	// Given: an index with one entry added twice
	ix := New()
	e := NewEntry("s1", "Rust", []string{"rust", "systems"})
	ix.Add(e)
	statsAfterFirst := ix.Stats()

	// When: the identical entry is added again
	ix.Add(e)

	// Then: entry and posting state are unchanged
	assert.Equal(t, statsAfterFirst, ix.Stats())
	matches := ix.FindByKeywords([]string{"rust"})
	require.Len(t, matches, 1)
	assert.Equal(t, "s1", matches[0].ID)
}

func TestIndex_Add_OverwritesPriorEntry(t *testing.T) {
	// Given: s1 indexed under "rust"
	ix := New()
	ix.Add(NewEntry("s1", "Rust", []string{"rust"}))

	// When: s1 is re-added with a different keyword set
	ix.Add(NewEntry("s1", "Go", []string{"golang"}))

	// Then: the old keyword no longer reaches s1
	assert.Empty(t, ix.FindByKeywords([]string{"rust"}))
	matches := ix.FindByKeywords([]string{"golang"})
	require.Len(t, matches, 1)
	assert.Equal(t, "Go", matches[0].Label)
	assert.Equal(t, 1, ix.Stats().DistinctKeywordCount)
}

func TestIndex_Update_MovesPostingsBySymmetricDifference(t *testing.T) {
	// Given: s1 indexed under {rust, systems}
	ix := New()
	ix.Add(NewEntry("s1", "Rust", []string{"rust", "systems"}))

	// When: updating to {rust, web}
	ix.Update(NewEntry("s1", "Rust", []string{"rust", "web"}))

	// Then: new keywords find it, removed keywords do not
	require.Len(t, ix.FindByKeywords([]string{"web"}), 1)
	require.Len(t, ix.FindByKeywords([]string{"rust"}), 1)
	assert.Empty(t, ix.FindByKeywords([]string{"systems"}))

	// And: the keyword removed from its only subject is gone entirely
	assert.Equal(t, 2, ix.Stats().DistinctKeywordCount)
}

func TestIndex_Update_UnknownFallsBackToAdd(t *testing.T) {
	ix := New()

	ix.Update(NewEntry("s9", "New", []string{"fresh"}))

	assert.True(t, ix.Has("s9"))
	require.Len(t, ix.FindByKeywords([]string{"fresh"}), 1)
}

func TestIndex_Remove_ScrubsEveryPostingList(t *testing.T) {
	// Given: two subjects sharing "rust", s1 alone holding "systems"
	ix := New()
	ix.Add(NewEntry("s1", "Rust systems", []string{"rust", "systems"}))
	ix.Add(NewEntry("s2", "Rust web", []string{"rust", "web"}))
	require.Equal(t, 3, ix.Stats().DistinctKeywordCount)

	// When: removing s1
	removed := ix.Remove("s1")

	// Then: s1 is gone from every posting list and its unique keyword is pruned
	assert.True(t, removed)
	assert.False(t, ix.Has("s1"))
	assert.Empty(t, ix.FindByKeywords([]string{"systems"}))
	assert.Equal(t, []string{"s2"}, matchIDs(ix.FindByKeywords([]string{"rust"})))
	assert.Equal(t, 2, ix.Stats().DistinctKeywordCount)
}

func TestIndex_Remove_UnknownReturnsFalse(t *testing.T) {
	ix := New()
	assert.False(t, ix.Remove("ghost"))
}

func TestIndex_Jaccard_KnownValues(t *testing.T) {
	tests := []struct {
		name      string
		query     []string
		candidate []string
		want      float64
	}{
		{"partial overlap", []string{"a", "b"}, []string{"a", "b", "c"}, 2.0 / 3.0},
		{"identical sets", []string{"a", "b"}, []string{"a", "b"}, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix := New()
			ix.Add(NewEntry("s1", "candidate", tt.candidate))

			matches := ix.FindByKeywords(tt.query)

			require.Len(t, matches, 1)
			assert.InDelta(t, tt.want, matches[0].Similarity, 1e-9)
		})
	}
}

func TestIndex_Jaccard_DisjointSetsNeverSurface(t *testing.T) {
	// Disjoint candidates are not recalled at all (no shared posting list)
	ix := New()
	ix.Add(NewEntry("s1", "other", []string{"x", "y"}))

	assert.Empty(t, ix.FindByKeywords([]string{"a", "b"}))
}

func TestIndex_FindByKeywords_RanksByDescendingSimilarity(t *testing.T) {
	// Given: candidates engineered to score 1.0, 0.5, and 0.25 for the query
	ix := New()
	ix.Add(NewEntry("low", "low", []string{"q1", "f1", "f2", "f3"}))
	ix.Add(NewEntry("high", "high", []string{"q1"}))
	ix.Add(NewEntry("mid", "mid", []string{"q1", "f1"}))

	// When: querying with the shared keyword
	matches := ix.FindByKeywords([]string{"q1"})

	// Then: results come back highest similarity first
	require.Len(t, matches, 3)
	assert.Equal(t, []string{"high", "mid", "low"}, matchIDs(matches))
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-9)
	assert.InDelta(t, 0.5, matches[1].Similarity, 1e-9)
	assert.InDelta(t, 0.25, matches[2].Similarity, 1e-9)
}

func TestIndex_FindByKeywords_OrRecallAcrossKeywords(t *testing.T) {
	// Given: two subjects sharing one keyword
	ix := New()
	ix.Add(NewEntry("s1", "Rust systems", []string{"rust", "systems"}))
	ix.Add(NewEntry("s2", "Rust web", []string{"rust", "web"}))

	// When: querying {rust, cli}
	matches := ix.FindByKeywords([]string{"rust", "cli"})

	// Then: both subjects surface with similarity 1/3 each
	require.Len(t, matches, 2)
	s1 := findMatch(t, matches, "s1")
	s2 := findMatch(t, matches, "s2")
	assert.InDelta(t, 1.0/3.0, s1.Similarity, 1e-9)
	assert.InDelta(t, 1.0/3.0, s2.Similarity, 1e-9)
	assert.Equal(t, []string{"rust"}, s1.MatchingKeywords)
	assert.Equal(t, []string{"rust"}, s2.MatchingKeywords)
}

func TestIndex_FindByKeywords_QueryIsNormalized(t *testing.T) {
	ix := New()
	ix.Add(NewEntry("s1", "Rust", []string{"rust"}))

	matches := ix.FindByKeywords([]string{"  RUST!  "})

	require.Len(t, matches, 1)
	assert.Equal(t, "s1", matches[0].ID)
}

func TestIndex_FindByKeywords_SubstringWidensMatchingKeywordsOnly(t *testing.T) {
	// Given: a subject holding both "project" and "databases"
	ix := New()
	ix.Add(NewEntry("s1", "Projects", []string{"project", "databases"}))

	// When: querying the exact keyword plus a plural variant
	matches := ix.FindByKeywords([]string{"project", "database"})

	// Then: "database" counts as matching via substring, but similarity
	// reflects exact-token overlap only (∩={project}, ∪={project, databases, database})
	require.Len(t, matches, 1)
	assert.ElementsMatch(t, []string{"project", "database"}, matches[0].MatchingKeywords)
	assert.InDelta(t, 1.0/3.0, matches[0].Similarity, 1e-9)
}

func TestIndex_FindByKeywords_EmptyQueryReturnsNothing(t *testing.T) {
	ix := New()
	ix.Add(NewEntry("s1", "Rust", []string{"rust"}))

	assert.Empty(t, ix.FindByKeywords(nil))
	assert.Empty(t, ix.FindByKeywords([]string{"", "!!"}))
}

func TestIndex_FindSimilar_EnforcesLimit(t *testing.T) {
	// Given: three candidates with distinct scores
	ix := New()
	ix.Add(NewEntry("low", "low", []string{"q1", "f1", "f2", "f3"}))
	ix.Add(NewEntry("high", "high", []string{"q1"}))
	ix.Add(NewEntry("mid", "mid", []string{"q1", "f1"}))

	// When: asking for exactly one
	matches := ix.FindSimilar([]string{"q1"}, 1)

	// Then: only the highest-scoring result is returned
	require.Len(t, matches, 1)
	assert.Equal(t, "high", matches[0].ID)
}

func TestIndex_FindSimilar_DefaultLimit(t *testing.T) {
	ix := New()
	for i := 0; i < 15; i++ {
		ix.Add(NewEntry(fmt.Sprintf("s%d", i), "subject", []string{"shared", fmt.Sprintf("extra%d", i)}))
	}

	matches := ix.FindSimilar([]string{"shared"}, 0)

	assert.Len(t, matches, DefaultLimit)
}

func TestIndex_BuildFrom_ReplacesExistingState(t *testing.T) {
	// Given: an index with stale content
	ix := New()
	ix.Add(NewEntry("stale", "stale", []string{"old"}))

	// When: rebuilding from a fresh entry set
	ix.BuildFrom([]Entry{
		NewEntry("s1", "Rust systems", []string{"rust", "systems"}),
		NewEntry("s2", "Rust web", []string{"rust", "web"}),
	})

	// Then: only the fresh entries remain
	assert.False(t, ix.Has("stale"))
	assert.Empty(t, ix.FindByKeywords([]string{"old"}))
	assert.Equal(t, 2, ix.Stats().SubjectCount)
	assert.Len(t, ix.FindByKeywords([]string{"rust"}), 2)
}

func TestIndex_GetHasAllClear(t *testing.T) {
	ix := New()
	ix.Add(NewEntry("s1", "Rust", []string{"rust"}))

	e, ok := ix.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "Rust", e.Label)

	_, ok = ix.Get("missing")
	assert.False(t, ok)

	assert.True(t, ix.Has("s1"))
	assert.Len(t, ix.All(), 1)

	ix.Clear()
	assert.False(t, ix.Has("s1"))
	assert.Empty(t, ix.All())
	assert.Equal(t, Stats{}, ix.Stats())
}

func TestIndex_Stats_CountsAndAverages(t *testing.T) {
	ix := New()
	ix.Add(NewEntry("s1", "one", []string{"rust", "systems"}))
	ix.Add(NewEntry("s2", "two", []string{"rust", "web", "api"}))

	stats := ix.Stats()

	assert.Equal(t, 2, stats.SubjectCount)
	assert.Equal(t, 4, stats.DistinctKeywordCount)
	assert.InDelta(t, 2.5, stats.AvgKeywordsPerSubject, 1e-9)
	assert.Positive(t, stats.ApproxMemoryBytes)
}

func TestIndex_EntryIsValueCopy(t *testing.T) {
	// Given: a keyword slice reused by the caller after indexing
	raw := []string{"rust"}
	ix := New()
	ix.Add(NewEntry("s1", "Rust", raw))

	// When: the caller mutates its slice
	raw[0] = "mutated"

	// Then: the indexed entry is unaffected
	e, ok := ix.Get("s1")
	require.True(t, ok)
	assert.Equal(t, []string{"rust"}, e.Keywords)
	require.Len(t, ix.FindByKeywords([]string{"rust"}), 1)
}

func TestNewEntry_NormalizesKeywords(t *testing.T) {
	e := NewEntry("s1", "Label", []string{"Rust!", "  rust  ", "Systems-Programming"})

	assert.ElementsMatch(t, []string{"rust", "systems programming"}, e.NormalizedKeywords())
}
