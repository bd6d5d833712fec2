// Package index implements the in-memory keyword similarity index: an
// inverted mapping from normalized keywords to subject identifiers, with
// Jaccard-ranked matching over keyword sets. The index is a derived
// structure: it is rebuildable from the authoritative subject store at any
// time and never persisted itself.
package index

import (
	"sort"
	"strings"
	"sync"

	"github.com/juergengeck/memory.core/internal/keyword"
)

// DefaultLimit caps FindSimilar results when the caller passes limit <= 0.
const DefaultLimit = 10

// Approximate per-item overheads for Stats memory accounting. These cover
// Go string headers and map bucket costs well enough for a diagnostic
// number; Stats is explicitly not exact.
const (
	stringOverheadBytes  = 16
	entryOverheadBytes   = 96
	postingOverheadBytes = 48
)

// Entry is the index's projection of a subject: identifier, label, the
// keyword set as provided, and the normalized set used for matching.
// Entries are value copies; mutating a subject after indexing does not
// change its entry until an explicit Add or Update.
type Entry struct {
	ID       string
	Label    string
	Keywords []string

	normalized map[string]struct{}
}

// NewEntry builds an Entry for id, normalizing keywords for matching.
// The raw keyword slice is copied; the caller keeps ownership of its input.
func NewEntry(id, label string, keywords []string) Entry {
	norm := keyword.NormalizeSet(keywords)
	set := make(map[string]struct{}, len(norm))
	for _, kw := range norm {
		set[kw] = struct{}{}
	}
	return Entry{
		ID:         id,
		Label:      label,
		Keywords:   copyStrings(keywords),
		normalized: set,
	}
}

// NormalizedKeywords returns the entry's normalized keyword set as a slice,
// in unspecified order.
func (e Entry) NormalizedKeywords() []string {
	out := make([]string, 0, len(e.normalized))
	for kw := range e.normalized {
		out = append(out, kw)
	}
	return out
}

// Match is a ranked query result. MatchingKeywords lists the normalized
// query keywords that matched the subject, including substring fallback
// matches; Similarity is Jaccard over exact normalized tokens only.
type Match struct {
	ID               string   `json:"id"`
	Label            string   `json:"label"`
	Keywords         []string `json:"keywords"`
	MatchingKeywords []string `json:"matching_keywords"`
	Similarity       float64  `json:"similarity"`
}

// Stats reports approximate index size for diagnostics. Counts are exact,
// memory is estimated.
type Stats struct {
	SubjectCount          int     `json:"subject_count"`
	DistinctKeywordCount  int     `json:"distinct_keyword_count"`
	AvgKeywordsPerSubject float64 `json:"avg_keywords_per_subject"`
	ApproxMemoryBytes     int64   `json:"approx_memory_bytes"`
}

// Index owns the keyword-to-subject mapping and answers ranked queries.
//
// A single mutex guards every public method, reads included, since queries
// iterate the same maps that writes mutate. Operations are O(keywords) and
// brief, so finer-grained locking buys nothing. BuildFrom holds the lock
// for the whole rebuild so no reader observes a partially-cleared index.
type Index struct {
	mu       sync.Mutex
	entries  map[string]Entry
	postings map[string]map[string]struct{}
}

// New creates an empty index.
func New() *Index {
	return &Index{
		entries:  make(map[string]Entry),
		postings: make(map[string]map[string]struct{}),
	}
}

// Add inserts an entry, registering its identifier in the posting list of
// each normalized keyword. Re-adding an identifier overwrites the previous
// entry completely; stale postings from the old keyword set are dropped.
func (ix *Index) Add(e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.addLocked(e)
}

// Update replaces the entry under e.ID by symmetric difference: postings
// are touched only for keywords that actually changed, which keeps
// frequent updates of heavily-overlapping keyword sets cheap. An unknown
// identifier falls back to Add.
func (ix *Index) Update(e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	old, ok := ix.entries[e.ID]
	if !ok {
		ix.addLocked(e)
		return
	}

	for kw := range old.normalized {
		if _, kept := e.normalized[kw]; !kept {
			ix.dropPostingLocked(kw, e.ID)
		}
	}
	for kw := range e.normalized {
		if _, had := old.normalized[kw]; !had {
			ix.insertPostingLocked(kw, e.ID)
		}
	}
	ix.entries[e.ID] = e
}

// Remove deletes the entry under id and scrubs it from every posting list,
// pruning lists that become empty. Returns false if id is unknown.
func (ix *Index) Remove(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, ok := ix.entries[id]
	if !ok {
		return false
	}
	ix.removeLocked(e)
	return true
}

// FindByKeywords returns every subject matching at least one query keyword,
// ranked by descending Jaccard similarity between the normalized query set
// and each candidate's normalized keyword set.
//
// Recall is OR-based: candidates are the union of the posting lists of all
// query keywords. The substring fallback (one keyword containing the other)
// widens only the reported MatchingKeywords, never the score and never the
// candidate set. Order among equal similarities is unspecified.
func (ix *Index) FindByKeywords(keywords []string) []Match {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.findLocked(keywords, 0)
}

// FindSimilar is FindByKeywords truncated to limit results
// (limit <= 0 means DefaultLimit).
func (ix *Index) FindSimilar(keywords []string, limit int) []Match {
	if limit <= 0 {
		limit = DefaultLimit
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.findLocked(keywords, limit)
}

// Get returns the entry under id.
func (ix *Index) Get(id string) (Entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, ok := ix.entries[id]
	if !ok {
		return Entry{}, false
	}
	e.Keywords = copyStrings(e.Keywords)
	return e, true
}

// Has reports whether id is indexed.
func (ix *Index) Has(id string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.entries[id]
	return ok
}

// All returns every indexed entry in unspecified order.
func (ix *Index) All() []Entry {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	out := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		e.Keywords = copyStrings(e.Keywords)
		out = append(out, e)
	}
	return out
}

// Clear drops every entry and posting list.
func (ix *Index) Clear() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.clearLocked()
}

// BuildFrom clears the index and bulk-adds entries under one lock hold, so
// concurrent readers never observe a partially-built state. Cost is
// O(entries × avg keywords); queries pay nothing afterwards.
func (ix *Index) BuildFrom(entries []Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.clearLocked()
	for _, e := range entries {
		ix.addLocked(e)
	}
}

// Stats returns approximate size diagnostics.
func (ix *Index) Stats() Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	s := Stats{
		SubjectCount:         len(ix.entries),
		DistinctKeywordCount: len(ix.postings),
	}

	totalKeywords := 0
	var mem int64
	for _, e := range ix.entries {
		totalKeywords += len(e.normalized)
		mem += entryOverheadBytes + int64(len(e.ID)+len(e.Label))
		for _, kw := range e.Keywords {
			mem += stringOverheadBytes + int64(len(kw))
		}
		for kw := range e.normalized {
			mem += stringOverheadBytes + int64(len(kw))
		}
	}
	for kw, ids := range ix.postings {
		mem += stringOverheadBytes + int64(len(kw))
		mem += postingOverheadBytes * int64(len(ids))
	}

	if s.SubjectCount > 0 {
		s.AvgKeywordsPerSubject = float64(totalKeywords) / float64(s.SubjectCount)
	}
	s.ApproxMemoryBytes = mem
	return s
}

// internal operations; callers hold ix.mu

func (ix *Index) addLocked(e Entry) {
	if old, ok := ix.entries[e.ID]; ok {
		ix.removeLocked(old)
	}
	for kw := range e.normalized {
		ix.insertPostingLocked(kw, e.ID)
	}
	ix.entries[e.ID] = e
}

func (ix *Index) removeLocked(e Entry) {
	for kw := range e.normalized {
		ix.dropPostingLocked(kw, e.ID)
	}
	delete(ix.entries, e.ID)
}

func (ix *Index) insertPostingLocked(kw, id string) {
	ids, ok := ix.postings[kw]
	if !ok {
		ids = make(map[string]struct{})
		ix.postings[kw] = ids
	}
	ids[id] = struct{}{}
}

func (ix *Index) dropPostingLocked(kw, id string) {
	ids, ok := ix.postings[kw]
	if !ok {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(ix.postings, kw)
	}
}

func (ix *Index) clearLocked() {
	ix.entries = make(map[string]Entry)
	ix.postings = make(map[string]map[string]struct{})
}

func (ix *Index) findLocked(keywords []string, limit int) []Match {
	query := keyword.NormalizeSet(keywords)
	if len(query) == 0 {
		return nil
	}
	querySet := make(map[string]struct{}, len(query))
	for _, kw := range query {
		querySet[kw] = struct{}{}
	}

	// OR recall: any single exact keyword hit makes a subject a candidate.
	candidates := make(map[string]struct{})
	for _, kw := range query {
		for id := range ix.postings[kw] {
			candidates[id] = struct{}{}
		}
	}

	matches := make([]Match, 0, len(candidates))
	for id := range candidates {
		e := ix.entries[id]
		matching := matchingKeywords(query, e.normalized)
		if len(matching) == 0 {
			continue
		}
		matches = append(matches, Match{
			ID:               e.ID,
			Label:            e.Label,
			Keywords:         copyStrings(e.Keywords),
			MatchingKeywords: matching,
			Similarity:       jaccard(querySet, e.normalized),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// matchingKeywords returns the query keywords matching the candidate set,
// in query order. Exact matches always count; otherwise a keyword counts
// if it contains, or is contained in, any candidate keyword. The substring
// rule is display-only and deliberately has no minimum-length guard: a
// very short keyword can match inside a longer one.
func matchingKeywords(query []string, candidate map[string]struct{}) []string {
	var matching []string
	for _, q := range query {
		if _, exact := candidate[q]; exact {
			matching = append(matching, q)
			continue
		}
		for c := range candidate {
			if strings.Contains(c, q) || strings.Contains(q, c) {
				matching = append(matching, q)
				break
			}
		}
	}
	return matching
}

// jaccard computes |A ∩ B| / |A ∪ B| over two normalized keyword sets.
// Defined as 0.0 when both sets are empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.0
	}
	intersection := 0
	for kw := range a {
		if _, ok := b[kw]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
