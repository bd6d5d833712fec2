package mcp

import (
	"time"

	"github.com/juergengeck/memory.core/internal/index"
	"github.com/juergengeck/memory.core/internal/store"
	"github.com/juergengeck/memory.core/internal/topics"
)

// SearchSubjectsInput defines the input schema for the search_subjects tool.
type SearchSubjectsInput struct {
	Keywords []string `json:"keywords" jsonschema:"keywords to match against subject keyword sets"`
	Limit    int      `json:"limit,omitempty" jsonschema:"maximum number of matches, default 10"`
}

// SimilarSubjectsInput defines the input schema for the similar_subjects tool.
type SimilarSubjectsInput struct {
	ID    string `json:"id" jsonschema:"subject id to find neighbours for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of matches, default 10"`
}

// RecordInput is one record inside an extract_subjects batch.
type RecordInput struct {
	ID   string `json:"id,omitempty" jsonschema:"stable record identifier, derived when empty"`
	Text string `json:"text" jsonschema:"free text to extract keywords from"`
}

// ExtractSubjectsInput defines the input schema for the extract_subjects tool.
type ExtractSubjectsInput struct {
	Scope   string        `json:"scope,omitempty" jsonschema:"record origin scope such as email or chat, default adhoc"`
	Records []RecordInput `json:"records" jsonschema:"records to analyze as one batch"`
}

// GetSubjectInput defines the input schema for the get_subject tool.
type GetSubjectInput struct {
	ID string `json:"id" jsonschema:"subject id"`
}

// ListSubjectsInput defines the input schema for the list_subjects tool (no parameters).
type ListSubjectsInput struct{}

// RebuildIndexInput defines the input schema for the rebuild_index tool (no parameters).
type RebuildIndexInput struct{}

// IndexStatsInput defines the input schema for the index_stats tool (no parameters).
type IndexStatsInput struct{}

// MatchOutput is one ranked similarity match.
type MatchOutput struct {
	ID               string   `json:"id" jsonschema:"subject id"`
	Label            string   `json:"label" jsonschema:"subject label"`
	Keywords         []string `json:"keywords" jsonschema:"all keywords of the subject"`
	MatchingKeywords []string `json:"matching_keywords" jsonschema:"keywords shared with the query"`
	Similarity       float64  `json:"similarity" jsonschema:"Jaccard similarity between 0 and 1"`
}

// SearchSubjectsOutput defines the output schema for search_subjects and
// similar_subjects.
type SearchSubjectsOutput struct {
	Matches []MatchOutput `json:"matches" jsonschema:"matches ordered by descending similarity"`
}

// SubjectOutput is the full representation of one subject.
type SubjectOutput struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	Description string            `json:"description,omitempty"`
	Keywords    []string          `json:"keywords"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Version     int               `json:"version"`
	CreatedAt   string            `json:"created_at"`
	UpdatedAt   string            `json:"updated_at"`
}

// SubjectSummary is the compact listing form of a subject.
type SubjectSummary struct {
	ID           string `json:"id"`
	Label        string `json:"label"`
	KeywordCount int    `json:"keyword_count"`
}

// ListSubjectsOutput defines the output schema for the list_subjects tool.
type ListSubjectsOutput struct {
	Subjects []SubjectSummary `json:"subjects" jsonschema:"all subjects ordered by label"`
	Count    int              `json:"count" jsonschema:"number of subjects"`
}

// BatchReportOutput defines the output schema for the extract_subjects tool.
type BatchReportOutput struct {
	Scope     string `json:"scope"`
	Records   int    `json:"records"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Created   int    `json:"created"`
	Merged    int    `json:"merged"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// IndexStatsOutput defines the output schema for the index_stats tool.
type IndexStatsOutput struct {
	SubjectCount          int     `json:"subject_count"`
	DistinctKeywordCount  int     `json:"distinct_keyword_count"`
	AvgKeywordsPerSubject float64 `json:"avg_keywords_per_subject"`
	ApproxMemoryBytes     int64   `json:"approx_memory_bytes"`
}

// RebuildIndexOutput defines the output schema for the rebuild_index tool.
type RebuildIndexOutput struct {
	SubjectCount         int   `json:"subject_count"`
	DistinctKeywordCount int   `json:"distinct_keyword_count"`
	ElapsedMS            int64 `json:"elapsed_ms"`
}

func toMatchOutput(m index.Match) MatchOutput {
	return MatchOutput{
		ID:               m.ID,
		Label:            m.Label,
		Keywords:         m.Keywords,
		MatchingKeywords: m.MatchingKeywords,
		Similarity:       m.Similarity,
	}
}

func toMatchOutputs(matches []index.Match) []MatchOutput {
	out := make([]MatchOutput, 0, len(matches))
	for _, m := range matches {
		out = append(out, toMatchOutput(m))
	}
	return out
}

func toSubjectOutput(sub *store.Subject) SubjectOutput {
	return SubjectOutput{
		ID:          sub.ID,
		Label:       sub.Label,
		Description: sub.Description,
		Keywords:    sub.Keywords,
		Metadata:    sub.Metadata,
		Version:     sub.Version,
		CreatedAt:   sub.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   sub.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toBatchReportOutput(report *topics.BatchReport) BatchReportOutput {
	return BatchReportOutput{
		Scope:     report.Scope,
		Records:   report.Records,
		Processed: report.Processed,
		Failed:    report.Failed,
		Created:   report.Created,
		Merged:    report.Merged,
		ElapsedMS: report.Elapsed.Milliseconds(),
	}
}

// clampLimit bounds a requested result limit, falling back to defaultVal
// when the request leaves it unset.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
