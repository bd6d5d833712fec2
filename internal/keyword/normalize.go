// Package keyword provides keyword normalization, tokenization, and
// extraction for the subject similarity index.
//
// Normalization produces the canonical token form used everywhere in the
// index: lowercase, with every run of non-alphanumeric runes collapsed to a
// single space. Extraction turns free text into ranked raw keywords; the
// core always normalizes after extraction, never assumes it upstream.
package keyword

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes a raw keyword for indexing and matching.
// Letters are lowercased; every maximal run of runes that are neither
// letters nor digits (punctuation and whitespace alike) becomes a single
// space; leading and trailing separators are dropped.
//
// Normalize is total and idempotent: it never fails, and
// Normalize(Normalize(x)) == Normalize(x). Empty input yields empty output;
// callers filter empties before indexing.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))

	pendingSep := false
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSep = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSep = true
	}

	return b.String()
}

// NormalizeSet normalizes each element, drops results that normalize to
// empty, and deduplicates, preserving first-seen order.
func NormalizeSet(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, kw := range raw {
		n := Normalize(kw)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
