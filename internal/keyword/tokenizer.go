package keyword

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// wordRegex matches runs of Unicode letters and digits.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// MinTokenRunes is the minimum token length kept by Tokenize.
// Single-rune tokens are almost always noise ("a", "I", stray digits).
const MinTokenRunes = 2

// Tokenize splits free text into lowercase word tokens.
// Punctuation and whitespace separate tokens; tokens shorter than
// MinTokenRunes are dropped.
func Tokenize(text string) []string {
	words := wordRegex.FindAllString(text, -1)

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		lower := strings.ToLower(word)
		if utf8.RuneCountInString(lower) >= MinTokenRunes {
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a map for lookup.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// DefaultStopWords are common English function words excluded from
// frequency-based extraction. The list is deliberately short: over-filtering
// hurts recall more than the occasional stop word hurts precision.
var DefaultStopWords = []string{
	"a", "an", "the", "and", "or", "but", "if", "then", "else",
	"of", "to", "in", "on", "at", "by", "for", "with", "from",
	"as", "is", "are", "was", "were", "be", "been", "being",
	"it", "its", "this", "that", "these", "those",
	"i", "you", "he", "she", "we", "they", "them", "his", "her",
	"my", "your", "our", "their", "me", "us", "him",
	"do", "does", "did", "done", "have", "has", "had",
	"will", "would", "can", "could", "should", "shall", "may", "might",
	"not", "no", "yes", "so", "too", "very", "just", "than",
	"what", "which", "who", "whom", "when", "where", "why", "how",
	"all", "any", "some", "more", "most", "other", "into", "over",
	"about", "after", "before", "between", "through", "during",
	"there", "here", "out", "up", "down", "again", "also", "only",
}
