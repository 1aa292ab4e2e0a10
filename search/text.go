package search

import (
	"strings"

	"github.com/MasterVVK/neuro-expert/core"
)

// Stop words filtered out of queries before lexical matching
var stopWords = map[string]bool{
	"и": true, "в": true, "на": true, "с": true, "по": true, "для": true,
	"не": true, "что": true, "как": true, "от": true, "до": true, "из": true,
	"к": true, "о": true, "у": true, "за": true, "или": true, "это": true,
	"the": true, "a": true, "an": true, "of": true, "and": true, "in": true,
	"to": true, "for": true, "is": true, "on": true, "with": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation,
// and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}«»"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// matchesQuery reports whether every query token occurs in the chunk text.
// Tokens are matched as substrings so inflected forms still hit
// ("устав" matches "уставе").
func matchesQuery(text string, queryTokens []string) bool {
	if len(queryTokens) == 0 {
		return false
	}
	lowered := strings.ToLower(text)
	for _, token := range queryTokens {
		if !strings.Contains(lowered, token) {
			return false
		}
	}
	return true
}

// rankByText performs lexical retrieval over an application's chunks.
// Matches keep document order and receive a positional score:
// 1.0 for the first match, decreasing by 0.05 per match, floored at 0.1.
func rankByText(chunks []*core.Chunk, query string, limit int) []*core.Candidate {
	queryTokens := tokenizeAndFilter(query)

	var candidates []*core.Candidate
	for _, chunk := range chunks {
		if !matchesQuery(chunk.Text, queryTokens) {
			continue
		}

		score := 1.0 - 0.05*float64(len(candidates))
		if score < 0.1 {
			score = 0.1
		}

		candidate := core.CandidateFromChunk(chunk)
		candidate.SearchType = core.SearchTypeText
		candidate.TextScore = &score
		candidates = append(candidates, &candidate)

		if limit > 0 && len(candidates) >= limit {
			break
		}
	}

	return candidates
}
