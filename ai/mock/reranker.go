package mock

import (
	"context"
	"strings"
)

// MockReranker is a test double for ai.Reranker.
// It allows custom behavior injection via function fields.
type MockReranker struct {
	// ScoreFunc is called by Score if set.
	// If nil, uses default token-overlap scoring.
	ScoreFunc func(ctx context.Context, query string, texts []string) ([]float64, error)

	callCount int
}

// NewMockReranker creates a mock reranker with default behavior.
func NewMockReranker() *MockReranker {
	return &MockReranker{}
}

// Score scores texts by the fraction of query tokens they contain.
// Deterministic, so tests can predict the reranked order.
func (m *MockReranker) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	m.callCount++

	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, query, texts)
	}

	queryTokens := strings.Fields(strings.ToLower(query))
	scores := make([]float64, len(texts))
	for i, text := range texts {
		if len(queryTokens) == 0 {
			continue
		}
		lower := strings.ToLower(text)
		matched := 0
		for _, token := range queryTokens {
			if strings.Contains(lower, token) {
				matched++
			}
		}
		scores[i] = float64(matched) / float64(len(queryTokens))
	}
	return scores, nil
}

// CallCount returns the number of times Score was called.
func (m *MockReranker) CallCount() int {
	return m.callCount
}

// Reset clears the call count and custom functions.
func (m *MockReranker) Reset() {
	m.callCount = 0
	m.ScoreFunc = nil
}
