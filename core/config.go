// Copyright 2025 Neuro-Expert Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"unicode/utf8"
)

// RerankAll is the sentinel RerankLimit meaning "rerank every retrieved
// chunk of the application's document set". Expensive, user-opted-in.
const RerankAll = 0

// SearchConfig controls retrieval and LLM post-processing for one task.
// It is validated once at submission and immutable afterwards.
type SearchConfig struct {
	// SearchLimit is the maximum number of candidates returned by retrieval.
	SearchLimit int

	// UseReranker enables the second-pass relevance scoring stage.
	UseReranker bool

	// RerankLimit bounds how many candidates are fed to the reranker.
	// RerankAll (0) means the full candidate set.
	RerankLimit int

	// UseSmartSearch enables query-length based strategy selection:
	// queries shorter than HybridThreshold use hybrid search.
	UseSmartSearch bool

	// VectorWeight and TextWeight blend the two hybrid score components.
	// Both must be within [0, 1]; they need not sum to 1.
	VectorWeight float64
	TextWeight   float64

	// HybridThreshold is the query length (in runes) below which smart
	// search switches to the hybrid strategy.
	HybridThreshold int

	// UseLLM enables the extraction stage over the retrieved candidates.
	UseLLM bool

	// LLM holds the extraction stage configuration. Ignored unless UseLLM.
	LLM LLMConfig
}

// LLMConfig holds the extraction stage settings for one task.
type LLMConfig struct {
	// Model is the inference model identifier, e.g. "gemma3:27b".
	Model string

	// Query optionally overrides the search query in the prompt template.
	// Empty means the search query is used.
	Query string

	// PromptTemplate is the extraction prompt with {query} and {context}
	// placeholders.
	PromptTemplate string

	Temperature float64
	MaxTokens   int

	// UseFullScan triggers exhaustive per-chunk extraction when targeted
	// retrieval reports the value as not found.
	UseFullScan bool
}

// DefaultSearchConfig returns the retrieval defaults used for checklist
// parameters: top-3 candidates, reranking over 10, smart search with a
// 10-rune hybrid threshold.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		SearchLimit:     3,
		RerankLimit:     10,
		UseSmartSearch:  true,
		VectorWeight:    0.5,
		TextWeight:      0.5,
		HybridThreshold: 10,
		LLM:             DefaultLLMConfig(),
	}
}

// DefaultLLMConfig returns the extraction defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Model:       "gemma3:27b",
		Temperature: 0.1,
		MaxTokens:   1000,
	}
}

// ValidateQuery checks the query text submitted with a task.
func ValidateQuery(query string) error {
	if query == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyQuery)
	}
	return nil
}

// Validate checks a search configuration before a task is created.
// Violations surface synchronously to the submitter; no task is created.
func (c *SearchConfig) Validate() error {
	if c.SearchLimit <= 0 {
		return fmt.Errorf("%w: search limit must be positive, got %d", ErrValidation, c.SearchLimit)
	}
	if c.RerankLimit < 0 {
		return fmt.Errorf("%w: rerank limit must be non-negative, got %d", ErrValidation, c.RerankLimit)
	}
	if c.VectorWeight < 0 || c.VectorWeight > 1 {
		return fmt.Errorf("%w: vector weight must be within [0, 1], got %g", ErrValidation, c.VectorWeight)
	}
	if c.TextWeight < 0 || c.TextWeight > 1 {
		return fmt.Errorf("%w: text weight must be within [0, 1], got %g", ErrValidation, c.TextWeight)
	}
	if c.UseSmartSearch && c.HybridThreshold <= 0 {
		return fmt.Errorf("%w: hybrid threshold must be positive, got %d", ErrValidation, c.HybridThreshold)
	}
	if c.UseLLM {
		if err := c.LLM.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the extraction stage configuration.
func (c *LLMConfig) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: LLM model is required", ErrValidation)
	}
	if c.PromptTemplate == "" {
		return fmt.Errorf("%w: LLM prompt template is required", ErrValidation)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be within [0, 2], got %g", ErrValidation, c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max tokens must be positive, got %d", ErrValidation, c.MaxTokens)
	}
	return nil
}

// QueryLength is the query length the strategy selector compares against
// HybridThreshold. Counted in runes so Cyrillic queries measure correctly.
func QueryLength(query string) int {
	return utf8.RuneCountInString(query)
}
