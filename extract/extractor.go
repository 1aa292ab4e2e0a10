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

package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MasterVVK/neuro-expert/ai"
	"github.com/MasterVVK/neuro-expert/core"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
)

// Extractor runs the LLM extraction stage: it assembles the prompt from
// retrieved candidates and parses the model's answer into a structured
// result. Unlike reranking, the LLM is essential to the requested
// output, so inference failures are fatal to the task.
type Extractor struct {
	generator   ai.Generator
	logger      *slog.Logger
	maxAttempts int
	baseDelay   time.Duration
}

// Option configures an Extractor.
type Option func(*Extractor) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithRetry overrides the inference retry policy.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(e *Extractor) error {
		if maxAttempts <= 0 {
			return ai.ErrInvalidMaxAttempts
		}
		e.maxAttempts = maxAttempts
		e.baseDelay = baseDelay
		return nil
	}
}

// NewExtractor creates a new extractor.
func NewExtractor(generator ai.Generator, opts ...Option) (*Extractor, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}

	e := &Extractor{
		generator:   generator,
		logger:      slog.Default().With("component", "extractor"),
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// BuildPrompt fills the {query} and {context} placeholders of a prompt
// template.
func BuildPrompt(template, query, context string) string {
	prompt := strings.ReplaceAll(template, "{context}", context)
	return strings.ReplaceAll(prompt, "{query}", query)
}

// promptQuery returns the query the prompt should carry: the config
// override when set, the search query otherwise.
func promptQuery(searchQuery string, cfg core.LLMConfig) string {
	if cfg.Query != "" {
		return cfg.Query
	}
	return searchQuery
}

// contextWindow looks up the model's context length, falling back to
// the default window when the metadata endpoint is unreachable.
func (e *Extractor) contextWindow(ctx context.Context, model string) int {
	length, err := e.generator.ContextLength(ctx, model)
	if err != nil {
		e.logger.Warn("failed to get model context length, using default",
			"model", model, "default", DefaultContextWindow, "err", err)
		return DefaultContextWindow
	}
	e.logger.Debug("model context length", "model", model, "tokens", length)
	return length
}

// generate runs inference with retries. All attempts failing maps to
// core.ErrLLMUnavailable.
func (e *Extractor) generate(ctx context.Context, cfg core.LLMConfig, prompt string) (string, error) {
	var response string
	err := ai.RetryWithBackoff(ctx, func() error {
		var genErr error
		response, genErr = e.generator.Generate(ctx, ai.GenerateRequest{
			Model:       cfg.Model,
			Prompt:      prompt,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
		return genErr
	}, e.maxAttempts, e.baseDelay)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %w", core.ErrLLMUnavailable, err)
	}
	return response, nil
}

// Extract answers the query from the retrieved candidates.
// An empty candidate set short-circuits to a not-found result without
// touching the model.
func (e *Extractor) Extract(ctx context.Context, query string, candidates []*core.Candidate, cfg core.LLMConfig, method core.Method) (*core.ExtractionResult, error) {
	if len(candidates) == 0 {
		return &core.ExtractionResult{
			Value:      NotFoundValue,
			Confidence: 0.0,
			Format:     core.FormatEmpty,
			Method:     method,
		}, nil
	}

	window := e.contextWindow(ctx, cfg.Model)
	documentContext := FormatContext(candidates, window, true)
	prompt := BuildPrompt(cfg.PromptTemplate, promptQuery(query, cfg), documentContext)

	response, err := e.generate(ctx, cfg, prompt)
	if err != nil {
		return nil, err
	}

	result := ParseResponse(response, query)
	result.Method = method
	result.Sources = dereference(candidates)
	return &result, nil
}

// ExtractFullScan evaluates the application's chunks one by one until a
// chunk yields a positive answer. Used as a fallback when targeted
// retrieval reports the value as not found. Cancellation is honored
// between chunks; ScannedChunks records how far the scan got.
func (e *Extractor) ExtractFullScan(ctx context.Context, query string, candidates []*core.Candidate, cfg core.LLMConfig) (*core.ExtractionResult, error) {
	window := e.contextWindow(ctx, cfg.Model)
	q := promptQuery(query, cfg)

	e.logger.Info("starting full scan", "query", query, "chunks", len(candidates))

	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		documentContext := FormatContext([]*core.Candidate{candidate}, window, false)
		prompt := BuildPrompt(cfg.PromptTemplate, q, documentContext)

		response, err := e.generate(ctx, cfg, prompt)
		if err != nil {
			return nil, err
		}

		result := ParseResponse(response, query)
		if result.Found() {
			e.logger.Info("full scan hit", "query", query, "chunk", i+1, "of", len(candidates))
			result.Method = core.MethodFullScan
			result.Sources = []core.Candidate{*candidate}
			result.ScannedChunks = i + 1
			return &result, nil
		}
	}

	e.logger.Info("full scan exhausted without a hit", "query", query, "chunks", len(candidates))
	return &core.ExtractionResult{
		Value:         NotFoundValue,
		Confidence:    0.1,
		Format:        core.FormatNotFound,
		Method:        core.MethodFullScan,
		Sources:       dereference(candidates),
		ScannedChunks: len(candidates),
	}, nil
}

func dereference(candidates []*core.Candidate) []core.Candidate {
	out := make([]core.Candidate, len(candidates))
	for i, candidate := range candidates {
		out[i] = *candidate
	}
	return out
}
