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

package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MasterVVK/neuro-expert/ai"
	"github.com/MasterVVK/neuro-expert/core"
)

// RerankStage re-scores candidates with a cross-encoder relevance model
// and reorders them by the new score.
//
// Reranking is a quality refinement, not a prerequisite: when the rerank
// service is unavailable the stage degrades gracefully, returning the
// candidates in their original order with no rerank scores attached.
type RerankStage struct {
	reranker ai.Reranker
	logger   *slog.Logger
}

// RerankOption configures a RerankStage.
type RerankOption func(*RerankStage) error

// WithRerankLogger sets a custom logger.
// Default is slog.Default().
func WithRerankLogger(logger *slog.Logger) RerankOption {
	return func(s *RerankStage) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewRerankStage creates a new rerank stage.
func NewRerankStage(reranker ai.Reranker, opts ...RerankOption) (*RerankStage, error) {
	if reranker == nil {
		return nil, ErrRerankerRequired
	}

	s := &RerankStage{
		reranker: reranker,
		logger:   slog.Default().With("component", "rerank"),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Rerank scores every candidate against the query and sorts by the rerank
// score, descending. The returned flag reports whether reranking was
// applied; on a scoring failure the input order is returned unchanged
// with nil rerank scores.
func (s *RerankStage) Rerank(ctx context.Context, query string, candidates []*core.Candidate) ([]*core.Candidate, bool) {
	if len(candidates) == 0 {
		return candidates, false
	}

	texts := make([]string, len(candidates))
	for i, candidate := range candidates {
		texts[i] = candidate.Text
	}

	scores, err := s.reranker.Score(ctx, query, texts)
	if err != nil {
		err = fmt.Errorf("%w: %w", core.ErrRerankUnavailable, err)
		s.logger.Warn("rerank failed, keeping retrieval order", "candidates", len(candidates), "err", err)
		return candidates, false
	}
	if len(scores) != len(candidates) {
		s.logger.Warn("rerank returned wrong score count, keeping retrieval order",
			"expected", len(candidates), "got", len(scores))
		return candidates, false
	}

	for i := range candidates {
		score := scores[i]
		candidates[i].RerankScore = &score
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return *candidates[i].RerankScore > *candidates[j].RerankScore
	})

	return candidates, true
}
