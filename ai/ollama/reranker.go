package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MasterVVK/neuro-expert/ai"
)

// rerankRequest is the request payload for the rerank endpoint.
type rerankRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
	Model      string   `json:"model,omitempty"`
}

// rerankResult is a single result in the rerank response.
type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// rerankResponse is the response from the rerank endpoint.
type rerankResponse struct {
	Results []rerankResult `json:"results"`
	Model   string         `json:"model"`
}

// Reranker implements ai.Reranker via HTTP calls to a cross-encoder
// scoring service (bge-reranker behind a /rerank endpoint).
type Reranker struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// newReranker is an internal constructor that returns the concrete type.
func newReranker(config *ai.Config) *Reranker {
	return &Reranker{
		baseURL: strings.TrimRight(config.RerankHost, "/"),
		model:   config.RerankModel,
		client:  &http.Client{Timeout: config.Timeout},
		logger:  slog.Default().With("component", "reranker"),
	}
}

// NewReranker creates a new reranker using the provided configuration.
//
// Returns ai.Reranker interface to enforce abstraction.
func NewReranker(config *ai.Config) ai.Reranker {
	config.Normalize()
	return newReranker(config)
}

// Score scores texts against the query with the cross-encoder model.
// The returned scores are aligned by index with the input texts.
func (r *Reranker) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}

	payload, err := json.Marshal(rerankRequest{
		Query:      query,
		Candidates: texts,
		Model:      r.model,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Error("rerank request failed", "candidates", len(texts), "err", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	if len(result.Results) != len(texts) {
		return nil, fmt.Errorf("rerank: score count mismatch: expected %d, got %d",
			len(texts), len(result.Results))
	}

	// Results may arrive sorted by score; realign by index.
	scores := make([]float64, len(texts))
	for _, item := range result.Results {
		if item.Index < 0 || item.Index >= len(scores) {
			return nil, fmt.Errorf("rerank: result index %d out of range", item.Index)
		}
		scores[item.Index] = item.Score
	}
	return scores, nil
}
