package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/MasterVVK/neuro-expert/ai"
	"github.com/MasterVVK/neuro-expert/core"
	"github.com/MasterVVK/neuro-expert/storage"
)

// Retriever produces ranked candidates for a query over one application's
// indexed chunks. It implements three strategies: pure vector similarity,
// a hybrid blend of vector and lexical scores, and an exhaustive full scan.
type Retriever struct {
	chunks   storage.ChunkStore
	embedder ai.Embedder
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(chunks storage.ChunkStore, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if chunks == nil {
		return nil, ErrChunkStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		chunks:   chunks,
		embedder: embedder,
		logger:   slog.Default().With("component", "retriever"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Retrieve selects a strategy for the query and runs it.
// Returns the candidates, the method used, and an error when the
// retrieval backend is unreachable. An empty result set is not an error.
func (r *Retriever) Retrieve(ctx context.Context, applicationID, query string, limit int, cfg core.SearchConfig, monitor SearchMonitor) ([]*core.Candidate, core.Method, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	method := SelectStrategy(query, cfg)
	monitor.Start(query, method)

	var candidates []*core.Candidate
	var err error
	switch method {
	case core.MethodHybrid:
		candidates, err = r.hybrid(ctx, applicationID, query, limit, cfg, monitor)
	default:
		candidates, err = r.Vector(ctx, applicationID, query, limit, monitor)
	}
	if err != nil {
		return nil, method, err
	}

	monitor.Finish(candidates)
	return candidates, method, nil
}

// Vector retrieves the chunks nearest to the query embedding, ranked by
// similarity descending. Ties keep document order.
func (r *Retriever) Vector(ctx context.Context, applicationID, query string, limit int, monitor SearchMonitor) ([]*core.Candidate, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	embedding, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrRetrievalUnavailable, err)
	}

	matches, err := r.chunks.FindSimilar(ctx, applicationID, embedding, limit)
	if err != nil {
		r.logger.Error("error querying for similar chunks", "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrRetrievalUnavailable, err)
	}

	candidates := make([]*core.Candidate, 0, len(matches))
	for _, match := range matches {
		candidate := core.CandidateFromChunk(match.Chunk)
		candidate.VectorScore = match.Score
		candidate.SearchType = core.SearchTypeVector
		candidates = append(candidates, &candidate)
	}

	monitor.AfterVectorSearch(candidates)
	return candidates, nil
}

// Text retrieves chunks by lexical matching in document order.
func (r *Retriever) Text(ctx context.Context, applicationID, query string, limit int, monitor SearchMonitor) ([]*core.Candidate, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	chunks, err := r.chunks.ApplicationChunks(ctx, applicationID)
	if err != nil {
		r.logger.Error("error loading application chunks", "applicationID", applicationID, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrRetrievalUnavailable, err)
	}

	candidates := rankByText(chunks, query, limit)
	monitor.AfterTextSearch(candidates)
	return candidates, nil
}

// hybrid runs the vector and lexical branches with a doubled fetch size,
// merges them by chunk, and blends scores with the configured weights.
// Weights are normalized by their sum; a missing component contributes
// zero. The merged set is ranked by the blended score and cut to limit.
func (r *Retriever) hybrid(ctx context.Context, applicationID, query string, limit int, cfg core.SearchConfig, monitor SearchMonitor) ([]*core.Candidate, error) {
	fetchLimit := 0
	if limit > 0 {
		fetchLimit = limit * 2
	}

	vectorCandidates, err := r.Vector(ctx, applicationID, query, fetchLimit, monitor)
	if err != nil {
		return nil, err
	}
	textCandidates, err := r.Text(ctx, applicationID, query, fetchLimit, monitor)
	if err != nil {
		return nil, err
	}

	vectorWeight, textWeight := normalizeWeights(cfg.VectorWeight, cfg.TextWeight)

	merged := make([]*core.Candidate, 0, len(vectorCandidates)+len(textCandidates))
	byChunk := make(map[core.ID]*core.Candidate, len(vectorCandidates))

	for _, candidate := range vectorCandidates {
		candidate.VectorScore = vectorWeight * candidate.VectorScore
		byChunk[candidate.ChunkID] = candidate
		merged = append(merged, candidate)
	}

	for _, candidate := range textCandidates {
		textScore := *candidate.TextScore
		if existing, ok := byChunk[candidate.ChunkID]; ok {
			// Hit in both branches: blend the components
			existing.VectorScore += textWeight * textScore
			existing.TextScore = candidate.TextScore
			existing.SearchType = core.SearchTypeHybrid
			continue
		}
		candidate.VectorScore = textWeight * textScore
		merged = append(merged, candidate)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].VectorScore > merged[j].VectorScore
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	monitor.AfterBlend(merged)
	return merged, nil
}

// FullScan returns every chunk of the application in document order,
// unscored. Used for exhaustive per-chunk extraction.
func (r *Retriever) FullScan(ctx context.Context, applicationID string) ([]*core.Candidate, error) {
	chunks, err := r.chunks.ApplicationChunks(ctx, applicationID)
	if err != nil {
		r.logger.Error("error loading application chunks", "applicationID", applicationID, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrRetrievalUnavailable, err)
	}

	candidates := make([]*core.Candidate, 0, len(chunks))
	for _, chunk := range chunks {
		candidate := core.CandidateFromChunk(chunk)
		candidates = append(candidates, &candidate)
	}
	return candidates, nil
}

// normalizeWeights scales the blend weights so they sum to one.
// Two zero weights fall back to an even split.
func normalizeWeights(vectorWeight, textWeight float64) (float64, float64) {
	sum := vectorWeight + textWeight
	if sum == 0 {
		return 0.5, 0.5
	}
	return vectorWeight / sum, textWeight / sum
}
