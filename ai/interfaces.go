package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateRequest holds the per-call parameters for LLM inference.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Generator runs LLM inference and exposes model metadata.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	// Generate sends a prompt to the inference service and returns the
	// raw text response.
	Generate(ctx context.Context, req GenerateRequest) (string, error)

	// ListModels returns the model names available for generation.
	// Embedding-only models are filtered out.
	ListModels(ctx context.Context) ([]string, error)

	// ContextLength returns the context window size of a model in tokens.
	ContextLength(ctx context.Context, model string) (int, error)
}

// Reranker performs second-pass relevance scoring of texts against a query
// using a cross-encoder model. Scores are aligned by index with the input.
// Implementations must be thread-safe for concurrent use.
type Reranker interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Provider aggregates AI services for convenient initialization and
// lifecycle management. Services returned by a provider share configuration
// and underlying HTTP resources.
type Provider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the LLM inference service.
	Generator() Generator

	// Reranker returns the relevance scoring service.
	Reranker() Reranker

	// Close releases resources held by the provider and its services.
	Close() error
}
