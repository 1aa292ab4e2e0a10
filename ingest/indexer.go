package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MasterVVK/neuro-expert/ai"
	"github.com/MasterVVK/neuro-expert/core"
	"github.com/MasterVVK/neuro-expert/storage"
	"github.com/panjf2000/ants/v2"
)

const (
	defaultBatchSize  = 16
	defaultPoolSize   = 4
	defaultMaxRetries = 3
	defaultBaseDelay  = 2 * time.Second
)

// ProgressFunc receives indexing progress: chunks embedded so far out
// of the total.
type ProgressFunc func(done, total int)

// Indexer embeds document chunks and stores them for retrieval.
// Embedding batches run concurrently on a worker pool; storage writes
// happen once, in document order, after every batch succeeded.
type Indexer struct {
	chunks   storage.ChunkStore
	embedder ai.Embedder
	pool     *ants.Pool

	batchSize  int
	maxRetries int
	baseDelay  time.Duration
	logger     *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithPoolSize sets the embedding worker pool size.
// Default is 4.
func WithPoolSize(size int) Option {
	return func(ix *Indexer) error {
		if size < 1 {
			size = 1
		}
		if ix.pool != nil {
			ix.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		ix.pool = pool
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per call.
// Default is 16.
func WithBatchSize(size int) Option {
	return func(ix *Indexer) error {
		if size < 1 {
			size = 1
		}
		ix.batchSize = size
		return nil
	}
}

// WithRetry sets the retry policy for embedding calls.
// Defaults are 3 attempts with a 2s base delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(ix *Indexer) error {
		if maxRetries < 1 {
			maxRetries = 1
		}
		ix.maxRetries = maxRetries
		ix.baseDelay = baseDelay
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// NewIndexer creates a new indexer.
func NewIndexer(chunks storage.ChunkStore, embedder ai.Embedder, opts ...Option) (*Indexer, error) {
	if chunks == nil {
		return nil, ErrChunkStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	pool, err := ants.NewPool(defaultPoolSize)
	if err != nil {
		return nil, err
	}

	ix := &Indexer{
		chunks:     chunks,
		embedder:   embedder,
		pool:       pool,
		batchSize:  defaultBatchSize,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		logger:     slog.Default().With("component", "indexer"),
	}

	for _, opt := range opts {
		if optErr := opt(ix); optErr != nil {
			ix.Release()
			return nil, optErr
		}
	}

	return ix, nil
}

// Release releases the worker pool.
// The indexer should not be used after calling Release.
func (ix *Indexer) Release() {
	if ix.pool != nil {
		ix.pool.Release()
	}
}

// IndexDocument splits a markdown document, embeds every chunk and
// stores the result under the application. Returns the number of
// chunks indexed.
func (ix *Indexer) IndexDocument(ctx context.Context, applicationID, documentID, markdown string, progress ProgressFunc) (int, error) {
	chunks := SplitMarkdown(documentID, markdown, DefaultMaxChunkChars)
	if len(chunks) == 0 {
		return 0, ErrEmptyDocument
	}
	for _, chunk := range chunks {
		chunk.ApplicationID = applicationID
	}

	if err := ix.embedChunks(ctx, chunks, progress); err != nil {
		return 0, err
	}

	// Single ordered write keeps document order intact regardless of
	// how the embedding batches interleaved
	if _, err := ix.chunks.AddChunks(ctx, chunks...); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	ix.logger.Info("document indexed", "applicationID", applicationID,
		"documentID", documentID, "chunks", len(chunks))
	return len(chunks), nil
}

// embedChunks fills chunk.Vector in place, batch by batch on the pool.
func (ix *Indexer) embedChunks(ctx context.Context, chunks []*core.Chunk, progress ProgressFunc) error {
	total := len(chunks)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	done := 0

	for start := 0; start < total; start += ix.batchSize {
		end := min(start+ix.batchSize, total)
		batch := chunks[start:end]

		wg.Add(1)
		submitErr := ix.pool.Submit(func() {
			defer wg.Done()

			err := ix.embedBatch(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			done += len(batch)
			if progress != nil {
				progress(done, total)
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = submitErr
			}
			mu.Unlock()
			break
		}
	}

	wg.Wait()
	return firstErr
}

func (ix *Indexer) embedBatch(ctx context.Context, batch []*core.Chunk) error {
	texts := make([]string, len(batch))
	for i, chunk := range batch {
		texts[i] = chunk.Text
	}

	var embeddings [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var embErr error
		embeddings, embErr = ix.embedder.EmbedTexts(ctx, texts)
		return embErr
	}, ix.maxRetries, ix.baseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", ix.maxRetries, err)
	}
	if len(embeddings) != len(batch) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(embeddings))
	}

	for i, chunk := range batch {
		chunk.Vector = NormalizeVector(embeddings[i])
	}
	return nil
}
