package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MasterVVK/neuro-expert/ai/mock"
	"github.com/MasterVVK/neuro-expert/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndexer(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) (*Indexer, *badger.Backend) {
	t.Helper()

	chunks, checklists, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() {
		checklists.Close()
		chunks.Close()
		backend.Close()
	})

	opts = append(opts, WithBatchSize(2))
	ix, err := NewIndexer(chunks, embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(ix.Release)

	return ix, backend
}

func TestIndexDocument(t *testing.T) {
	ctx := context.Background()
	doc := "# Раздел\n\nПервый абзац.\n\nВторой абзац.\n\nТретий абзац.\n\nЧетвёртый абзац."

	t.Run("short paragraphs pack into one chunk", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		ix, _ := newTestIndexer(t, embedder)

		count, err := ix.IndexDocument(ctx, "app-1", "doc-1", doc, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("preserves document order across batches", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()

		chunkStore, checklists, backend, err := badger.NewMemoryStores()
		require.NoError(t, err)
		defer checklists.Close()
		defer chunkStore.Close()
		defer backend.Close()

		ix, err := NewIndexer(chunkStore, embedder, WithBatchSize(1), WithPoolSize(4))
		require.NoError(t, err)
		defer ix.Release()

		long := "# А\n\nАбзац один.\n\n# Б\n\nАбзац два.\n\n# В\n\nАбзац три.\n\n# Г\n\nАбзац четыре."
		count, err := ix.IndexDocument(ctx, "app-1", "doc-1", long, nil)
		require.NoError(t, err)
		require.Equal(t, 4, count)

		stored, err := chunkStore.ApplicationChunks(ctx, "app-1")
		require.NoError(t, err)
		require.Len(t, stored, 4)
		assert.Equal(t, "Абзац один.", stored[0].Text)
		assert.Equal(t, "Абзац два.", stored[1].Text)
		assert.Equal(t, "Абзац три.", stored[2].Text)
		assert.Equal(t, "Абзац четыре.", stored[3].Text)
		for _, chunk := range stored {
			assert.Equal(t, "app-1", chunk.ApplicationID)
			assert.NotEmpty(t, chunk.Vector)
		}
	})

	t.Run("vectors are normalized before storage", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
			vectors := make([][]float32, len(texts))
			for i := range texts {
				vectors[i] = []float32{3, 4, 0}
			}
			return vectors, nil
		}

		chunkStore, checklists, backend, err := badger.NewMemoryStores()
		require.NoError(t, err)
		defer checklists.Close()
		defer chunkStore.Close()
		defer backend.Close()

		ix, err := NewIndexer(chunkStore, embedder)
		require.NoError(t, err)
		defer ix.Release()

		_, err = ix.IndexDocument(ctx, "app-1", "doc-1", "Один абзац.", nil)
		require.NoError(t, err)

		stored, err := chunkStore.ApplicationChunks(ctx, "app-1")
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.InDelta(t, 0.6, stored[0].Vector[0], 1e-6)
		assert.InDelta(t, 0.8, stored[0].Vector[1], 1e-6)
	})

	t.Run("reports progress per batch", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		ix, _ := newTestIndexer(t, embedder)

		var mu sync.Mutex
		var totals []int
		var lastDone int

		long := "# А\n\nАбзац один.\n\n# Б\n\nАбзац два.\n\n# В\n\nАбзац три."
		count, err := ix.IndexDocument(ctx, "app-2", "doc-2", long, func(done, total int) {
			mu.Lock()
			defer mu.Unlock()
			totals = append(totals, total)
			if done > lastDone {
				lastDone = done
			}
		})
		require.NoError(t, err)
		require.Equal(t, 3, count)

		mu.Lock()
		defer mu.Unlock()
		assert.NotEmpty(t, totals)
		for _, total := range totals {
			assert.Equal(t, 3, total)
		}
		assert.Equal(t, 3, lastDone)
	})

	t.Run("embedding failure fails the whole document", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(_ context.Context, _ []string) ([][]float32, error) {
			return nil, errors.New("embedding service down")
		}

		chunkStore, checklists, backend, err := badger.NewMemoryStores()
		require.NoError(t, err)
		defer checklists.Close()
		defer chunkStore.Close()
		defer backend.Close()

		ix, err := NewIndexer(chunkStore, embedder,
			WithRetry(2, time.Millisecond))
		require.NoError(t, err)
		defer ix.Release()

		_, err = ix.IndexDocument(ctx, "app-3", "doc-3", "Абзац.", nil)
		require.Error(t, err)

		// Nothing stored on failure
		n, err := chunkStore.CountApplicationChunks(ctx, "app-3")
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("transient embedding failure retries and succeeds", func(t *testing.T) {
		attempts := 0
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("temporary failure")
			}
			vectors := make([][]float32, len(texts))
			for i := range texts {
				vectors[i] = []float32{1, 0}
			}
			return vectors, nil
		}

		chunkStore, checklists, backend, err := badger.NewMemoryStores()
		require.NoError(t, err)
		defer checklists.Close()
		defer chunkStore.Close()
		defer backend.Close()

		ix, err := NewIndexer(chunkStore, embedder,
			WithRetry(3, time.Millisecond))
		require.NoError(t, err)
		defer ix.Release()

		count, err := ix.IndexDocument(ctx, "app-4", "doc-4", "Абзац.", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.Equal(t, 2, attempts)
	})

	t.Run("empty document", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		ix, _ := newTestIndexer(t, embedder)

		_, err := ix.IndexDocument(ctx, "app-5", "doc-5", "\n\n", nil)
		assert.ErrorIs(t, err, ErrEmptyDocument)
	})
}

func TestNewIndexerValidation(t *testing.T) {
	embedder := mock.NewMockEmbedder()

	chunkStore, checklists, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	defer checklists.Close()
	defer chunkStore.Close()
	defer backend.Close()

	_, err = NewIndexer(nil, embedder)
	assert.ErrorIs(t, err, ErrChunkStoreRequired)

	_, err = NewIndexer(chunkStore, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}
