package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MasterVVK/neuro-expert/core"
	"github.com/MasterVVK/neuro-expert/storage"
	"github.com/dgraph-io/badger/v4"
)

// ChunkStore implements storage.ChunkStore on BadgerDB.
// Chunks are stored under a record key and indexed per application in
// document order, so full scans and similarity search iterate one prefix.
type ChunkStore struct {
	backend *Backend
	logger  *slog.Logger

	mu        sync.Mutex
	sequences map[string]*badger.Sequence // per-application position sequences
}

var _ storage.ChunkStore = (*ChunkStore)(nil)

// NewChunkStore creates a chunk store on the given backend.
func NewChunkStore(backend *Backend) (*ChunkStore, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	return &ChunkStore{
		backend:   backend,
		logger:    slog.Default().With("component", "chunk-store"),
		sequences: make(map[string]*badger.Sequence),
	}, nil
}

// nextPosition assigns the next document position for an application.
// Positions start at 1; zero marks an unassigned position on input.
func (s *ChunkStore) nextPosition(applicationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[applicationID]
	if !ok {
		var err error
		seq, err = s.backend.GetSequence(makePositionSeqName(applicationID))
		if err != nil {
			return 0, err
		}
		s.sequences[applicationID] = seq
	}

	next, err := seq.Next()
	if err != nil {
		return 0, err
	}
	return int(next) + 1, nil
}

// AddChunks stores one or more chunks.
func (s *ChunkStore) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	for _, chunk := range chunks {
		if chunk.Position == 0 {
			position, err := s.nextPosition(chunk.ApplicationID)
			if err != nil {
				return nil, fmt.Errorf("failed to assign position: %w", err)
			}
			chunk.Position = position
		}
		if chunk.Id == 0 {
			chunk.Id = core.IDFromContent(fmt.Sprintf("%s|%s|%d",
				chunk.ApplicationID, chunk.DocumentID, chunk.Position))
		}
		if chunk.InsertedAt.IsZero() {
			chunk.InsertedAt = now
		}
	}

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			if err := tx.Set(makeChunkKey(chunk.Id), storage.MarshalChunk(chunk)); err != nil {
				return err
			}

			idBytes := make([]byte, 8)
			binary.BigEndian.PutUint64(idBytes, uint64(chunk.Id))
			if err := tx.Set(makeChunkAppKey(chunk.ApplicationID, chunk.Position), idBytes); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// GetChunk retrieves a single chunk by ID.
func (s *ChunkStore) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var chunk *core.Chunk

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeChunkKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return fmt.Errorf("%w: chunk %d", core.ErrNotFound, id)
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var err error
			chunk, err = storage.UnmarshalChunk(val)
			return err
		})
	}, false)
	if err != nil {
		return nil, err
	}

	return chunk, nil
}

// ApplicationChunks retrieves every chunk of an application in document order.
func (s *ChunkStore) ApplicationChunks(ctx context.Context, applicationID string) ([]*core.Chunk, error) {
	var chunks []*core.Chunk

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkAppPrefix(applicationID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var id core.ID
			err := iter.Item().Value(func(val []byte) error {
				id = core.ID(binary.BigEndian.Uint64(val))
				return nil
			})
			if err != nil {
				return err
			}

			item, err := tx.Get(makeChunkKey(id))
			if err != nil {
				if err == badger.ErrKeyNotFound {
					// Index entry without a record; skip
					s.logger.Warn("dangling chunk index entry", "chunkID", id)
					continue
				}
				return err
			}
			err = item.Value(func(val []byte) error {
				chunk, err := storage.UnmarshalChunk(val)
				if err != nil {
					return err
				}
				chunks = append(chunks, chunk)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// CountApplicationChunks returns the number of chunks indexed for an application.
func (s *ChunkStore) CountApplicationChunks(ctx context.Context, applicationID string) (int, error) {
	count := 0

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkAppPrefix(applicationID)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// FindSimilar ranks the application's chunks by cosine similarity to the
// query vector (dot product over normalized vectors), descending. Chunks
// without embeddings are skipped. Ties keep document order: the underlying
// iteration is position-ordered and the sort is stable.
func (s *ChunkStore) FindSimilar(ctx context.Context, applicationID string, vector []float32, limit int) ([]storage.ScoredChunk, error) {
	chunks, err := s.ApplicationChunks(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	results := make([]storage.ScoredChunk, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			continue
		}
		results = append(results, storage.ScoredChunk{
			Chunk: chunk,
			Score: float64(dotProduct(vector, chunk.Vector)),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// DeleteApplication removes all chunks of an application.
func (s *ChunkStore) DeleteApplication(ctx context.Context, applicationID string) (int, error) {
	deleted := 0

	err := s.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkAppPrefix(applicationID)
		iter := tx.NewIterator(opts)

		var indexKeys [][]byte
		var recordKeys [][]byte
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			indexKeys = append(indexKeys, item.KeyCopy(nil))
			err := item.Value(func(val []byte) error {
				recordKeys = append(recordKeys, makeChunkKey(core.ID(binary.BigEndian.Uint64(val))))
				return nil
			})
			if err != nil {
				iter.Close()
				return err
			}
		}
		iter.Close()

		for _, key := range recordKeys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		for _, key := range indexKeys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		deleted = len(recordKeys)
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// Close releases the position sequences. The shared backend is closed by
// its owner.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, seq := range s.sequences {
		if err := seq.Release(); err != nil {
			s.logger.Warn("failed to release sequence", "name", name, "err", err)
		}
	}
	s.sequences = make(map[string]*badger.Sequence)
	return nil
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
