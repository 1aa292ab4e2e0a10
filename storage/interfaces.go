package storage

import (
	"context"

	"github.com/MasterVVK/neuro-expert/core"
)

// ScoredChunk is a chunk matched by vector similarity search.
type ScoredChunk struct {
	Chunk *core.Chunk
	Score float64
}

// ChunkStore provides read/write access to indexed document chunks.
// It is the substrate of the vector index: chunks carry normalized
// embeddings and FindSimilar ranks them by cosine similarity.
// Implementations must be thread-safe and support concurrent access.
type ChunkStore interface {
	// AddChunks stores one or more chunks. Chunks with Id=0 get a
	// content-based ID; Position is assigned from the application's
	// insertion sequence when zero. Returns the stored chunks.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunk retrieves a single chunk by ID.
	// Returns core.ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// ApplicationChunks retrieves every chunk of an application in
	// document order (ascending Position). Used by full scans.
	ApplicationChunks(ctx context.Context, applicationID string) ([]*core.Chunk, error)

	// CountApplicationChunks returns the number of chunks indexed for
	// an application.
	CountApplicationChunks(ctx context.Context, applicationID string) (int, error)

	// FindSimilar ranks the application's chunks by cosine similarity to
	// the query vector, descending, up to limit results. Ties are broken
	// by document order (stable). An empty result is not an error.
	FindSimilar(ctx context.Context, applicationID string, vector []float32, limit int) ([]ScoredChunk, error)

	// DeleteApplication removes all chunks of an application.
	// Returns the number of deleted chunks.
	DeleteApplication(ctx context.Context, applicationID string) (int, error)

	// Close closes the storage backend and releases resources.
	Close() error
}

// ChecklistStore provides read/write access to saved checklists.
type ChecklistStore interface {
	// AddChecklist stores a checklist. A zero Id is replaced with a
	// content-based ID derived from the checklist name.
	AddChecklist(ctx context.Context, checklist *core.Checklist) (*core.Checklist, error)

	// GetChecklist retrieves a checklist by ID.
	// Returns core.ErrNotFound if it doesn't exist.
	GetChecklist(ctx context.Context, id core.ID) (*core.Checklist, error)

	// Checklists lists all stored checklists.
	Checklists(ctx context.Context) ([]*core.Checklist, error)

	// DeleteChecklist removes a checklist by ID.
	// Returns core.ErrNotFound if it doesn't exist.
	DeleteChecklist(ctx context.Context, id core.ID) error

	// Close closes the storage backend and releases resources.
	Close() error
}
