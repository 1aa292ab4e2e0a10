package core

import (
	"encoding/binary"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// SearchType identifies how a candidate was matched during retrieval.
type SearchType int

const (
	// SearchTypeVector marks a candidate found by vector similarity only.
	SearchTypeVector SearchType = iota + 1
	// SearchTypeText marks a candidate found by lexical matching only.
	SearchTypeText
	// SearchTypeHybrid marks a candidate with a blended vector+text score.
	SearchTypeHybrid
)

// String returns the wire representation of the search type.
func (s SearchType) String() string {
	switch s {
	case SearchTypeVector:
		return "vector"
	case SearchTypeText:
		return "text"
	case SearchTypeHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// Method identifies the retrieval strategy used to answer a query.
type Method int

const (
	// MethodVector is pure nearest-neighbor retrieval.
	MethodVector Method = iota + 1
	// MethodHybrid blends vector similarity with lexical relevance.
	MethodHybrid
	// MethodFullScan is exhaustive per-chunk evaluation, used as a fallback.
	MethodFullScan
)

// String returns the wire representation of the retrieval method.
func (m Method) String() string {
	switch m {
	case MethodVector:
		return "vector"
	case MethodHybrid:
		return "hybrid"
	case MethodFullScan:
		return "full_scan"
	default:
		return "unknown"
	}
}

// Chunk is a retrievable unit of an indexed document.
// Position preserves document order and is used for full scans and as
// a stable tie-break when similarity scores are equal.
type Chunk struct {
	Id            ID
	ApplicationID string
	DocumentID    string
	Page          int
	Section       string
	ContentType   string // "text" or "table"
	Text          string
	Vector        []float32 // Normalized embedding (populated by the indexer)
	Position      int       // Insertion order within the application's document set
	InsertedAt    time.Time
}

// Candidate is a retrieved chunk with scoring provenance.
// VectorScore is always set for targeted retrieval; TextScore and
// RerankScore stay nil unless the corresponding stage produced them.
type Candidate struct {
	ChunkID       ID
	ApplicationID string
	DocumentID    string
	Page          int
	Section       string
	ContentType   string
	Text          string
	VectorScore   float64
	TextScore     *float64
	RerankScore   *float64
	SearchType    SearchType
}

// EffectiveScore returns the score candidates are ordered by:
// the rerank score when present, otherwise the blended/vector score.
func (c *Candidate) EffectiveScore() float64 {
	if c.RerankScore != nil {
		return *c.RerankScore
	}
	return c.VectorScore
}

// CandidateFromChunk builds an unscored candidate from a stored chunk.
func CandidateFromChunk(chunk *Chunk) Candidate {
	return Candidate{
		ChunkID:       chunk.Id,
		ApplicationID: chunk.ApplicationID,
		DocumentID:    chunk.DocumentID,
		Page:          chunk.Page,
		Section:       chunk.Section,
		ContentType:   chunk.ContentType,
		Text:          chunk.Text,
		SearchType:    SearchTypeVector,
	}
}

// ExtractionResult is the structured answer produced by the LLM stage.
type ExtractionResult struct {
	Value         string
	Confidence    float64 // In [0, 1]
	Format        string  // Response format the parser recognized
	RawResponse   string
	Method        Method
	Sources       []Candidate // Ranked candidates the answer was extracted from
	ScannedChunks int         // Chunks evaluated when Method is MethodFullScan
}

// Found reports whether the extraction produced a positive answer.
func (r *ExtractionResult) Found() bool {
	return r.Value != "" && r.Format != FormatNotFound && r.Format != FormatEmpty
}

// Response parser format markers.
const (
	FormatEmpty      = "empty"
	FormatNotFound   = "not_found"
	FormatJSON       = "json"
	FormatJSONBlock  = "json_block"
	FormatPrefix     = "result_prefix"
	FormatKeyValue   = "key_value"
	FormatStructured = "structured"
	FormatPlainText  = "plain_text"
)

// Parameter is a saved extraction query: search query, LLM prompt and
// retrieval configuration, whose result is one row of an analysis report.
type Parameter struct {
	Id          ID
	Name        string
	SearchQuery string
	Config      SearchConfig
}

// Checklist is an ordered set of parameters analyzed together.
type Checklist struct {
	Id         ID
	Name       string
	Parameters []Parameter
	InsertedAt time.Time
}
