package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDFromContent(t *testing.T) {
	id1 := IDFromContent("application-1/doc.md/0")
	id2 := IDFromContent("application-1/doc.md/0")
	id3 := IDFromContent("application-1/doc.md/1")

	assert.Equal(t, id1, id2, "identical content must produce identical IDs")
	assert.NotEqual(t, id1, id3)
}

func TestCandidateEffectiveScore(t *testing.T) {
	c := Candidate{VectorScore: 0.42}
	assert.InDelta(t, 0.42, c.EffectiveScore(), 1e-9)

	rerank := 0.91
	c.RerankScore = &rerank
	assert.InDelta(t, 0.91, c.EffectiveScore(), 1e-9, "rerank score wins when present")
}

func TestCandidateFromChunk(t *testing.T) {
	chunk := &Chunk{
		Id:            IDFromContent("x"),
		ApplicationID: "app-1",
		DocumentID:    "charter.md",
		Page:          3,
		Section:       "1. Общие сведения",
		ContentType:   "text",
		Text:          "ООО «Ромашка»",
	}

	c := CandidateFromChunk(chunk)
	assert.Equal(t, chunk.Id, c.ChunkID)
	assert.Equal(t, "app-1", c.ApplicationID)
	assert.Equal(t, "charter.md", c.DocumentID)
	assert.Equal(t, 3, c.Page)
	assert.Nil(t, c.TextScore)
	assert.Nil(t, c.RerankScore)
}

func TestEnumStrings(t *testing.T) {
	assert.Equal(t, "vector", SearchTypeVector.String())
	assert.Equal(t, "text", SearchTypeText.String())
	assert.Equal(t, "hybrid", SearchTypeHybrid.String())
	assert.Equal(t, "vector", MethodVector.String())
	assert.Equal(t, "hybrid", MethodHybrid.String())
	assert.Equal(t, "full_scan", MethodFullScan.String())
}

func TestExtractionResultFound(t *testing.T) {
	found := ExtractionResult{Value: "ООО «Ромашка»", Format: FormatJSON}
	assert.True(t, found.Found())

	notFound := ExtractionResult{Value: "Информация не найдена", Format: FormatNotFound}
	assert.False(t, notFound.Found())

	empty := ExtractionResult{Format: FormatEmpty}
	assert.False(t, empty.Found())
}

func TestChunkMUSRoundTrip(t *testing.T) {
	chunk := Chunk{
		Id:            IDFromContent("app-1/doc.md/7"),
		ApplicationID: "app-1",
		DocumentID:    "doc.md",
		Page:          7,
		Section:       "2.1 Сведения о юридическом лице",
		ContentType:   "table",
		Text:          "Полное наименование | ООО «Ромашка»",
		Vector:        []float32{0.1, -0.5, 0.86},
		Position:      12,
		InsertedAt:    time.Now().UTC().Truncate(time.Microsecond),
	}

	bs := make([]byte, ChunkMUS.Size(chunk))
	n := ChunkMUS.Marshal(chunk, bs)
	require.Equal(t, len(bs), n)

	got, m, err := ChunkMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, n, m)
	assert.Equal(t, chunk, got)
}

func TestChecklistMUSRoundTrip(t *testing.T) {
	cfg := DefaultSearchConfig()
	cfg.UseLLM = true
	cfg.LLM.PromptTemplate = "{query}: {context}"

	checklist := Checklist{
		Id:   IDFromContent("ППЭЭ базовый"),
		Name: "ППЭЭ базовый",
		Parameters: []Parameter{
			{
				Id:          IDFromContent("орг форма"),
				Name:        "Организационно-правовая форма",
				SearchQuery: "организационно-правовая форма",
				Config:      cfg,
			},
		},
		InsertedAt: time.Now().UTC().Truncate(time.Microsecond),
	}

	bs := make([]byte, ChecklistMUS.Size(checklist))
	ChecklistMUS.Marshal(checklist, bs)

	got, _, err := ChecklistMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, checklist, got)
}
