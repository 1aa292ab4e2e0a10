package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMarkdown(t *testing.T) {
	t.Run("headings set the section", func(t *testing.T) {
		doc := "# Общие сведения\n\nПервый абзац.\n\n## Реквизиты\n\nВторой абзац."
		chunks := SplitMarkdown("doc-1", doc, DefaultMaxChunkChars)

		require.Len(t, chunks, 2)
		assert.Equal(t, "Общие сведения", chunks[0].Section)
		assert.Equal(t, "Первый абзац.", chunks[0].Text)
		assert.Equal(t, "Реквизиты", chunks[1].Section)
		assert.Equal(t, "Второй абзац.", chunks[1].Text)
		assert.Equal(t, "doc-1", chunks[0].DocumentID)
	})

	t.Run("paragraphs pack up to the limit", func(t *testing.T) {
		a := strings.Repeat("а", 600)
		b := strings.Repeat("б", 600)
		c := strings.Repeat("в", 600)
		doc := a + "\n\n" + b + "\n\n" + c
		chunks := SplitMarkdown("doc-1", doc, 1500)

		require.Len(t, chunks, 2)
		assert.Equal(t, a+"\n\n"+b, chunks[0].Text)
		assert.Equal(t, c, chunks[1].Text)
	})

	t.Run("oversized paragraph still becomes one chunk", func(t *testing.T) {
		big := strings.Repeat("x", 2000)
		chunks := SplitMarkdown("doc-1", big, 1500)

		require.Len(t, chunks, 1)
		assert.Equal(t, big, chunks[0].Text)
	})

	t.Run("tables kept whole with content type table", func(t *testing.T) {
		doc := "# Смета\n\nВводный текст.\n\n| Статья | Сумма |\n|---|---|\n| Фонд | 10000 |\n\nЗаключение."
		chunks := SplitMarkdown("doc-1", doc, DefaultMaxChunkChars)

		require.Len(t, chunks, 3)
		assert.Equal(t, "text", chunks[0].ContentType)
		assert.Equal(t, "table", chunks[1].ContentType)
		assert.Contains(t, chunks[1].Text, "| Фонд | 10000 |")
		assert.Equal(t, "Смета", chunks[1].Section)
		assert.Equal(t, "text", chunks[2].ContentType)
		assert.Equal(t, "Заключение.", chunks[2].Text)
	})

	t.Run("empty document yields no chunks", func(t *testing.T) {
		assert.Empty(t, SplitMarkdown("doc-1", "", DefaultMaxChunkChars))
		assert.Empty(t, SplitMarkdown("doc-1", "\n\n   \n", DefaultMaxChunkChars))
	})

	t.Run("heading-only document yields no chunks", func(t *testing.T) {
		assert.Empty(t, SplitMarkdown("doc-1", "# Заголовок\n\n## Подзаголовок", DefaultMaxChunkChars))
	})
}

func TestNormalizeVector(t *testing.T) {
	t.Run("unit length", func(t *testing.T) {
		v := NormalizeVector([]float32{3, 4})
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})

	t.Run("zero vector stays zero", func(t *testing.T) {
		v := NormalizeVector([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, v)
	})

	t.Run("empty input passes through", func(t *testing.T) {
		assert.Empty(t, NormalizeVector(nil))
	})
}
