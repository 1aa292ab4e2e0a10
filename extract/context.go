// Copyright 2025 Neuro-Expert Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package extract

import (
	"fmt"
	"strings"

	"github.com/MasterVVK/neuro-expert/core"
)

const (
	// DefaultContextWindow is assumed when the model's context length
	// cannot be determined.
	DefaultContextWindow = 8192

	// reservedTokens are held back from the context window for the
	// prompt template and the model's answer.
	reservedTokens = 500

	// charsPerToken is the rough token estimate used to budget the
	// context. Good enough for mixed Russian/English document text.
	charsPerToken = 4
)

var docSeparator = strings.Repeat("-", 40)

// FormatContext renders candidates as numbered document blocks within a
// token budget. Candidates that do not fit are dropped, the last block
// may be truncated, and a note marks the omission either way.
//
// With includeMetadata each block is tagged with its provenance: section,
// content type, page when known, and the relevance scores. Per-chunk full
// scans format without metadata; there is nothing to rank a single
// unscored chunk by.
func FormatContext(candidates []*core.Candidate, contextWindow int, includeMetadata bool) string {
	if contextWindow <= 0 {
		contextWindow = DefaultContextWindow
	}
	availableTokens := contextWindow - reservedTokens

	var blocks []string
	usedTokens := 0

	for i, candidate := range candidates {
		if usedTokens >= availableTokens {
			blocks = append(blocks, "\nПримечание: Некоторые документы не были включены из-за ограничения размера контекста.")
			break
		}

		header := fmt.Sprintf("Документ %d:\n", i+1)
		if includeMetadata {
			header += metadataLines(candidate) + "Текст:\n"
		}
		text := candidate.Text

		blockTokens := (len(header) + len(text)) / charsPerToken
		if blockTokens > availableTokens-usedTokens {
			// Truncate if a meaningful portion still fits
			availableChars := (availableTokens-usedTokens)*charsPerToken - len(header) - 50
			if availableChars > 100 {
				blocks = append(blocks, header+truncateText(text, availableChars)+"... [сокращено]\n"+docSeparator+"\n")
			}
			blocks = append(blocks, "\nПримечание: Документы были сокращены из-за ограничения размера контекста.")
			break
		}

		usedTokens += blockTokens
		blocks = append(blocks, header+text+"\n"+docSeparator+"\n")
	}

	return strings.Join(blocks, "\n")
}

// metadataLines renders a candidate's provenance tags the way the
// analysis prompts expect them.
func metadataLines(c *core.Candidate) string {
	var b strings.Builder

	section := c.Section
	if section == "" {
		section = "Н/Д"
	}
	contentType := c.ContentType
	if contentType == "" {
		contentType = "Н/Д"
	}
	fmt.Fprintf(&b, "Раздел: %s\n", section)
	fmt.Fprintf(&b, "Тип: %s\n", contentType)
	if c.Page > 0 {
		fmt.Fprintf(&b, "Страница: %d\n", c.Page)
	}
	if c.RerankScore != nil {
		fmt.Fprintf(&b, "Оценка релевантности (ререйтинг): %.4f\n", *c.RerankScore)
	}
	if c.VectorScore != 0 {
		fmt.Fprintf(&b, "Оценка релевантности: %.4f\n", c.VectorScore)
	}

	return b.String()
}

// truncateText cuts text to at most maxBytes without splitting a rune.
func truncateText(text string, maxBytes int) string {
	if len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !isRuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
