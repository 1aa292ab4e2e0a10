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

package ingest

import (
	"strings"

	"github.com/MasterVVK/neuro-expert/core"
)

// DefaultMaxChunkChars bounds chunk size so one chunk stays well inside
// the embedding model's input window.
const DefaultMaxChunkChars = 1500

// SplitMarkdown splits a markdown document into chunks ready for
// embedding. Headings open a new section and tag the chunks under them;
// consecutive paragraphs are packed together up to maxChunkChars;
// tables are kept whole as their own chunks with content type "table".
// Positions are left unassigned; the chunk store numbers them on insert.
// Page is left zero: markdown carries no pagination, so callers ingesting
// page-aware sources set it on the returned chunks themselves.
func SplitMarkdown(documentID, text string, maxChunkChars int) []*core.Chunk {
	if maxChunkChars <= 0 {
		maxChunkChars = DefaultMaxChunkChars
	}

	var chunks []*core.Chunk
	section := ""

	flushText := func(paragraphs []string) []string {
		if len(paragraphs) == 0 {
			return paragraphs
		}
		chunks = append(chunks, &core.Chunk{
			DocumentID:  documentID,
			Section:     section,
			ContentType: "text",
			Text:        strings.Join(paragraphs, "\n\n"),
		})
		return nil
	}

	var pending []string
	pendingLen := 0

	for _, block := range splitBlocks(text) {
		switch {
		case isHeading(block):
			pending = flushText(pending)
			pendingLen = 0
			section = strings.TrimSpace(strings.TrimLeft(block, "# "))

		case isTable(block):
			pending = flushText(pending)
			pendingLen = 0
			chunks = append(chunks, &core.Chunk{
				DocumentID:  documentID,
				Section:     section,
				ContentType: "table",
				Text:        block,
			})

		default:
			if pendingLen > 0 && pendingLen+len(block) > maxChunkChars {
				pending = flushText(pending)
				pendingLen = 0
			}
			// An oversized single paragraph still becomes one chunk
			pending = append(pending, block)
			pendingLen += len(block)
		}
	}
	flushText(pending)

	return chunks
}

// splitBlocks cuts markdown into blank-line separated blocks, keeping
// multi-line tables together.
func splitBlocks(text string) []string {
	var blocks []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			blocks = append(blocks, strings.Join(current, "\n"))
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		// Headings are always their own block
		if strings.HasPrefix(trimmed, "#") {
			flush()
			blocks = append(blocks, trimmed)
			continue
		}
		current = append(current, trimmed)
	}
	flush()

	return blocks
}

func isHeading(block string) bool {
	return strings.HasPrefix(block, "#")
}

func isTable(block string) bool {
	lines := strings.Split(block, "\n")
	tableLines := 0
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			tableLines++
		}
	}
	return tableLines > 0 && tableLines == len(lines)
}
