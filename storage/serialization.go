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

package storage

import (
	"github.com/MasterVVK/neuro-expert/core"
)

// MarshalChunk serializes a Chunk to bytes.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk from bytes.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// MarshalChecklist serializes a Checklist to bytes.
func MarshalChecklist(checklist *core.Checklist) []byte {
	buf := make([]byte, core.ChecklistMUS.Size(*checklist))
	core.ChecklistMUS.Marshal(*checklist, buf)
	return buf
}

// UnmarshalChecklist deserializes a Checklist from bytes.
func UnmarshalChecklist(data []byte) (*core.Checklist, error) {
	checklist, _, err := core.ChecklistMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &checklist, nil
}
