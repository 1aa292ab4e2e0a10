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

package core

import "errors"

// Error taxonomy for the search/analysis pipeline.
var (
	// ErrValidation indicates a bad configuration or query, rejected
	// synchronously before a task is created.
	ErrValidation = errors.New("validation error")

	// ErrEmptyQuery indicates an empty search query.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrRetrievalUnavailable indicates the vector/lexical index backend
	// is down. Fatal to the task.
	ErrRetrievalUnavailable = errors.New("retrieval service unavailable")

	// ErrRerankUnavailable indicates the reranking service failed.
	// Degrades gracefully: logged, the task keeps the original ordering.
	ErrRerankUnavailable = errors.New("rerank service unavailable")

	// ErrLLMUnavailable indicates the LLM service is unreachable or timed
	// out. Fatal to the task: the extraction result is the deliverable.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")
)
