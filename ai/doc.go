// Package ai defines the contracts for the external AI collaborators of
// the analysis pipeline: text embedding, LLM inference and cross-encoder
// reranking.
//
// The pipeline depends only on the interfaces in this package. Production
// implementations backed by an Ollama server live in ai/ollama; test
// doubles live in ai/mock.
//
// All implementations must be safe for concurrent use: independent
// analysis tasks call these services in parallel.
package ai
