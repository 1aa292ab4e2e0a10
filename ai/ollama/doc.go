// Package ollama implements the ai service contracts against a local
// Ollama server and a bge-reranker scoring service.
//
// Embeddings and chat completion use Ollama's OpenAI-compatible endpoint
// through langchaingo. Model listing and context-length lookup use the
// native /api/tags and /api/show endpoints, which have no OpenAI
// equivalent. Reranking posts to an external /rerank endpoint.
package ollama
