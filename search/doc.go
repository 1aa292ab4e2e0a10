// Package search implements retrieval over an application's indexed
// chunks: query-length based strategy selection, vector and hybrid
// retrieval, lexical matching, and an optional rerank stage.
package search
