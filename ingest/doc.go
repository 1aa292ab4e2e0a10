// Package ingest turns markdown documents into embedded chunks: a
// section-aware splitter and a concurrent embedding indexer.
package ingest
