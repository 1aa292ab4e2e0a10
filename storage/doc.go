// Package storage defines the persistence contracts for the analysis
// pipeline: the chunk store backing vector and full-scan retrieval, and
// the checklist store holding saved parameter sets.
//
// Records are serialized with hand-maintained MUS serializers from the
// core package. The BadgerDB implementation lives in storage/badger.
package storage
