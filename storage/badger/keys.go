package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/MasterVVK/neuro-expert/core"
)

// Key prefixes for different data types
const (
	chunkRecordPrefix   = "chkrec"
	chunkAppIndexPrefix = "chkapp"
	chunkPositionSeq    = "chkpos"
	checklistPrefix     = "clsrec"
)

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkRecordPrefix, id))
}

// makeChunkAppKey generates a composite key for the per-application
// document-order index. Format: prefix:applicationID:position
func makeChunkAppKey(applicationID string, position int) []byte {
	prefix := chunkAppIndexPrefix + ":" + applicationID + ":"
	prefixBytes := []byte(prefix)
	buf := make([]byte, len(prefixBytes)+8)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort follows document order
	binary.BigEndian.PutUint64(buf[offset:], uint64(position))
	return buf
}

// makeChunkAppPrefix generates the iteration prefix for an application's
// document-order index.
func makeChunkAppPrefix(applicationID string) []byte {
	return []byte(chunkAppIndexPrefix + ":" + applicationID + ":")
}

// makePositionSeqName generates the sequence name assigning document
// positions within one application.
func makePositionSeqName(applicationID string) string {
	return chunkPositionSeq + ":" + applicationID
}

// makeChecklistKey generates a key for a checklist by ID.
func makeChecklistKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", checklistPrefix, id))
}
