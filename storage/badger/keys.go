package badger

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Key prefixes for different data types
const (
	chunkRecordPrefix       = "chkrec"
	chunkRecordDatePrefix   = "chkrecd"
	chunkRecordClientPrefix = "chkrecc"
)

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", chunkRecordPrefix, id))
}

// makeChunkDateKey generates a composite key for the meeting date index.
// Format: prefix:timestamp:id
func makeChunkDateKey(date time.Time, id string) []byte {
	prefix := chunkRecordDatePrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 + len(id) // 8 bytes for timestamp + id bytes
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(date.UnixMicro()))
	offset += 8
	copy(buf[offset:], []byte(id))
	return buf
}

// makePartialChunkDateKey generates a partial key for date range queries.
// Format: prefix:timestamp
func makePartialChunkDateKey(date time.Time) []byte {
	prefix := chunkRecordDatePrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 // 8 bytes for timestamp
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(date.UnixMicro()))
	return buf
}

// makeChunkClientKey generates a composite key for the client index.
// Client values must not contain ':' after normalization.
// Format: prefix:client:id
func makeChunkClientKey(client, id string) []byte {
	prefix := chunkRecordClientPrefix + ":"
	totalSize := len(prefix) + len(client) + 1 + len(id)
	buf := make([]byte, totalSize)
	offset := copy(buf, []byte(prefix))
	offset += copy(buf[offset:], []byte(client))
	buf[offset] = ':'
	offset++
	copy(buf[offset:], []byte(id))
	return buf
}

// makePartialChunkClientKey generates a partial key for client queries.
// Format: prefix:client:
func makePartialChunkClientKey(client string) []byte {
	return []byte(fmt.Sprintf("%s:%s:", chunkRecordClientPrefix, client))
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(fmt.Sprintf("%s:chkpt", processorType))
}
