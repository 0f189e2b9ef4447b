package badger

import (
	"encoding/binary"

	"github.com/poiesic/refinery/core"
)

// Key prefixes for different data types
const (
	recordPrefix     = "rec"
	sourcePrefix     = "src"
	chunkPrefix      = "chk"
	checkpointPrefix = "chkpt"
	donePrefix       = "done"
)

// makeRecordKey generates a key for a record.
// Format: prefix:source:id
func makeRecordKey(source string, id core.ID) []byte {
	buf := makeRecordSourcePrefix(source)
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// makeRecordSourcePrefix generates the partial key covering one source.
// Format: prefix:source:
func makeRecordSourcePrefix(source string) []byte {
	buf := make([]byte, 0, len(recordPrefix)+len(source)+2+8)
	buf = append(buf, recordPrefix...)
	buf = append(buf, ':')
	buf = append(buf, source...)
	return append(buf, ':')
}

// makeSourceKey generates the marker key listing a source.
func makeSourceKey(source string) []byte {
	return []byte(sourcePrefix + ":" + source)
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix:parentID:ordinal
func makeChunkKey(parent core.ID, ordinal int) []byte {
	buf := makePartialChunkKey(parent)
	// Write in BigEndian order so lexicographic sort works correctly
	return binary.BigEndian.AppendUint32(buf, uint32(ordinal))
}

// makePartialChunkKey generates a partial key covering one parent's chunks.
// Format: prefix:parentID
func makePartialChunkKey(parent core.ID) []byte {
	buf := make([]byte, 0, len(chunkPrefix)+1+8+4)
	buf = append(buf, chunkPrefix...)
	buf = append(buf, ':')
	return binary.BigEndian.AppendUint64(buf, uint64(parent))
}

// makeCheckpointKey generates a key for a source checkpoint.
func makeCheckpointKey(source string) []byte {
	return []byte(checkpointPrefix + ":" + source)
}

// makeDoneKey generates the marker key for a completed staged file.
// Format: prefix:source:name
func makeDoneKey(source, name string) []byte {
	return []byte(donePrefix + ":" + source + ":" + name)
}
