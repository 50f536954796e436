package document

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ChunkID derives the stable identifier for a chunk from its document ID
// and document-wide chunk index. Re-chunking an unchanged document yields
// the same IDs, which makes upserts idempotent.
func ChunkID(documentID string, index int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_chunk_%d", documentID, index)))
	return hex.EncodeToString(sum[:])
}

// PointID converts a chunk ID into a deterministic UUIDv5 for vector-store
// backends that require UUID point keys. The chunk ID itself stays in the
// payload for lookups.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(chunkID)).String()
}
