package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// chunkNamespace scopes deterministic chunk ids.
var chunkNamespace = uuid.MustParse("6f1c2a3e-8d4b-5c7a-9e0f-1b2c3d4e5f60")

// Chunk is a bounded window of a document's text, the unit of indexing and citation.
type Chunk struct {
	ID            string
	DocumentID    string
	SequenceIndex int
	Text          string
	TokenCount    int
	PageNumber    int    // 0 when unknown
	Timestamp     string // audio offset, empty when unknown
}

// ChunkID derives the stable id of the chunk at sequence within documentID.
func ChunkID(documentID string, sequence int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(sequence))).String()
}

// HasPage reports whether the chunk carries page provenance.
func (c Chunk) HasPage() bool {
	return c.PageNumber > 0
}
