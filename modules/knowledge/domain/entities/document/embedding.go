package document

import (
	"context"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/pkg/serrors"
)

var (
	// ErrDimensionMismatch is returned when a vector's dimension does not
	// match the dimension stored for the embedding model. The store never
	// truncates or pads vectors.
	ErrDimensionMismatch = serrors.NewError("EMBEDDING_DIMENSION_MISMATCH", "embedding dimension mismatch", "")
	// ErrEmbeddingExists is returned when storing an embedding for a
	// (document, chunk, model) key that already has one and the caller did
	// not ask for regeneration.
	ErrEmbeddingExists = serrors.NewError("EMBEDDING_EXISTS", "embedding already stored for chunk and model", "")
)

// StoreEmbeddingParams persists one vector keyed by (document, chunk,
// model). Regenerate turns the unique-key conflict into an upsert.
type StoreEmbeddingParams struct {
	DocumentID uuid.UUID
	ChunkID    uuid.UUID
	Model      string
	Vector     []float32
	Regenerate bool
}

// EmbeddingQuery is a tenant-scoped nearest-neighbour search. The tenant
// comes from the context; cross-tenant results are a correctness
// violation, not just a security concern.
type EmbeddingQuery struct {
	Model         string
	Vector        []float32
	TopK          int
	MinSimilarity float64
}

// Match is one similarity search hit. Score is cosine similarity,
// computed as 1 - cosineDistance(query, stored).
type Match struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	Content    string
	Score      float64
}

type EmbeddingRepository interface {
	Store(ctx context.Context, params StoreEmbeddingParams) error
	// Query returns matches with Score >= MinSimilarity ordered by Score
	// descending, ties broken by chunk insertion order.
	Query(ctx context.Context, query EmbeddingQuery) ([]Match, error)
	DeleteByDocument(ctx context.Context, documentID uuid.UUID, model string) error
}
