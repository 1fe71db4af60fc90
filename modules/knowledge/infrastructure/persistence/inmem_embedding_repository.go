package persistence

import (
	"context"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/pkg/composables"
)

type embeddingKey struct {
	tenantID   uuid.UUID
	documentID uuid.UUID
	chunkID    uuid.UUID
	model      string
}

type embeddingRecord struct {
	key     embeddingKey
	content string
	vector  []float32
	seq     int64
}

// InmemEmbeddingRepository mirrors the pgvector-backed repository for
// tests. Cosine similarity and the descending-score, insertion-order
// tiebreak match the SQL search exactly.
type InmemEmbeddingRepository struct {
	mu      sync.RWMutex
	records []embeddingRecord
	seq     int64
	content map[uuid.UUID]string
}

func NewInmemEmbeddingRepository() *InmemEmbeddingRepository {
	return &InmemEmbeddingRepository{
		content: make(map[uuid.UUID]string),
	}
}

// SetChunkContent registers the chunk text a match should carry. The pg
// repository gets this via a join; in memory it has to be seeded.
func (r *InmemEmbeddingRepository) SetChunkContent(chunkID uuid.UUID, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.content[chunkID] = content
}

func (r *InmemEmbeddingRepository) Store(ctx context.Context, params document.StoreEmbeddingParams) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	if len(params.Vector) == 0 {
		return document.ErrDimensionMismatch.WithDetails("empty vector")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.key.tenantID == tenantID && rec.key.model == params.Model && len(rec.vector) != len(params.Vector) {
			return document.ErrDimensionMismatch.WithDetails(
				"model %s stores %d-dimensional vectors, got %d",
				params.Model, len(rec.vector), len(params.Vector),
			)
		}
	}

	key := embeddingKey{
		tenantID:   tenantID,
		documentID: params.DocumentID,
		chunkID:    params.ChunkID,
		model:      params.Model,
	}
	for i, rec := range r.records {
		if rec.key == key {
			if !params.Regenerate {
				return document.ErrEmbeddingExists.WithDetails(
					"chunk %s already embedded with model %s", params.ChunkID, params.Model,
				)
			}
			r.records[i].vector = slices.Clone(params.Vector)
			return nil
		}
	}

	r.seq++
	r.records = append(r.records, embeddingRecord{
		key:     key,
		content: r.content[params.ChunkID],
		vector:  slices.Clone(params.Vector),
		seq:     r.seq,
	})
	return nil
}

func (r *InmemEmbeddingRepository) Query(ctx context.Context, query document.EmbeddingQuery) ([]document.Match, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	if len(query.Vector) == 0 {
		return nil, document.ErrDimensionMismatch.WithDetails("empty query vector")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		match document.Match
		seq   int64
	}
	var hits []scored
	for _, rec := range r.records {
		if rec.key.tenantID != tenantID || rec.key.model != query.Model {
			continue
		}
		if len(rec.vector) != len(query.Vector) {
			return nil, document.ErrDimensionMismatch.WithDetails(
				"model %s stores %d-dimensional vectors, got %d",
				query.Model, len(rec.vector), len(query.Vector),
			)
		}
		score := cosineSimilarity(query.Vector, rec.vector)
		if score < query.MinSimilarity {
			continue
		}
		hits = append(hits, scored{
			match: document.Match{
				ChunkID:    rec.key.chunkID,
				DocumentID: rec.key.documentID,
				Content:    r.content[rec.key.chunkID],
				Score:      score,
			},
			seq: rec.seq,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].match.Score != hits[j].match.Score {
			return hits[i].match.Score > hits[j].match.Score
		}
		return hits[i].seq < hits[j].seq
	})

	limit := query.TopK
	if limit > len(hits) {
		limit = len(hits)
	}
	matches := make([]document.Match, 0, limit)
	for _, hit := range hits[:limit] {
		matches = append(matches, hit.match)
	}
	return matches, nil
}

func (r *InmemEmbeddingRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID, model string) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.key.tenantID == tenantID && rec.key.documentID == documentID && rec.key.model == model {
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return nil
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
