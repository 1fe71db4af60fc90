package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-faster/errors"
	"github.com/pgvector/pgvector-go"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/retrievallog"
	"github.com/talkbase/talkbase/modules/knowledge/infrastructure/persistence/models"
	"github.com/talkbase/talkbase/pkg/composables"
)

const retrievalLogInsertQuery = `
    INSERT INTO knowledge_retrieval_logs
        (id, tenant_id, conversation_id, query, query_vector, model, chunks, duration_ms, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

type PgRetrievalLogRepository struct{}

func NewRetrievalLogRepository() retrievallog.Repository {
	return &PgRetrievalLogRepository{}
}

func (g *PgRetrievalLogRepository) Append(ctx context.Context, entry *retrievallog.Entry) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	chunks := make([]models.RetrievalLogChunk, 0, len(entry.Chunks))
	for _, c := range entry.Chunks {
		chunks = append(chunks, models.RetrievalLogChunk{
			ChunkID:    c.ChunkID.String(),
			DocumentID: c.DocumentID.String(),
			Score:      c.Score,
		})
	}
	chunksJSON, err := json.Marshal(chunks)
	if err != nil {
		return errors.Wrap(err, "failed to marshal retrieved chunks")
	}

	var vector interface{}
	if len(entry.QueryVector) > 0 {
		vector = pgvector.NewVector(entry.QueryVector)
	}

	_, err = tx.Exec(
		ctx,
		retrievalLogInsertQuery,
		entry.ID,
		entry.TenantID,
		entry.ConversationID,
		entry.Query,
		vector,
		entry.Model,
		chunksJSON,
		entry.Duration.Milliseconds(),
		entry.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to append retrieval log for conversation: %s", entry.ConversationID))
	}
	return nil
}

type InmemRetrievalLogRepository struct {
	mu      sync.RWMutex
	entries []*retrievallog.Entry
}

func NewInmemRetrievalLogRepository() *InmemRetrievalLogRepository {
	return &InmemRetrievalLogRepository{}
}

func (r *InmemRetrievalLogRepository) Append(_ context.Context, entry *retrievallog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return nil
}

func (r *InmemRetrievalLogRepository) Entries() []*retrievallog.Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*retrievallog.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
