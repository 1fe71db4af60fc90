// Package retrievallog records one audit entry per knowledge retrieval
// call. Entries are append-only and never read on the hot path.
package retrievallog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RetrievedChunk struct {
	ChunkID    uuid.UUID
	DocumentID uuid.UUID
	Score      float64
}

type Entry struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	ConversationID uuid.UUID
	Query          string
	QueryVector    []float32
	Model          string
	Chunks         []RetrievedChunk
	Duration       time.Duration
	CreatedAt      time.Time
}

func New(tenantID, conversationID uuid.UUID, query, model string) *Entry {
	return &Entry{
		ID:             uuid.New(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		Query:          query,
		Model:          model,
		CreatedAt:      time.Now(),
	}
}

type Repository interface {
	Append(ctx context.Context, entry *Entry) error
}
