// Package aiusagelog records one entry per AI generation call, consumed
// by billing and analytics. Append-only, never read on the hot path.
package aiusagelog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Entry struct {
	ID                uuid.UUID
	TenantID          uuid.UUID
	ConversationID    uuid.UUID
	MessageID         uuid.UUID
	Model             string
	TokensUsed        int
	Latency           time.Duration
	Confidence        *float64
	ChunksUsed        int
	HandoverTriggered bool
	CreatedAt         time.Time
}

func New(tenantID, conversationID uuid.UUID) *Entry {
	return &Entry{
		ID:             uuid.New(),
		TenantID:       tenantID,
		ConversationID: conversationID,
		CreatedAt:      time.Now(),
	}
}

type Repository interface {
	Append(ctx context.Context, entry *Entry) error
}
