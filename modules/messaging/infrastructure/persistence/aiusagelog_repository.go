package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/aiusagelog"
	"github.com/talkbase/talkbase/pkg/composables"
)

const (
	aiUsageLogInsertQuery = `
        INSERT INTO ai_usage_logs (
            id,
            tenant_id,
            conversation_id,
            message_id,
            model,
            tokens_used,
            latency_ms,
            confidence,
            chunks_used,
            handover_triggered,
            created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
)

type PgAIUsageLogRepository struct{}

func NewAIUsageLogRepository() aiusagelog.Repository {
	return &PgAIUsageLogRepository{}
}

func (g *PgAIUsageLogRepository) Append(ctx context.Context, entry *aiusagelog.Entry) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	if entry.TenantID == uuid.Nil {
		entry.TenantID = tenantID
	}
	_, err = tx.Exec(
		ctx,
		aiUsageLogInsertQuery,
		entry.ID,
		entry.TenantID,
		entry.ConversationID,
		entry.MessageID,
		entry.Model,
		entry.TokensUsed,
		entry.Latency.Milliseconds(),
		nullFloat(entry.Confidence),
		entry.ChunksUsed,
		entry.HandoverTriggered,
		entry.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to append usage log entry: %s", entry.ID))
	}
	return nil
}
