package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/modules/messaging/infrastructure/persistence/models"
	"github.com/talkbase/talkbase/pkg/composables"
	"github.com/talkbase/talkbase/pkg/repo"
)

const (
	conversationFindQuery = `
        SELECT
            c.id,
            c.tenant_id,
            c.customer_external_id,
            c.platform,
            c.handler_type,
            c.ai_enabled,
            c.assigned_agent_id,
            c.status,
            c.priority,
            c.sentiment_score,
            c.paused_by,
            c.paused_at,
            c.pause_reason,
            c.first_message_at,
            c.last_message_at,
            c.last_ai_response_at,
            c.last_human_response_at,
            c.resolved_at,
            c.created_at,
            c.updated_at
        FROM conversations c`
)

type PgConversationRepository struct{}

func NewConversationRepository() conversation.Repository {
	return &PgConversationRepository{}
}

func (g *PgConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}

	convs, err := g.queryConversations(ctx, conversationFindQuery+" WHERE c.id = $1 AND c.tenant_id = $2", id, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query conversation with id: %s", id))
	}
	if len(convs) == 0 {
		return nil, fmt.Errorf("id: %s: %w", id, conversation.ErrConversationNotFound)
	}
	return convs[0], nil
}

func (g *PgConversationRepository) List(ctx context.Context) ([]conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}

	convs, err := g.queryConversations(ctx, conversationFindQuery+" WHERE c.tenant_id = $1 ORDER BY c.last_message_at DESC NULLS LAST", tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	return convs, nil
}

func (g *PgConversationRepository) Save(ctx context.Context, data conversation.Conversation) (conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	dbConv := ToDBConversation(data)
	if dbConv.TenantID == uuid.Nil.String() {
		dbConv.TenantID = tenantID.String()
	}

	fields := []string{
		"id",
		"tenant_id",
		"customer_external_id",
		"platform",
		"handler_type",
		"ai_enabled",
		"assigned_agent_id",
		"status",
		"priority",
		"sentiment_score",
		"paused_by",
		"paused_at",
		"pause_reason",
		"first_message_at",
		"last_message_at",
		"last_ai_response_at",
		"last_human_response_at",
		"resolved_at",
		"created_at",
		"updated_at",
	}
	values := []interface{}{
		dbConv.ID,
		dbConv.TenantID,
		dbConv.CustomerExternalID,
		dbConv.Platform,
		dbConv.HandlerType,
		dbConv.AIEnabled,
		dbConv.AssignedAgentID,
		dbConv.Status,
		dbConv.Priority,
		dbConv.SentimentScore,
		dbConv.PausedBy,
		dbConv.PausedAt,
		dbConv.PauseReason,
		dbConv.FirstMessageAt,
		dbConv.LastMessageAt,
		dbConv.LastAIResponseAt,
		dbConv.LastHumanResponseAt,
		dbConv.ResolvedAt,
		dbConv.CreatedAt,
		dbConv.UpdatedAt,
	}

	q := repo.Insert("conversations", fields) + `
        ON CONFLICT (id) DO UPDATE
        SET handler_type = EXCLUDED.handler_type,
            ai_enabled = EXCLUDED.ai_enabled,
            assigned_agent_id = EXCLUDED.assigned_agent_id,
            status = EXCLUDED.status,
            priority = EXCLUDED.priority,
            sentiment_score = EXCLUDED.sentiment_score,
            paused_by = EXCLUDED.paused_by,
            paused_at = EXCLUDED.paused_at,
            pause_reason = EXCLUDED.pause_reason,
            first_message_at = EXCLUDED.first_message_at,
            last_message_at = EXCLUDED.last_message_at,
            last_ai_response_at = EXCLUDED.last_ai_response_at,
            last_human_response_at = EXCLUDED.last_human_response_at,
            resolved_at = EXCLUDED.resolved_at,
            updated_at = EXCLUDED.updated_at`
	if _, err := tx.Exec(ctx, q, values...); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to save conversation with ID: %s", dbConv.ID))
	}
	return data, nil
}

func (g *PgConversationRepository) queryConversations(ctx context.Context, query string, args ...interface{}) ([]conversation.Conversation, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var dbConvs []*models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(
			&c.ID,
			&c.TenantID,
			&c.CustomerExternalID,
			&c.Platform,
			&c.HandlerType,
			&c.AIEnabled,
			&c.AssignedAgentID,
			&c.Status,
			&c.Priority,
			&c.SentimentScore,
			&c.PausedBy,
			&c.PausedAt,
			&c.PauseReason,
			&c.FirstMessageAt,
			&c.LastMessageAt,
			&c.LastAIResponseAt,
			&c.LastHumanResponseAt,
			&c.ResolvedAt,
			&c.CreatedAt,
			&c.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation row")
		}
		dbConvs = append(dbConvs, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	entities := make([]conversation.Conversation, 0, len(dbConvs))
	for _, c := range dbConvs {
		entity, err := ToDomainConversation(c)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to convert conversation ID: %s to domain entity", c.ID))
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
