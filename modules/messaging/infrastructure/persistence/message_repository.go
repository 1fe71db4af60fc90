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
	messageFindQuery = `
        SELECT
            m.id,
            m.tenant_id,
            m.conversation_id,
            m.external_message_id,
            m.direction,
            m.sender_type,
            m.content,
            m.intent,
            m.sentiment,
            m.confidence,
            m.entities,
            m.delivery_status,
            m.platform_timestamp,
            m.created_at
        FROM messages m`

	messageInsertQuery = `
        INSERT INTO messages (
            id,
            tenant_id,
            conversation_id,
            external_message_id,
            direction,
            sender_type,
            content,
            intent,
            sentiment,
            confidence,
            entities,
            delivery_status,
            platform_timestamp,
            created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
        ON CONFLICT (conversation_id, external_message_id) DO NOTHING`

	messageUpdateDeliveryQuery = `
        UPDATE messages
        SET delivery_status = $1
        WHERE id = $2 AND tenant_id = $3`
)

type PgMessageRepository struct{}

func NewMessageRepository() conversation.MessageRepository {
	return &PgMessageRepository{}
}

func (g *PgMessageRepository) Save(ctx context.Context, data conversation.Message) (conversation.Message, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	dbMsg, err := ToDBMessage(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to convert message to db model")
	}
	dbMsg.TenantID = tenantID.String()

	tag, err := tx.Exec(
		ctx,
		messageInsertQuery,
		dbMsg.ID,
		dbMsg.TenantID,
		dbMsg.ConversationID,
		dbMsg.ExternalMessageID,
		dbMsg.Direction,
		dbMsg.SenderType,
		dbMsg.Content,
		dbMsg.Intent,
		dbMsg.Sentiment,
		dbMsg.Confidence,
		dbMsg.Entities,
		dbMsg.DeliveryStatus,
		dbMsg.PlatformTimestamp,
		dbMsg.CreatedAt,
	)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to save message with ID: %s", dbMsg.ID))
	}
	if tag.RowsAffected() == 0 {
		return nil, conversation.ErrDuplicateMessage.WithDetails(
			"external message ID %s already exists in conversation %s",
			data.ExternalMessageID(), data.ConversationID(),
		)
	}
	return data, nil
}

func (g *PgMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Message, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}

	msgs, err := g.queryMessages(ctx, messageFindQuery+" WHERE m.id = $1 AND m.tenant_id = $2", id, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query message with id: %s", id))
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("id: %s: %w", id, conversation.ErrMessageNotFound)
	}
	return msgs[0], nil
}

func (g *PgMessageRepository) RecentByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]conversation.Message, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}

	msgs, err := g.queryMessages(
		ctx,
		messageFindQuery+" WHERE m.conversation_id = $1 AND m.tenant_id = $2 ORDER BY m.created_at DESC"+repo.FormatLimitOffset(limit, 0),
		conversationID,
		tenantID,
	)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query recent messages for conversation: %s", conversationID))
	}
	return msgs, nil
}

func (g *PgMessageRepository) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status conversation.DeliveryStatus) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	if _, err := tx.Exec(ctx, messageUpdateDeliveryQuery, string(status), id, tenantID); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to update delivery status for message: %s", id))
	}
	return nil
}

func (g *PgMessageRepository) queryMessages(ctx context.Context, query string, args ...interface{}) ([]conversation.Message, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var dbMsgs []*models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(
			&m.ID,
			&m.TenantID,
			&m.ConversationID,
			&m.ExternalMessageID,
			&m.Direction,
			&m.SenderType,
			&m.Content,
			&m.Intent,
			&m.Sentiment,
			&m.Confidence,
			&m.Entities,
			&m.DeliveryStatus,
			&m.PlatformTimestamp,
			&m.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan message row")
		}
		dbMsgs = append(dbMsgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	entities := make([]conversation.Message, 0, len(dbMsgs))
	for _, m := range dbMsgs {
		entity, err := ToDomainMessage(m)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to convert message ID: %s to domain entity", m.ID))
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
