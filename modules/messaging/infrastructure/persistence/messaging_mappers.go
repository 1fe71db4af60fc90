package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/agent"
	"github.com/talkbase/talkbase/modules/messaging/infrastructure/persistence/models"
)

func ToDBConversation(entity conversation.Conversation) *models.Conversation {
	return &models.Conversation{
		ID:                  entity.ID().String(),
		TenantID:            entity.TenantID().String(),
		CustomerExternalID:  entity.CustomerExternalID(),
		Platform:            entity.Platform(),
		HandlerType:         string(entity.HandlerType()),
		AIEnabled:           entity.AIEnabled(),
		AssignedAgentID:     nullUUID(entity.AssignedAgentID()),
		Status:              string(entity.Status()),
		Priority:            string(entity.Priority()),
		SentimentScore:      entity.SentimentScore(),
		PausedBy:            nullUUID(entity.PausedBy()),
		PausedAt:            nullTime(entity.PausedAt()),
		PauseReason:         nullString(entity.PauseReason()),
		FirstMessageAt:      nullTime(entity.FirstMessageAt()),
		LastMessageAt:       nullTime(entity.LastMessageAt()),
		LastAIResponseAt:    nullTime(entity.LastAIResponseAt()),
		LastHumanResponseAt: nullTime(entity.LastHumanResponseAt()),
		ResolvedAt:          nullTime(entity.ResolvedAt()),
		CreatedAt:           entity.CreatedAt(),
		UpdatedAt:           entity.UpdatedAt(),
	}
}

func ToDomainConversation(dbConv *models.Conversation) (conversation.Conversation, error) {
	id, err := uuid.Parse(dbConv.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse conversation ID: %w", err)
	}
	tenantID, err := uuid.Parse(dbConv.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tenant ID: %w", err)
	}

	return conversation.New(
		tenantID,
		dbConv.CustomerExternalID,
		dbConv.Platform,
		conversation.WithID(id),
		conversation.WithHandler(conversation.HandlerType(dbConv.HandlerType), dbConv.AIEnabled),
		conversation.WithAssignedAgent(parseNullUUID(dbConv.AssignedAgentID)),
		conversation.WithStatus(conversation.Status(dbConv.Status)),
		conversation.WithPriority(conversation.Priority(dbConv.Priority)),
		conversation.WithSentimentScore(dbConv.SentimentScore),
		conversation.WithPause(parseNullUUID(dbConv.PausedBy), dbConv.PausedAt.Time, dbConv.PauseReason.String),
		conversation.WithTimestamps(
			dbConv.FirstMessageAt.Time,
			dbConv.LastMessageAt.Time,
			dbConv.LastAIResponseAt.Time,
			dbConv.LastHumanResponseAt.Time,
			dbConv.ResolvedAt.Time,
		),
		conversation.WithCreatedAt(dbConv.CreatedAt),
		conversation.WithUpdatedAt(dbConv.UpdatedAt),
	), nil
}

func ToDBMessage(entity conversation.Message) (*models.Message, error) {
	annotations := entity.Annotations()
	var entities []byte
	if len(annotations.Entities) > 0 {
		var err error
		entities, err = json.Marshal(annotations.Entities)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message entities: %w", err)
		}
	}

	return &models.Message{
		ID:                entity.ID().String(),
		ConversationID:    entity.ConversationID().String(),
		Direction:         string(entity.Direction()),
		SenderType:        string(entity.Sender()),
		Content:           entity.Content(),
		Intent:            nullString(annotations.Intent),
		Sentiment:         nullFloat(annotations.Sentiment),
		Confidence:        nullFloat(annotations.Confidence),
		Entities:          entities,
		DeliveryStatus:    string(entity.DeliveryStatus()),
		ExternalMessageID: entity.ExternalMessageID(),
		PlatformTimestamp: nullTime(entity.PlatformTimestamp()),
		CreatedAt:         entity.CreatedAt(),
	}, nil
}

func ToDomainMessage(dbMsg *models.Message) (conversation.Message, error) {
	id, err := uuid.Parse(dbMsg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message ID: %w", err)
	}
	conversationID, err := uuid.Parse(dbMsg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message conversation ID: %w", err)
	}

	annotations := conversation.AIAnnotations{
		Intent:     dbMsg.Intent.String,
		Sentiment:  floatPtr(dbMsg.Sentiment),
		Confidence: floatPtr(dbMsg.Confidence),
	}
	if len(dbMsg.Entities) > 0 {
		if err := json.Unmarshal(dbMsg.Entities, &annotations.Entities); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message entities: %w", err)
		}
	}

	return conversation.NewMessage(
		conversationID,
		conversation.Direction(dbMsg.Direction),
		conversation.SenderType(dbMsg.SenderType),
		dbMsg.Content,
		conversation.WithMessageID(id),
		conversation.WithAnnotations(annotations),
		conversation.WithDeliveryStatus(conversation.DeliveryStatus(dbMsg.DeliveryStatus)),
		conversation.WithExternalMessageID(dbMsg.ExternalMessageID),
		conversation.WithPlatformTimestamp(dbMsg.PlatformTimestamp.Time),
		conversation.WithMessageCreatedAt(dbMsg.CreatedAt),
	)
}

func ToDBAgent(entity agent.Agent) *models.Agent {
	return &models.Agent{
		ID:             entity.ID().String(),
		TenantID:       entity.TenantID().String(),
		Name:           entity.Name(),
		Role:           string(entity.Role()),
		Active:         entity.Active(),
		LastAssignedAt: nullTime(entity.LastAssignedAt()),
	}
}

func ToDomainAgent(dbAgent *models.Agent) (agent.Agent, error) {
	id, err := uuid.Parse(dbAgent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent ID: %w", err)
	}
	tenantID, err := uuid.Parse(dbAgent.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse agent tenant ID: %w", err)
	}
	return agent.New(
		tenantID,
		dbAgent.Name,
		agent.Role(dbAgent.Role),
		agent.WithID(id),
		agent.WithActive(dbAgent.Active),
		agent.WithLastAssignedAt(dbAgent.LastAssignedAt.Time),
	), nil
}

func nullUUID(id uuid.UUID) sql.NullString {
	if id == uuid.Nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func parseNullUUID(ns sql.NullString) uuid.UUID {
	if !ns.Valid {
		return uuid.Nil
	}
	id, err := uuid.Parse(ns.String)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}
