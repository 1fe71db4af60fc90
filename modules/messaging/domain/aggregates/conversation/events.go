package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/pkg/composables"
)

// Events carry flat snapshots taken at publish time, never live entity
// references, so fanout cannot race with later mutation.

type MessageSnapshot struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Direction      Direction
	Sender         SenderType
	Content        string
	Confidence     *float64
	Sentiment      *float64
	Intent         string
	CreatedAt      time.Time
}

type ConversationSnapshot struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	HandlerType     HandlerType
	AIEnabled       bool
	AssignedAgentID uuid.UUID
	Status          Status
	Priority        Priority
	SentimentScore  float64
	LastMessageAt   time.Time
}

type MessageCreatedEvent struct {
	TenantID     uuid.UUID
	Conversation ConversationSnapshot
	Message      MessageSnapshot
}

type HandoverExecutedEvent struct {
	TenantID     uuid.UUID
	Conversation ConversationSnapshot
	AgentID      uuid.UUID
	Reason       string
}

type ConversationUpdatedEvent struct {
	TenantID     uuid.UUID
	Conversation ConversationSnapshot
}

func NewMessageCreatedEvent(ctx context.Context, conv Conversation, msg Message) (*MessageCreatedEvent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return &MessageCreatedEvent{
		TenantID:     tenantID,
		Conversation: snapshotConversation(conv),
		Message:      snapshotMessage(msg),
	}, nil
}

func NewHandoverExecutedEvent(ctx context.Context, conv Conversation, agentID uuid.UUID, reason string) (*HandoverExecutedEvent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return &HandoverExecutedEvent{
		TenantID:     tenantID,
		Conversation: snapshotConversation(conv),
		AgentID:      agentID,
		Reason:       reason,
	}, nil
}

func NewConversationUpdatedEvent(ctx context.Context, conv Conversation) (*ConversationUpdatedEvent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	return &ConversationUpdatedEvent{
		TenantID:     tenantID,
		Conversation: snapshotConversation(conv),
	}, nil
}

func snapshotConversation(conv Conversation) ConversationSnapshot {
	return ConversationSnapshot{
		ID:              conv.ID(),
		TenantID:        conv.TenantID(),
		HandlerType:     conv.HandlerType(),
		AIEnabled:       conv.AIEnabled(),
		AssignedAgentID: conv.AssignedAgentID(),
		Status:          conv.Status(),
		Priority:        conv.Priority(),
		SentimentScore:  conv.SentimentScore(),
		LastMessageAt:   conv.LastMessageAt(),
	}
}

func snapshotMessage(msg Message) MessageSnapshot {
	annotations := msg.Annotations()
	return MessageSnapshot{
		ID:             msg.ID(),
		ConversationID: msg.ConversationID(),
		Direction:      msg.Direction(),
		Sender:         msg.Sender(),
		Content:        msg.Content(),
		Confidence:     annotations.Confidence,
		Sentiment:      annotations.Sentiment,
		Intent:         annotations.Intent,
		CreatedAt:      msg.CreatedAt(),
	}
}
