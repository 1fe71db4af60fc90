package services

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/pkg/application"
	"github.com/talkbase/talkbase/pkg/eventbus"
)

// Publisher is the broadcast capability the fanout writes to. The
// websocket hub satisfies it; tests substitute a recorder.
type Publisher interface {
	BroadcastToChannel(channel string, message []byte)
}

type realtimePayload struct {
	Type         string                             `json:"type"`
	Conversation *conversation.ConversationSnapshot `json:"conversation,omitempty"`
	Message      *conversation.MessageSnapshot      `json:"message,omitempty"`
	AgentID      *uuid.UUID                         `json:"agent_id,omitempty"`
	Reason       string                             `json:"reason,omitempty"`
	Timestamp    time.Time                          `json:"timestamp"`
}

type RealtimeServiceConfig struct {
	Publisher      Publisher
	EventPublisher eventbus.EventBus
	Logger         *logrus.Logger
}

// RealtimeService fans domain events out to websocket topics: the tenant
// dashboard, the per-conversation monitor and the assigned agent's
// personal feed. Delivery is at most once; offline observers miss the
// event and re-sync over REST.
type RealtimeService struct {
	publisher Publisher
	logger    *logrus.Logger
}

func NewRealtimeService(config RealtimeServiceConfig) *RealtimeService {
	s := &RealtimeService{
		publisher: config.Publisher,
		logger:    config.Logger,
	}
	config.EventPublisher.Subscribe(s.onMessageCreated)
	config.EventPublisher.Subscribe(s.onHandoverExecuted)
	config.EventPublisher.Subscribe(s.onConversationUpdated)
	return s
}

func (s *RealtimeService) onMessageCreated(event *conversation.MessageCreatedEvent) {
	conv := event.Conversation
	msg := event.Message
	s.broadcast("message_created", realtimePayload{
		Type:         "message_created",
		Conversation: &conv,
		Message:      &msg,
		Timestamp:    time.Now(),
	}, event.TenantID, conv.ID, conv.AssignedAgentID)
}

func (s *RealtimeService) onHandoverExecuted(event *conversation.HandoverExecutedEvent) {
	conv := event.Conversation
	agentID := event.AgentID
	payload := realtimePayload{
		Type:         "handover_executed",
		Conversation: &conv,
		Reason:       event.Reason,
		Timestamp:    time.Now(),
	}
	if agentID != uuid.Nil {
		payload.AgentID = &agentID
	}
	s.broadcast("handover_executed", payload, event.TenantID, conv.ID, agentID)
}

func (s *RealtimeService) onConversationUpdated(event *conversation.ConversationUpdatedEvent) {
	conv := event.Conversation
	s.broadcast("conversation_updated", realtimePayload{
		Type:         "conversation_updated",
		Conversation: &conv,
		Timestamp:    time.Now(),
	}, event.TenantID, conv.ID, conv.AssignedAgentID)
}

func (s *RealtimeService) broadcast(eventType string, payload realtimePayload, tenantID, conversationID, agentID uuid.UUID) {
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("failed to marshal realtime payload")
		return
	}
	s.publisher.BroadcastToChannel(application.DashboardChannel(tenantID), raw)
	s.publisher.BroadcastToChannel(application.ConversationChannel(conversationID), raw)
	if agentID != uuid.Nil {
		s.publisher.BroadcastToChannel(application.AgentChannel(agentID), raw)
	}
}
