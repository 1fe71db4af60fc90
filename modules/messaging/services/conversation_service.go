package services

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/aisettings"
	"github.com/talkbase/talkbase/pkg/composables"
	"github.com/talkbase/talkbase/pkg/eventbus"
)

type ConversationServiceConfig struct {
	ConversationRepo conversation.Repository
	MessageRepo      conversation.MessageRepository
	SettingsRepo     aisettings.Repository
	EventPublisher   eventbus.EventBus
}

type ConversationService struct {
	conversationRepo conversation.Repository
	messageRepo      conversation.MessageRepository
	settingsRepo     aisettings.Repository
	publisher        eventbus.EventBus
}

func NewConversationService(config ConversationServiceConfig) *ConversationService {
	return &ConversationService{
		conversationRepo: config.ConversationRepo,
		messageRepo:      config.MessageRepo,
		settingsRepo:     config.SettingsRepo,
		publisher:        config.EventPublisher,
	}
}

func (s *ConversationService) Create(ctx context.Context, customerExternalID, platformName string) (conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}
	conv := conversation.New(tenantID, customerExternalID, platformName)
	saved, err := s.conversationRepo.Save(ctx, conv)
	if err != nil {
		return nil, errors.Wrap(err, "failed to save conversation")
	}
	if event, err := conversation.NewConversationUpdatedEvent(ctx, saved); err == nil {
		s.publisher.Publish(event)
	}
	return saved, nil
}

func (s *ConversationService) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	return s.conversationRepo.GetByID(ctx, id)
}

func (s *ConversationService) List(ctx context.Context) ([]conversation.Conversation, error) {
	return s.conversationRepo.List(ctx)
}

// Messages returns the most recent messages, newest first.
func (s *ConversationService) Messages(ctx context.Context, conversationID uuid.UUID, limit int) ([]conversation.Message, error) {
	if _, err := s.conversationRepo.GetByID(ctx, conversationID); err != nil {
		return nil, err
	}
	return s.messageRepo.RecentByConversation(ctx, conversationID, limit)
}

// Resolve closes out a conversation from the dashboard.
func (s *ConversationService) Resolve(ctx context.Context, conversationID uuid.UUID) (conversation.Conversation, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	updated, err := s.conversationRepo.Save(ctx, conv.WithStatus(conversation.StatusResolved))
	if err != nil {
		return nil, errors.Wrap(err, "failed to save conversation")
	}
	if event, err := conversation.NewConversationUpdatedEvent(ctx, updated); err == nil {
		s.publisher.Publish(event)
	}
	return updated, nil
}

func (s *ConversationService) Settings(ctx context.Context, platformName string) (*aisettings.Settings, error) {
	return s.settingsRepo.GetByTenant(ctx, platformName)
}

func (s *ConversationService) SaveSettings(ctx context.Context, settings *aisettings.Settings) error {
	return s.settingsRepo.Save(ctx, settings)
}
