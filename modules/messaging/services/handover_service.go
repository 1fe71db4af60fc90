package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/agent"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/aisettings"
	"github.com/talkbase/talkbase/pkg/eventbus"
)

// humanRequestPatterns covers the common phrasings for asking a person
// to take over. Matched case-insensitively against the whole message.
var humanRequestPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(speak|talk|connect)\b.*\b(human|person|agent|representative|someone)\b`),
	regexp.MustCompile(`(?i)\btransfer\b.*\b(me|call|chat)\b`),
	regexp.MustCompile(`(?i)\b(real|live)\s+(human|person|agent)\b`),
	regexp.MustCompile(`(?i)\bhuman\s+agent\b`),
}

// EvaluationInput is the per-message signal set the decision runs on.
// Sentiment and Intent come from the generation step's annotations and
// may be absent.
type EvaluationInput struct {
	MessageText string
	Sentiment   *float64
	Intent      string
}

// Decision is the outcome of one rule evaluation. Reason is the first
// matching rule's reason, stable across releases because dashboards and
// tests string-match it.
type Decision struct {
	ShouldHandover bool
	Reason         string
}

// UnresolvedStrategy decides whether a conversation looks stuck. The
// short-message heuristic is a weak proxy, so it stays swappable.
type UnresolvedStrategy interface {
	Unresolved(ctx context.Context, conversationID uuid.UUID, trigger aisettings.UnresolvedTrigger) (bool, int, error)
}

// ShortMessageStrategy counts the run of consecutive customer messages
// at or under the word limit, newest first. Reaching the trigger limit
// means unresolved.
type ShortMessageStrategy struct {
	MessageRepo conversation.MessageRepository
}

func (s *ShortMessageStrategy) Unresolved(ctx context.Context, conversationID uuid.UUID, trigger aisettings.UnresolvedTrigger) (bool, int, error) {
	msgs, err := s.MessageRepo.RecentByConversation(ctx, conversationID, trigger.Limit*2)
	if err != nil {
		return false, 0, errors.Wrap(err, "failed to load recent messages")
	}
	run := 0
	for _, msg := range msgs {
		if msg.Sender() != conversation.SenderCustomer {
			continue
		}
		if len(strings.Fields(msg.Content())) > trigger.WordLimit {
			break
		}
		run++
		if run >= trigger.Limit {
			return true, run, nil
		}
	}
	return false, run, nil
}

type HandoverServiceConfig struct {
	ConversationRepo conversation.Repository
	MessageRepo      conversation.MessageRepository
	AgentRepo        agent.Repository
	SettingsRepo     aisettings.Repository
	EventPublisher   eventbus.EventBus
	Unresolved       UnresolvedStrategy
}

// HandoverService decides when a conversation moves from AI to a human
// agent and performs the transition.
type HandoverService struct {
	conversationRepo conversation.Repository
	messageRepo      conversation.MessageRepository
	agentRepo        agent.Repository
	settingsRepo     aisettings.Repository
	publisher        eventbus.EventBus
	unresolved       UnresolvedStrategy
}

func NewHandoverService(config HandoverServiceConfig) *HandoverService {
	if config.Unresolved == nil {
		config.Unresolved = &ShortMessageStrategy{MessageRepo: config.MessageRepo}
	}
	return &HandoverService{
		conversationRepo: config.ConversationRepo,
		messageRepo:      config.MessageRepo,
		agentRepo:        config.AgentRepo,
		settingsRepo:     config.SettingsRepo,
		publisher:        config.EventPublisher,
		unresolved:       config.Unresolved,
	}
}

// Evaluate runs the trigger rules in their fixed order and returns the
// first match. An already-human conversation never triggers again.
func (s *HandoverService) Evaluate(ctx context.Context, conv conversation.Conversation, input EvaluationInput) (Decision, error) {
	if conv.IsHumanHandled() {
		return Decision{}, nil
	}

	settings, err := s.settingsRepo.GetByTenant(ctx, conv.Platform())
	if err != nil {
		return Decision{}, errors.Wrap(err, "failed to load AI settings")
	}
	triggers := settings.Triggers
	lowered := strings.ToLower(input.MessageText)

	if triggers.Keyword.Enabled {
		for _, keyword := range triggers.Keyword.Keywords {
			if keyword != "" && strings.Contains(lowered, strings.ToLower(keyword)) {
				return Decision{ShouldHandover: true, Reason: fmt.Sprintf("Escalation keyword detected: %s", keyword)}, nil
			}
		}
	}

	if triggers.BlockedTopic.Enabled {
		for _, topic := range triggers.BlockedTopic.Topics {
			if topic != "" && strings.Contains(lowered, strings.ToLower(topic)) {
				return Decision{ShouldHandover: true, Reason: fmt.Sprintf("Blocked topic detected: %s", topic)}, nil
			}
		}
	}

	if triggers.Sentiment.Enabled && input.Sentiment != nil && *input.Sentiment <= triggers.Sentiment.Threshold {
		return Decision{ShouldHandover: true, Reason: fmt.Sprintf("Negative sentiment threshold exceeded: %g", *input.Sentiment)}, nil
	}

	if triggers.Intent.Enabled && input.Intent != "" {
		for _, intent := range triggers.Intent.Intents {
			if strings.EqualFold(intent, input.Intent) {
				return Decision{ShouldHandover: true, Reason: fmt.Sprintf("High-priority intent detected: %s", input.Intent)}, nil
			}
		}
	}

	if triggers.Unresolved.Enabled {
		stuck, run, err := s.unresolved.Unresolved(ctx, conv.ID(), triggers.Unresolved)
		if err != nil {
			return Decision{}, errors.Wrap(err, "failed to evaluate unresolved trigger")
		}
		if stuck {
			return Decision{ShouldHandover: true, Reason: fmt.Sprintf("Consecutive unresolved messages reached: %d", run)}, nil
		}
	}

	if triggers.ExplicitRequest.Enabled {
		for _, pattern := range humanRequestPatterns {
			if pattern.MatchString(input.MessageText) {
				return Decision{ShouldHandover: true, Reason: "Customer requested a human agent"}, nil
			}
		}
	}

	return Decision{}, nil
}

// Execute moves the conversation to a human handler. Idempotent: an
// already-human conversation is returned unchanged with no event and no
// synthetic message. agentID may be uuid.Nil to let the service pick the
// least recently assigned active agent.
func (s *HandoverService) Execute(ctx context.Context, conversationID uuid.UUID, agentID uuid.UUID, pausedBy uuid.UUID, reason string) (conversation.Conversation, error) {
	conv, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load conversation")
	}
	if conv.IsHumanHandled() {
		return conv, nil
	}

	if agentID == uuid.Nil {
		picked, err := s.agentRepo.LeastRecentlyActive(ctx)
		if err != nil {
			if !errors.Is(err, agent.ErrNoAvailableAgent) {
				return nil, errors.Wrap(err, "failed to select agent")
			}
			// No agent online: the conversation still leaves AI handling
			// and waits unassigned in the dashboard queue.
		} else {
			agentID = picked.ID()
		}
	}

	updated := conv.Handover(agentID, pausedBy, reason)
	updated, err = s.conversationRepo.Save(ctx, updated)
	if err != nil {
		return nil, errors.Wrap(err, "failed to save conversation")
	}

	if agentID != uuid.Nil {
		if err := s.agentRepo.TouchAssignment(ctx, agentID); err != nil {
			return nil, errors.Wrap(err, "failed to record agent assignment")
		}
	}

	systemMsg, err := conversation.NewMessage(
		updated.ID(),
		conversation.DirectionOutbound,
		conversation.SenderSystem,
		fmt.Sprintf("Conversation transferred to a human agent. Reason: %s", reason),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build system message")
	}
	if _, err := s.messageRepo.Save(ctx, systemMsg); err != nil {
		return nil, errors.Wrap(err, "failed to save system message")
	}

	event, err := conversation.NewHandoverExecutedEvent(ctx, updated, agentID, reason)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build handover event")
	}
	s.publisher.Publish(event)
	return updated, nil
}
