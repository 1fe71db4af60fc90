package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrConversationNotFound = errors.New("conversation not found")

type HandlerType string

const (
	HandlerAI    HandlerType = "ai"
	HandlerHuman HandlerType = "human"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
	StatusClosed   Status = "closed"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Conversation, error)
	Save(ctx context.Context, conv Conversation) (Conversation, error)
	List(ctx context.Context) ([]Conversation, error)
}

// Conversation is a customer dialogue thread on one platform. Exactly one
// handler type is active at a time; disabling AI forces the human handler.
type Conversation interface {
	ID() uuid.UUID
	TenantID() uuid.UUID
	CustomerExternalID() string
	Platform() string
	HandlerType() HandlerType
	AIEnabled() bool
	AssignedAgentID() uuid.UUID
	Status() Status
	Priority() Priority
	SentimentScore() float64
	PausedBy() uuid.UUID
	PausedAt() time.Time
	PauseReason() string
	FirstMessageAt() time.Time
	LastMessageAt() time.Time
	LastAIResponseAt() time.Time
	LastHumanResponseAt() time.Time
	ResolvedAt() time.Time
	CreatedAt() time.Time
	UpdatedAt() time.Time

	IsHumanHandled() bool
	Handover(agentID uuid.UUID, pausedBy uuid.UUID, reason string) Conversation
	WithStatus(status Status) Conversation
	WithSentiment(score float64) Conversation
	TouchCustomerMessage(at time.Time) Conversation
	TouchAIResponse(at time.Time) Conversation
	TouchHumanResponse(at time.Time) Conversation
}

type conv struct {
	id                 uuid.UUID
	tenantID           uuid.UUID
	customerExternalID string
	platform           string
	handlerType        HandlerType
	aiEnabled          bool
	assignedAgentID    uuid.UUID
	status             Status
	priority           Priority
	sentimentScore     float64
	pausedBy           uuid.UUID
	pausedAt           time.Time
	pauseReason        string
	firstMessageAt     time.Time
	lastMessageAt      time.Time
	lastAIResponseAt   time.Time
	lastHumanRespAt    time.Time
	resolvedAt         time.Time
	createdAt          time.Time
	updatedAt          time.Time
}

func New(tenantID uuid.UUID, customerExternalID, platform string, opts ...Option) Conversation {
	c := &conv{
		id:                 uuid.New(),
		tenantID:           tenantID,
		customerExternalID: customerExternalID,
		platform:           platform,
		handlerType:        HandlerAI,
		aiEnabled:          true,
		status:             StatusActive,
		priority:           PriorityNormal,
		createdAt:          time.Now(),
		updatedAt:          time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Option func(*conv)

func WithID(id uuid.UUID) Option {
	return func(c *conv) {
		if id != uuid.Nil {
			c.id = id
		}
	}
}

func WithHandler(handlerType HandlerType, aiEnabled bool) Option {
	return func(c *conv) {
		c.handlerType = handlerType
		c.aiEnabled = aiEnabled
		if !c.aiEnabled {
			c.handlerType = HandlerHuman
		}
	}
}

func WithAssignedAgent(agentID uuid.UUID) Option {
	return func(c *conv) {
		c.assignedAgentID = agentID
	}
}

func WithStatus(status Status) Option {
	return func(c *conv) {
		if status != "" {
			c.status = status
		}
	}
}

func WithPriority(priority Priority) Option {
	return func(c *conv) {
		if priority != "" {
			c.priority = priority
		}
	}
}

func WithSentimentScore(score float64) Option {
	return func(c *conv) {
		c.sentimentScore = score
	}
}

func WithPause(pausedBy uuid.UUID, pausedAt time.Time, reason string) Option {
	return func(c *conv) {
		c.pausedBy = pausedBy
		c.pausedAt = pausedAt
		c.pauseReason = reason
	}
}

func WithTimestamps(firstMessage, lastMessage, lastAI, lastHuman, resolved time.Time) Option {
	return func(c *conv) {
		c.firstMessageAt = firstMessage
		c.lastMessageAt = lastMessage
		c.lastAIResponseAt = lastAI
		c.lastHumanRespAt = lastHuman
		c.resolvedAt = resolved
	}
}

func WithCreatedAt(createdAt time.Time) Option {
	return func(c *conv) {
		if !createdAt.IsZero() {
			c.createdAt = createdAt
		}
	}
}

func WithUpdatedAt(updatedAt time.Time) Option {
	return func(c *conv) {
		if !updatedAt.IsZero() {
			c.updatedAt = updatedAt
		}
	}
}

func (c *conv) ID() uuid.UUID                  { return c.id }
func (c *conv) TenantID() uuid.UUID            { return c.tenantID }
func (c *conv) CustomerExternalID() string     { return c.customerExternalID }
func (c *conv) Platform() string               { return c.platform }
func (c *conv) HandlerType() HandlerType       { return c.handlerType }
func (c *conv) AIEnabled() bool                { return c.aiEnabled }
func (c *conv) AssignedAgentID() uuid.UUID     { return c.assignedAgentID }
func (c *conv) Status() Status                 { return c.status }
func (c *conv) Priority() Priority             { return c.priority }
func (c *conv) SentimentScore() float64        { return c.sentimentScore }
func (c *conv) PausedBy() uuid.UUID            { return c.pausedBy }
func (c *conv) PausedAt() time.Time            { return c.pausedAt }
func (c *conv) PauseReason() string            { return c.pauseReason }
func (c *conv) FirstMessageAt() time.Time      { return c.firstMessageAt }
func (c *conv) LastMessageAt() time.Time       { return c.lastMessageAt }
func (c *conv) LastAIResponseAt() time.Time    { return c.lastAIResponseAt }
func (c *conv) LastHumanResponseAt() time.Time { return c.lastHumanRespAt }
func (c *conv) ResolvedAt() time.Time          { return c.resolvedAt }
func (c *conv) CreatedAt() time.Time           { return c.createdAt }
func (c *conv) UpdatedAt() time.Time           { return c.updatedAt }

func (c *conv) IsHumanHandled() bool {
	return c.handlerType == HandlerHuman
}

// Handover flips the conversation to human handling. The caller guards
// idempotency; calling this on an already-human conversation is a bug.
func (c *conv) Handover(agentID uuid.UUID, pausedBy uuid.UUID, reason string) Conversation {
	clone := *c
	clone.handlerType = HandlerHuman
	clone.aiEnabled = false
	clone.assignedAgentID = agentID
	clone.pausedBy = pausedBy
	clone.pausedAt = time.Now()
	clone.pauseReason = reason
	clone.updatedAt = time.Now()
	return &clone
}

func (c *conv) WithStatus(status Status) Conversation {
	clone := *c
	clone.status = status
	if status == StatusResolved {
		clone.resolvedAt = time.Now()
	}
	clone.updatedAt = time.Now()
	return &clone
}

func (c *conv) WithSentiment(score float64) Conversation {
	clone := *c
	clone.sentimentScore = score
	clone.updatedAt = time.Now()
	return &clone
}

func (c *conv) TouchCustomerMessage(at time.Time) Conversation {
	clone := *c
	if clone.firstMessageAt.IsZero() {
		clone.firstMessageAt = at
	}
	clone.lastMessageAt = at
	clone.updatedAt = time.Now()
	return &clone
}

func (c *conv) TouchAIResponse(at time.Time) Conversation {
	clone := *c
	clone.lastAIResponseAt = at
	clone.lastMessageAt = at
	clone.updatedAt = time.Now()
	return &clone
}

func (c *conv) TouchHumanResponse(at time.Time) Conversation {
	clone := *c
	clone.lastHumanRespAt = at
	clone.lastMessageAt = at
	clone.updatedAt = time.Now()
	return &clone
}
