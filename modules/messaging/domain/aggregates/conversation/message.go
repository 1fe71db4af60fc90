package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/pkg/serrors"
)

// ErrDuplicateMessage is returned when a message with the same external
// message ID already exists for the tenant and conversation. Duplicates
// are rejected at the persistence layer, never re-processed.
var ErrDuplicateMessage = serrors.NewError("DUPLICATE_MESSAGE", "message with this external ID already exists", "")

var ErrEmptyMessage = serrors.NewError("EMPTY_MESSAGE", "message content is empty", "")

var ErrMessageNotFound = errors.New("message not found")

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type SenderType string

const (
	SenderCustomer SenderType = "customer"
	SenderAI       SenderType = "ai"
	SenderHuman    SenderType = "human"
	SenderSystem   SenderType = "system"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

type MessageRepository interface {
	// Save rejects duplicates by (tenant, conversation, external message
	// ID) with ErrDuplicateMessage.
	Save(ctx context.Context, msg Message) (Message, error)
	GetByID(ctx context.Context, id uuid.UUID) (Message, error)
	// RecentByConversation returns up to limit messages most-recent-first.
	RecentByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]Message, error)
	UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status DeliveryStatus) error
}

// AIAnnotations carries model-derived metadata on a message. Zero values
// mean "not annotated", not "neutral".
type AIAnnotations struct {
	Intent     string
	Sentiment  *float64
	Confidence *float64
	Entities   map[string]string
}

// Message is immutable after creation apart from its delivery status.
type Message interface {
	ID() uuid.UUID
	ConversationID() uuid.UUID
	Direction() Direction
	Sender() SenderType
	Content() string
	Annotations() AIAnnotations
	DeliveryStatus() DeliveryStatus
	ExternalMessageID() string
	PlatformTimestamp() time.Time
	CreatedAt() time.Time
}

type message struct {
	id                uuid.UUID
	conversationID    uuid.UUID
	direction         Direction
	sender            SenderType
	content           string
	annotations       AIAnnotations
	deliveryStatus    DeliveryStatus
	externalMessageID string
	platformTimestamp time.Time
	createdAt         time.Time
}

func NewMessage(conversationID uuid.UUID, direction Direction, sender SenderType, content string, opts ...MessageOption) (Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	m := &message{
		id:             uuid.New(),
		conversationID: conversationID,
		direction:      direction,
		sender:         sender,
		content:        content,
		deliveryStatus: DeliveryPending,
		createdAt:      time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.externalMessageID == "" {
		m.externalMessageID = m.id.String()
	}
	return m, nil
}

type MessageOption func(*message)

func WithMessageID(id uuid.UUID) MessageOption {
	return func(m *message) {
		if id != uuid.Nil {
			m.id = id
		}
	}
}

func WithAnnotations(annotations AIAnnotations) MessageOption {
	return func(m *message) {
		m.annotations = annotations
	}
}

func WithDeliveryStatus(status DeliveryStatus) MessageOption {
	return func(m *message) {
		if status != "" {
			m.deliveryStatus = status
		}
	}
}

func WithExternalMessageID(id string) MessageOption {
	return func(m *message) {
		m.externalMessageID = id
	}
}

func WithPlatformTimestamp(ts time.Time) MessageOption {
	return func(m *message) {
		m.platformTimestamp = ts
	}
}

func WithMessageCreatedAt(createdAt time.Time) MessageOption {
	return func(m *message) {
		if !createdAt.IsZero() {
			m.createdAt = createdAt
		}
	}
}

func (m *message) ID() uuid.UUID                  { return m.id }
func (m *message) ConversationID() uuid.UUID      { return m.conversationID }
func (m *message) Direction() Direction           { return m.direction }
func (m *message) Sender() SenderType             { return m.sender }
func (m *message) Content() string                { return m.content }
func (m *message) Annotations() AIAnnotations     { return m.annotations }
func (m *message) DeliveryStatus() DeliveryStatus { return m.deliveryStatus }
func (m *message) ExternalMessageID() string      { return m.externalMessageID }
func (m *message) PlatformTimestamp() time.Time   { return m.platformTimestamp }
func (m *message) CreatedAt() time.Time           { return m.createdAt }
