package dtos

import "time"

const (
	ErrorCodeInvalidRequest       = "INVALID_REQUEST"
	ErrorCodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	ErrorCodeDuplicateMessage     = "DUPLICATE_MESSAGE"
	ErrorCodeGenerationFailed     = "GENERATION_FAILED"
	ErrorCodeInternalServer       = "INTERNAL_SERVER_ERROR"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type CreateConversationRequest struct {
	CustomerExternalID string `json:"customer_external_id" validate:"required,min=1,max=255"`
	Platform           string `json:"platform" validate:"required,min=1,max=50"`
}

type InboundMessageRequest struct {
	Text              string    `json:"text" validate:"required,min=1"`
	SenderExternalID  string    `json:"sender_external_id" validate:"omitempty,max=255"`
	PlatformMessageID string    `json:"platform_message_id" validate:"omitempty,max=255"`
	Timestamp         time.Time `json:"timestamp"`
	Origin            string    `json:"origin" validate:"omitempty,max=50"`
}

type HandoverRequest struct {
	AgentID string `json:"agent_id" validate:"omitempty,uuid"`
	Reason  string `json:"reason" validate:"required,min=1,max=500"`
}

type ConversationResponse struct {
	ID                 string     `json:"id"`
	CustomerExternalID string     `json:"customer_external_id"`
	Platform           string     `json:"platform"`
	HandlerType        string     `json:"handler_type"`
	AIEnabled          bool       `json:"ai_enabled"`
	AssignedAgentID    string     `json:"assigned_agent_id,omitempty"`
	Status             string     `json:"status"`
	Priority           string     `json:"priority"`
	SentimentScore     float64    `json:"sentiment_score"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
}

type MessageResponse struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Sender         string    `json:"sender"`
	Content        string    `json:"content"`
	Intent         string    `json:"intent,omitempty"`
	Sentiment      *float64  `json:"sentiment,omitempty"`
	Confidence     *float64  `json:"confidence,omitempty"`
	DeliveryStatus string    `json:"delivery_status"`
	CreatedAt      time.Time `json:"created_at"`
}

type MessageListResponse struct {
	Messages []MessageResponse `json:"messages"`
}

type OrchestrationResponse struct {
	Conversation   ConversationResponse `json:"conversation"`
	Message        MessageResponse      `json:"message"`
	AIMessage      *MessageResponse     `json:"ai_message,omitempty"`
	HandedOver     bool                 `json:"handed_over"`
	HandoverReason string               `json:"handover_reason,omitempty"`
	ChunksUsed     int                  `json:"chunks_used"`
	FromCache      bool                 `json:"from_cache"`
}
