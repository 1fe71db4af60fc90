package models

import (
	"database/sql"
	"time"
)

type Conversation struct {
	ID                  string
	TenantID            string
	CustomerExternalID  string
	Platform            string
	HandlerType         string
	AIEnabled           bool
	AssignedAgentID     sql.NullString
	Status              string
	Priority            string
	SentimentScore      float64
	PausedBy            sql.NullString
	PausedAt            sql.NullTime
	PauseReason         sql.NullString
	FirstMessageAt      sql.NullTime
	LastMessageAt       sql.NullTime
	LastAIResponseAt    sql.NullTime
	LastHumanResponseAt sql.NullTime
	ResolvedAt          sql.NullTime
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Message struct {
	ID                string
	TenantID          string
	ConversationID    string
	Direction         string
	SenderType        string
	Content           string
	Intent            sql.NullString
	Sentiment         sql.NullFloat64
	Confidence        sql.NullFloat64
	Entities          []byte
	DeliveryStatus    string
	ExternalMessageID string
	PlatformTimestamp sql.NullTime
	CreatedAt         time.Time
}

type Agent struct {
	ID             string
	TenantID       string
	Name           string
	Role           string
	Active         bool
	LastAssignedAt sql.NullTime
}

type AIUsageLog struct {
	ID                string
	TenantID          string
	ConversationID    string
	MessageID         string
	Model             string
	TokensUsed        int
	LatencyMS         int64
	Confidence        sql.NullFloat64
	ChunksUsed        int
	HandoverTriggered bool
	CreatedAt         time.Time
}

type TenantAISetting struct {
	ID        string
	TenantID  string
	Platform  string
	Settings  []byte
	UpdatedAt time.Time
}
