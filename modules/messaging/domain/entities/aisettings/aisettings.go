// Package aisettings holds the per-tenant-per-platform AI configuration
// read on every orchestration pass. Trigger parameters are typed named
// fields, not free-form maps; unknown keys cannot survive a load.
package aisettings

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const (
	DefaultSentimentThreshold  = -0.7
	DefaultConsecutiveLimit    = 3
	DefaultShortMessageWords   = 3
	DefaultConfidenceThreshold = 0.5
	DefaultSimilarityThreshold = 0.7
	DefaultMaxKnowledgeChunks  = 5
)

func DefaultHighPriorityIntents() []string {
	return []string{"complaint", "refund_request"}
}

type Repository interface {
	// GetByTenant returns the tenant's settings for a platform, falling
	// back to defaults when none are stored.
	GetByTenant(ctx context.Context, platform string) (*Settings, error)
	Save(ctx context.Context, settings *Settings) error
}

type KeywordTrigger struct {
	Enabled  bool     `json:"enabled"`
	Keywords []string `json:"keywords" validate:"omitempty,dive,min=1"`
}

type BlockedTopicTrigger struct {
	Enabled bool     `json:"enabled"`
	Topics  []string `json:"topics" validate:"omitempty,dive,min=1"`
}

type SentimentTrigger struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold" validate:"gte=-1,lte=0"`
}

type IntentTrigger struct {
	Enabled bool     `json:"enabled"`
	Intents []string `json:"intents" validate:"omitempty,dive,min=1"`
}

type UnresolvedTrigger struct {
	Enabled bool `json:"enabled"`
	// Limit is the count of consecutive short customer messages that
	// triggers handover.
	Limit     int `json:"limit" validate:"gte=1"`
	WordLimit int `json:"word_limit" validate:"gte=1"`
}

type ExplicitRequestTrigger struct {
	Enabled bool `json:"enabled"`
}

type HandoverTriggers struct {
	Keyword         KeywordTrigger         `json:"keyword"`
	BlockedTopic    BlockedTopicTrigger    `json:"blocked_topic"`
	Sentiment       SentimentTrigger       `json:"sentiment"`
	Intent          IntentTrigger          `json:"intent"`
	Unresolved      UnresolvedTrigger      `json:"unresolved"`
	ExplicitRequest ExplicitRequestTrigger `json:"explicit_request"`
}

type BusinessHours struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone" validate:"omitempty,min=1"`
	// Opening and Closing are "15:04" wall-clock strings.
	Opening string `json:"opening" validate:"omitempty,len=5"`
	Closing string `json:"closing" validate:"omitempty,len=5"`
}

type Settings struct {
	TenantID            uuid.UUID        `json:"tenant_id" validate:"required"`
	Platform            string           `json:"platform" validate:"required"`
	SystemPrompt        string           `json:"system_prompt"`
	ConfidenceThreshold float64          `json:"confidence_threshold" validate:"gte=0,lte=1"`
	SimilarityThreshold float64          `json:"similarity_threshold" validate:"gte=0,lte=1"`
	MaxKnowledgeChunks  int              `json:"max_knowledge_chunks" validate:"gte=1,lte=50"`
	Triggers            HandoverTriggers `json:"handover_triggers"`
	BusinessHours       BusinessHours    `json:"business_hours"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// Default returns the settings used when a tenant has stored none: all
// six triggers enabled with the documented default parameters.
func Default(tenantID uuid.UUID, platform string) *Settings {
	return &Settings{
		TenantID:            tenantID,
		Platform:            platform,
		ConfidenceThreshold: DefaultConfidenceThreshold,
		SimilarityThreshold: DefaultSimilarityThreshold,
		MaxKnowledgeChunks:  DefaultMaxKnowledgeChunks,
		Triggers: HandoverTriggers{
			Keyword:      KeywordTrigger{Enabled: true},
			BlockedTopic: BlockedTopicTrigger{Enabled: true},
			Sentiment: SentimentTrigger{
				Enabled:   true,
				Threshold: DefaultSentimentThreshold,
			},
			Intent: IntentTrigger{
				Enabled: true,
				Intents: DefaultHighPriorityIntents(),
			},
			Unresolved: UnresolvedTrigger{
				Enabled:   true,
				Limit:     DefaultConsecutiveLimit,
				WordLimit: DefaultShortMessageWords,
			},
			ExplicitRequest: ExplicitRequestTrigger{Enabled: true},
		},
		UpdatedAt: time.Now(),
	}
}

func (s *Settings) Validate() error {
	return validate.Struct(s)
}
