package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/gob"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	knowledgeServices "github.com/talkbase/talkbase/modules/knowledge/services"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/aisettings"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/aiusagelog"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/platform"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/responsecache"
	"github.com/talkbase/talkbase/pkg/background"
	"github.com/talkbase/talkbase/pkg/composables"
	"github.com/talkbase/talkbase/pkg/configuration"
	"github.com/talkbase/talkbase/pkg/eventbus"
	"github.com/talkbase/talkbase/pkg/llm"
	"github.com/talkbase/talkbase/pkg/serrors"
)

// ErrGenerationFailed is surfaced when the language model cannot produce
// a response. Fatal to the request: no AI message is persisted and no
// handover evaluation runs.
var ErrGenerationFailed = serrors.NewError("GENERATION_FAILED", "AI response generation failed", "")

// InboundMessage is the event the orchestrator consumes: one customer
// message arriving from a platform webhook or the dashboard socket.
type InboundMessage struct {
	ConversationID    uuid.UUID
	Text              string
	SenderExternalID  string
	PlatformMessageID string
	Timestamp         time.Time
	// Origin names where the message came from. platform.Dashboard skips
	// the outbound platform dispatch.
	Origin string
	// Credentials is the opaque platform credential blob used for the
	// outbound dispatch. Managed by the platform-account subsystem.
	Credentials []byte
}

type OrchestrationResult struct {
	Conversation   conversation.Conversation
	InboundMessage conversation.Message
	AIMessage      conversation.Message
	Retrieval      *knowledgeServices.RetrievalResult
	HandedOver     bool
	HandoverReason string
	FromCache      bool
}

type OrchestratorServiceConfig struct {
	ConversationRepo conversation.Repository
	MessageRepo      conversation.MessageRepository
	UsageLogRepo     aiusagelog.Repository
	SettingsRepo     aisettings.Repository
	ContextTracker   *ContextTracker
	Retrieval        *knowledgeServices.RetrievalService
	Handover         *HandoverService
	Generator        llm.Generator
	EventPublisher   eventbus.EventBus
	Queue            *background.Queue
	Gateway          platform.Gateway
	ResponseCache    responsecache.Cache

	Model             string
	GenerationTimeout time.Duration
}

// OrchestratorService runs the inbound-message pipeline end to end:
// persist, build context, rewrite, retrieve, generate, log, evaluate
// handover, dispatch. Work on one conversation is serialized; different
// conversations run fully in parallel.
type OrchestratorService struct {
	conversationRepo conversation.Repository
	messageRepo      conversation.MessageRepository
	usageLogRepo     aiusagelog.Repository
	settingsRepo     aisettings.Repository
	tracker          *ContextTracker
	retrieval        *knowledgeServices.RetrievalService
	handover         *HandoverService
	generator        llm.Generator
	publisher        eventbus.EventBus
	queue            *background.Queue
	gateway          platform.Gateway
	cache            responsecache.Cache

	model             string
	generationTimeout time.Duration

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func NewOrchestratorService(config OrchestratorServiceConfig) *OrchestratorService {
	conf := configuration.Use()
	if config.Model == "" {
		config.Model = conf.OpenAI.ChatModel
	}
	if config.GenerationTimeout == 0 {
		config.GenerationTimeout = conf.Pipeline.GenerationTimeout
	}
	return &OrchestratorService{
		conversationRepo:  config.ConversationRepo,
		messageRepo:       config.MessageRepo,
		usageLogRepo:      config.UsageLogRepo,
		settingsRepo:      config.SettingsRepo,
		tracker:           config.ContextTracker,
		retrieval:         config.Retrieval,
		handover:          config.Handover,
		generator:         config.Generator,
		publisher:         config.EventPublisher,
		queue:             config.Queue,
		gateway:           config.Gateway,
		cache:             config.ResponseCache,
		model:             config.Model,
		generationTimeout: config.GenerationTimeout,
		locks:             make(map[uuid.UUID]*sync.Mutex),
	}
}

// conversationLock serializes pipeline runs per conversation. The map
// only grows; conversations are few per process lifetime relative to
// messages, so entries are not reaped.
func (s *OrchestratorService) conversationLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, found := s.locks[id]
	if !found {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// ProcessInbound runs the full pipeline for one customer message.
func (s *OrchestratorService) ProcessInbound(ctx context.Context, inbound InboundMessage) (*OrchestrationResult, error) {
	lock := s.conversationLock(inbound.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	logger := composables.UseLogger(ctx)

	conv, err := s.conversationRepo.GetByID(ctx, inbound.ConversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load conversation")
	}

	inboundMsg, err := s.persistInbound(ctx, inbound)
	if err != nil {
		return nil, err
	}
	s.publishMessageCreated(ctx, conv, inboundMsg)

	result := &OrchestrationResult{Conversation: conv, InboundMessage: inboundMsg}
	if conv.IsHumanHandled() {
		// Human-handled conversations get no AI response; the message is
		// stored and fanned out for the agent dashboard.
		return result, nil
	}

	settings, err := s.settingsRepo.GetByTenant(ctx, conv.Platform())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AI settings")
	}

	// Context and retrieval failures degrade: generation proceeds with
	// whatever context survived.
	history, err := s.tracker.RecentExchanges(ctx, conv.ID(), 0)
	if err != nil {
		logger.WithError(err).Warn("conversation context unavailable, degrading to empty history")
		history = nil
	}
	standalone := s.tracker.RewriteStandalone(ctx, inbound.Text, history)

	retrieved := s.retrieve(ctx, conv.ID(), standalone, settings)
	result.Retrieval = retrieved

	// Generation uses the original question; only retrieval sees the
	// rewritten one.
	prompt := s.composePrompt(settings, retrieved, history, inbound.Text)
	generationStart := time.Now()
	completion, fromCache, err := s.generate(ctx, settings, prompt)
	if err != nil {
		return nil, ErrGenerationFailed.WithDetails("%v", err)
	}
	generationLatency := time.Since(generationStart)
	result.FromCache = fromCache

	// The client may be gone by now; persistence still completes.
	detachedCtx := context.WithoutCancel(ctx)

	aiMsg, err := conversation.NewMessage(
		conv.ID(),
		conversation.DirectionOutbound,
		conversation.SenderAI,
		completion.Text,
		conversation.WithAnnotations(conversation.AIAnnotations{
			Intent:     completion.Intent,
			Sentiment:  completion.Sentiment,
			Confidence: completion.Confidence,
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build AI message")
	}
	aiMsg, err = s.messageRepo.Save(detachedCtx, aiMsg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to save AI message")
	}
	result.AIMessage = aiMsg
	s.publishMessageCreated(detachedCtx, conv, aiMsg)

	decision := s.evaluateHandover(detachedCtx, conv, inbound.Text, completion)
	if decision.ShouldHandover {
		updated, err := s.handover.Execute(detachedCtx, conv.ID(), uuid.Nil, uuid.Nil, decision.Reason)
		if err != nil {
			logger.WithError(err).Error("handover execution failed")
		} else {
			conv = updated
			result.Conversation = updated
			result.HandedOver = true
			result.HandoverReason = decision.Reason
		}
	}

	s.dispatchUsageLog(detachedCtx, conv, aiMsg, completion, retrieved, generationLatency, decision.ShouldHandover)
	conv = s.touchTimestamps(detachedCtx, conv, inbound.Timestamp)
	result.Conversation = conv

	if inbound.Origin != platform.Dashboard {
		s.dispatchToPlatform(detachedCtx, conv, inbound, aiMsg)
	}
	return result, nil
}

func (s *OrchestratorService) persistInbound(ctx context.Context, inbound InboundMessage) (conversation.Message, error) {
	opts := []conversation.MessageOption{
		conversation.WithExternalMessageID(inbound.PlatformMessageID),
		conversation.WithPlatformTimestamp(inbound.Timestamp),
	}
	msg, err := conversation.NewMessage(
		inbound.ConversationID,
		conversation.DirectionInbound,
		conversation.SenderCustomer,
		inbound.Text,
		opts...,
	)
	if err != nil {
		return nil, errors.Wrap(err, "invalid inbound message")
	}
	saved, err := s.messageRepo.Save(ctx, msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to save inbound message")
	}
	return saved, nil
}

func (s *OrchestratorService) retrieve(ctx context.Context, conversationID uuid.UUID, query string, settings *aisettings.Settings) *knowledgeServices.RetrievalResult {
	// Tenant settings steer the lookup on every pass.
	retrieved, err := s.retrieval.Retrieve(ctx, conversationID, query, knowledgeServices.RetrieveOptions{
		TopK:          settings.MaxKnowledgeChunks,
		MinSimilarity: settings.SimilarityThreshold,
	})
	if err != nil {
		composables.UseLogger(ctx).
			WithError(err).
			Warn("knowledge retrieval failed, degrading to empty context")
		return &knowledgeServices.RetrievalResult{}
	}
	return retrieved
}

func (s *OrchestratorService) composePrompt(settings *aisettings.Settings, retrieved *knowledgeServices.RetrievalResult, history []Exchange, question string) []llm.Message {
	var system strings.Builder
	if settings.SystemPrompt != "" {
		system.WriteString(settings.SystemPrompt)
	} else {
		system.WriteString("You are a helpful customer support assistant.")
	}
	if len(retrieved.Matches) > 0 {
		system.WriteString("\n\nUse the following knowledge base context when relevant:\n")
		for _, match := range retrieved.Matches {
			system.WriteString("\n---\n")
			system.WriteString(match.Content)
		}
	}

	messages := []llm.Message{llm.SystemMessage(system.String())}
	for _, exchange := range history {
		messages = append(messages, llm.UserMessage(exchange.Question), llm.AssistantMessage(exchange.Answer))
	}
	return append(messages, llm.UserMessage(question))
}

func (s *OrchestratorService) generate(ctx context.Context, settings *aisettings.Settings, prompt []llm.Message) (llm.Completion, bool, error) {
	cacheKey, keyErr := s.cacheKey(settings, prompt)
	if s.cache != nil && keyErr == nil {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
			return llm.Completion{Text: cached}, true, nil
		} else if !errors.Is(err, responsecache.ErrKeyNotFound) {
			composables.UseLogger(ctx).WithError(err).Warn("response cache read failed")
		}
	}

	genCtx, cancel := context.WithTimeout(ctx, s.generationTimeout)
	defer cancel()
	completion, err := s.generator.Generate(genCtx, prompt)
	if err != nil {
		return llm.Completion{}, false, err
	}

	if s.cache != nil && keyErr == nil {
		if err := s.cache.Set(ctx, cacheKey, completion.Text); err != nil {
			composables.UseLogger(ctx).WithError(err).Warn("response cache write failed")
		}
	}
	return completion, false, nil
}

func (s *OrchestratorService) cacheKey(settings *aisettings.Settings, prompt []llm.Message) (string, error) {
	var buffer bytes.Buffer
	if err := gob.NewEncoder(&buffer).Encode(settings); err != nil {
		return "", err
	}
	if err := gob.NewEncoder(&buffer).Encode(prompt); err != nil {
		return "", err
	}
	hash := md5.Sum(buffer.Bytes())
	return hex.EncodeToString(hash[:]), nil
}

func (s *OrchestratorService) evaluateHandover(ctx context.Context, conv conversation.Conversation, messageText string, completion llm.Completion) Decision {
	decision, err := s.handover.Evaluate(ctx, conv, EvaluationInput{
		MessageText: messageText,
		Sentiment:   completion.Sentiment,
		Intent:      completion.Intent,
	})
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Error("handover evaluation failed")
		return Decision{}
	}
	return decision
}

func (s *OrchestratorService) dispatchUsageLog(ctx context.Context, conv conversation.Conversation, aiMsg conversation.Message, completion llm.Completion, retrieved *knowledgeServices.RetrievalResult, latency time.Duration, handedOver bool) {
	entry := aiusagelog.New(conv.TenantID(), conv.ID())
	entry.MessageID = aiMsg.ID()
	entry.Model = s.model
	entry.TokensUsed = completion.TokensUsed
	entry.Latency = latency
	entry.Confidence = completion.Confidence
	entry.ChunksUsed = len(retrieved.Matches)
	entry.HandoverTriggered = handedOver

	if s.queue == nil {
		if err := s.usageLogRepo.Append(ctx, entry); err != nil {
			configuration.Use().Logger().
				WithError(err).
				Error("failed to append AI usage log")
		}
		return
	}
	s.queue.Dispatch(background.Task{
		Name: "messaging.ai_usage_log",
		Run: func(taskCtx context.Context) error {
			runCtx, cancel := background.MergeDeadline(ctx, taskCtx)
			defer cancel()
			return s.usageLogRepo.Append(runCtx, entry)
		},
	})
}

func (s *OrchestratorService) touchTimestamps(ctx context.Context, conv conversation.Conversation, inboundAt time.Time) conversation.Conversation {
	if inboundAt.IsZero() {
		inboundAt = time.Now()
	}
	touched := conv.TouchCustomerMessage(inboundAt).TouchAIResponse(time.Now())
	saved, err := s.conversationRepo.Save(ctx, touched)
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Error("failed to update conversation timestamps")
		return conv
	}
	if event, err := conversation.NewConversationUpdatedEvent(ctx, saved); err == nil {
		s.publisher.Publish(event)
	}
	return saved
}

func (s *OrchestratorService) dispatchToPlatform(ctx context.Context, conv conversation.Conversation, inbound InboundMessage, aiMsg conversation.Message) {
	if s.gateway == nil {
		return
	}
	err := s.gateway.Send(ctx, platform.SendParams{
		Platform:            conv.Platform(),
		RecipientExternalID: conv.CustomerExternalID(),
		Text:                aiMsg.Content(),
		Credentials:         inbound.Credentials,
	})
	status := conversation.DeliverySent
	if err != nil {
		composables.UseLogger(ctx).
			WithError(err).
			WithField("platform", conv.Platform()).
			Error("platform dispatch failed")
		status = conversation.DeliveryFailed
	}
	if err := s.messageRepo.UpdateDeliveryStatus(ctx, aiMsg.ID(), status); err != nil {
		composables.UseLogger(ctx).WithError(err).Error("failed to update delivery status")
	}
}

func (s *OrchestratorService) publishMessageCreated(ctx context.Context, conv conversation.Conversation, msg conversation.Message) {
	event, err := conversation.NewMessageCreatedEvent(ctx, conv, msg)
	if err != nil {
		composables.UseLogger(ctx).WithError(err).Error("failed to build message event")
		return
	}
	s.publisher.Publish(event)
}
