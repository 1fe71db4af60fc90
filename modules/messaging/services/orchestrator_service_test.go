package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	knowledgePersistence "github.com/talkbase/talkbase/modules/knowledge/infrastructure/persistence"
	knowledgeServices "github.com/talkbase/talkbase/modules/knowledge/services"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/aisettings"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/platform"
	"github.com/talkbase/talkbase/modules/messaging/infrastructure/cache"
	"github.com/talkbase/talkbase/modules/messaging/infrastructure/persistence"
	"github.com/talkbase/talkbase/modules/messaging/services"
	"github.com/talkbase/talkbase/pkg/eventbus"
	"github.com/talkbase/talkbase/pkg/itf"
	"github.com/talkbase/talkbase/pkg/llm"
)

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Model() string  { return "text-embedding-3-small" }
func (f *fakeEmbedder) Dimension() int { return len(f.vector) }

type fakeGateway struct {
	mu    sync.Mutex
	err   error
	calls []platform.SendParams
}

func (f *fakeGateway) Send(_ context.Context, params platform.SendParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	return f.err
}

func (f *fakeGateway) sent() []platform.SendParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]platform.SendParams(nil), f.calls...)
}

type orchestratorFixture struct {
	env              *itf.TestEnvironment
	sut              *services.OrchestratorService
	conversationRepo *persistence.InmemConversationRepository
	messageRepo      *persistence.InmemMessageRepository
	usageLogRepo     *persistence.InmemAIUsageLogRepository
	settingsRepo     *persistence.InmemAISettingsRepository
	agentRepo        *persistence.InmemAgentRepository
	embeddingRepo    *knowledgePersistence.InmemEmbeddingRepository
	generator        *fakeGenerator
	gateway          *fakeGateway
}

type orchestratorOption func(*services.OrchestratorServiceConfig)

func withResponseCache(c *cache.InmemCache) orchestratorOption {
	return func(config *services.OrchestratorServiceConfig) {
		config.ResponseCache = c
	}
}

func setupOrchestratorTest(t *testing.T, generator *fakeGenerator, opts ...orchestratorOption) *orchestratorFixture {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	env := itf.Setup(t)

	f := &orchestratorFixture{
		env:              env,
		conversationRepo: persistence.NewInmemConversationRepository(),
		messageRepo:      persistence.NewInmemMessageRepository(),
		usageLogRepo:     persistence.NewInmemAIUsageLogRepository(),
		settingsRepo:     persistence.NewInmemAISettingsRepository(),
		agentRepo:        persistence.NewInmemAgentRepository(),
		embeddingRepo:    knowledgePersistence.NewInmemEmbeddingRepository(),
		generator:        generator,
		gateway:          &fakeGateway{},
	}

	retrieval := knowledgeServices.NewRetrievalService(knowledgeServices.RetrievalServiceConfig{
		EmbeddingRepo: f.embeddingRepo,
		LogRepo:       knowledgePersistence.NewInmemRetrievalLogRepository(),
		Embedder:      &fakeEmbedder{vector: []float32{1, 0, 0}},
		TopK:          3,
		MinSimilarity: 0.5,
		RetryAttempts: 1,
		RetryMaxWait:  time.Millisecond,
	})
	tracker := services.NewContextTracker(services.ContextTrackerConfig{
		MessageRepo:      f.messageRepo,
		Generator:        generator,
		HistoryExchanges: 5,
	})
	publisher := eventbus.NewEventPublisher(logger)
	publisher.Subscribe(func(*conversation.MessageCreatedEvent) {})
	publisher.Subscribe(func(*conversation.HandoverExecutedEvent) {})
	publisher.Subscribe(func(*conversation.ConversationUpdatedEvent) {})
	handover := services.NewHandoverService(services.HandoverServiceConfig{
		ConversationRepo: f.conversationRepo,
		MessageRepo:      f.messageRepo,
		AgentRepo:        f.agentRepo,
		SettingsRepo:     f.settingsRepo,
		EventPublisher:   publisher,
	})

	config := services.OrchestratorServiceConfig{
		ConversationRepo:  f.conversationRepo,
		MessageRepo:       f.messageRepo,
		UsageLogRepo:      f.usageLogRepo,
		SettingsRepo:      f.settingsRepo,
		ContextTracker:    tracker,
		Retrieval:         retrieval,
		Handover:          handover,
		Generator:         generator,
		EventPublisher:    publisher,
		Gateway:           f.gateway,
		Model:             "gpt-4o-mini",
		GenerationTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&config)
	}
	f.sut = services.NewOrchestratorService(config)
	return f
}

func (f *orchestratorFixture) seedConversation(t *testing.T, opts ...conversation.Option) conversation.Conversation {
	t.Helper()

	conv := conversation.New(f.env.TenantID(), "customer-1", "telegram", opts...)
	saved, err := f.conversationRepo.Save(f.env.Ctx, conv)
	require.NoError(t, err)
	return saved
}

func (f *orchestratorFixture) saveSettings(t *testing.T, mutate func(*aisettings.Settings)) {
	t.Helper()

	settings := aisettings.Default(f.env.TenantID(), "telegram")
	settings.Triggers.Keyword.Enabled = false
	settings.Triggers.BlockedTopic.Enabled = false
	settings.Triggers.Sentiment.Enabled = false
	settings.Triggers.Intent.Enabled = false
	settings.Triggers.Unresolved.Enabled = false
	settings.Triggers.ExplicitRequest.Enabled = false
	if mutate != nil {
		mutate(settings)
	}
	require.NoError(t, f.settingsRepo.Save(f.env.Ctx, settings))
}

func inboundFor(conv conversation.Conversation, text string) services.InboundMessage {
	return services.InboundMessage{
		ConversationID:    conv.ID(),
		Text:              text,
		SenderExternalID:  conv.CustomerExternalID(),
		PlatformMessageID: uuid.New().String(),
		Timestamp:         time.Now(),
		Origin:            conv.Platform(),
	}
}

func TestOrchestratorService_ProcessInbound_GeneratesAndPersistsResponse(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "We ship worldwide.", TokensUsed: 42}}
	f := setupOrchestratorTest(t, generator)
	conv := f.seedConversation(t)
	f.saveSettings(t, nil)

	result, err := f.sut.ProcessInbound(f.env.Ctx, inboundFor(conv, "Do you ship abroad?"))
	require.NoError(t, err)

	require.NotNil(t, result.AIMessage)
	assert.Equal(t, "We ship worldwide.", result.AIMessage.Content())
	assert.Equal(t, conversation.SenderAI, result.AIMessage.Sender())
	assert.False(t, result.HandedOver)
	assert.False(t, result.FromCache)

	msgs, err := f.messageRepo.RecentByConversation(f.env.Ctx, conv.ID(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	entries := f.usageLogRepo.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 42, entries[0].TokensUsed)
	assert.Equal(t, "gpt-4o-mini", entries[0].Model)
	assert.Equal(t, result.AIMessage.ID(), entries[0].MessageID)
	assert.False(t, entries[0].HandoverTriggered)

	updated, err := f.conversationRepo.GetByID(f.env.Ctx, conv.ID())
	require.NoError(t, err)
	assert.False(t, updated.LastMessageAt().IsZero())
	assert.False(t, updated.LastAIResponseAt().IsZero())
}

func TestOrchestratorService_ProcessInbound_DuplicateMessageRejected(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "answer"}}
	f := setupOrchestratorTest(t, generator)
	conv := f.seedConversation(t)
	f.saveSettings(t, nil)

	inbound := inboundFor(conv, "hello there")
	_, err := f.sut.ProcessInbound(f.env.Ctx, inbound)
	require.NoError(t, err)

	_, err = f.sut.ProcessInbound(f.env.Ctx, inbound)
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrDuplicateMessage))
}

func TestOrchestratorService_ProcessInbound_GenerationFailureIsFatal(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{err: errors.New("provider overloaded")}
	f := setupOrchestratorTest(t, generator)
	conv := f.seedConversation(t)
	f.saveSettings(t, func(s *aisettings.Settings) {
		s.Triggers.ExplicitRequest.Enabled = true
	})

	_, err := f.sut.ProcessInbound(f.env.Ctx, inboundFor(conv, "let me talk to a human"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, services.ErrGenerationFailed))

	// The inbound message is kept; no AI message, no handover, no usage log.
	msgs, err := f.messageRepo.RecentByConversation(f.env.Ctx, conv.ID(), 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	updated, err := f.conversationRepo.GetByID(f.env.Ctx, conv.ID())
	require.NoError(t, err)
	assert.False(t, updated.IsHumanHandled())
	assert.Empty(t, f.usageLogRepo.Entries())
}

func TestOrchestratorService_ProcessInbound_HumanHandledSkipsAI(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "should not be used"}}
	f := setupOrchestratorTest(t, generator)
	conv := f.seedConversation(t, conversation.WithHandler(conversation.HandlerHuman, false))
	f.saveSettings(t, nil)

	result, err := f.sut.ProcessInbound(f.env.Ctx, inboundFor(conv, "any update on my order?"))
	require.NoError(t, err)

	assert.Nil(t, result.AIMessage)
	assert.Zero(t, generator.calls)

	msgs, err := f.messageRepo.RecentByConversation(f.env.Ctx, conv.ID(), 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestOrchestratorService_ProcessInbound_HandoverTrigger(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "I understand your frustration."}}
	f := setupOrchestratorTest(t, generator)
	conv := f.seedConversation(t)
	f.saveSettings(t, func(s *aisettings.Settings) {
		s.Triggers.Keyword.Enabled = true
		s.Triggers.Keyword.Keywords = []string{"lawsuit"}
	})

	result, err := f.sut.ProcessInbound(f.env.Ctx, inboundFor(conv, "I am filing a lawsuit against you"))
	require.NoError(t, err)

	assert.True(t, result.HandedOver)
	assert.Equal(t, "Escalation keyword detected: lawsuit", result.HandoverReason)
	assert.True(t, result.Conversation.IsHumanHandled())

	entries := f.usageLogRepo.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].HandoverTriggered)
}

func TestOrchestratorService_ProcessInbound_TenantThresholdGovernsRetrieval(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "answer"}}
	f := setupOrchestratorTest(t, generator)
	conv := f.seedConversation(t)

	// Scores 0.8 against the embedder's {1,0,0} query vector.
	chunkID := uuid.New()
	f.embeddingRepo.SetChunkContent(chunkID, "shipping policy")
	require.NoError(t, f.embeddingRepo.Store(f.env.Ctx, document.StoreEmbeddingParams{
		DocumentID: uuid.New(),
		ChunkID:    chunkID,
		Model:      "text-embedding-3-small",
		Vector:     []float32{0.8, 0.6, 0},
	}))

	f.saveSettings(t, func(s *aisettings.Settings) {
		s.SimilarityThreshold = 0.99
	})
	result, err := f.sut.ProcessInbound(f.env.Ctx, inboundFor(conv, "Do you ship abroad?"))
	require.NoError(t, err)
	require.NotNil(t, result.Retrieval)
	assert.Empty(t, result.Retrieval.Matches)

	f.saveSettings(t, func(s *aisettings.Settings) {
		s.SimilarityThreshold = 0.5
	})
	result, err = f.sut.ProcessInbound(f.env.Ctx, inboundFor(conv, "And to islands?"))
	require.NoError(t, err)
	require.NotNil(t, result.Retrieval)
	require.Len(t, result.Retrieval.Matches, 1)
	assert.Equal(t, "shipping policy", result.Retrieval.Matches[0].Content)
}

func TestOrchestratorService_ProcessInbound_ResponseCacheHit(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "cached answer"}}
	f := setupOrchestratorTest(t, generator, withResponseCache(cache.NewInmemCache(time.Minute)))
	f.saveSettings(t, nil)

	first := f.seedConversation(t)
	second := conversation.New(f.env.TenantID(), "customer-2", "telegram")
	_, err := f.conversationRepo.Save(f.env.Ctx, second)
	require.NoError(t, err)

	one, err := f.sut.ProcessInbound(f.env.Ctx, inboundFor(first, "What is your refund policy?"))
	require.NoError(t, err)
	two, err := f.sut.ProcessInbound(f.env.Ctx, inboundFor(second, "What is your refund policy?"))
	require.NoError(t, err)

	assert.False(t, one.FromCache)
	assert.True(t, two.FromCache)
	assert.Equal(t, "cached answer", two.AIMessage.Content())
	assert.Equal(t, 1, generator.calls)
}

func TestOrchestratorService_ProcessInbound_DispatchesToPlatform(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "Here you go."}}
	f := setupOrchestratorTest(t, generator)
	conv := f.seedConversation(t)
	f.saveSettings(t, nil)

	result, err := f.sut.ProcessInbound(f.env.Ctx, inboundFor(conv, "Can I get an invoice?"))
	require.NoError(t, err)

	sent := f.gateway.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "telegram", sent[0].Platform)
	assert.Equal(t, conv.CustomerExternalID(), sent[0].RecipientExternalID)
	assert.Equal(t, "Here you go.", sent[0].Text)

	stored, err := f.messageRepo.GetByID(f.env.Ctx, result.AIMessage.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.DeliverySent, stored.DeliveryStatus())
}

func TestOrchestratorService_ProcessInbound_DispatchFailureMarksMessageFailed(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "Here you go."}}
	f := setupOrchestratorTest(t, generator)
	f.gateway.err = errors.New("platform unreachable")
	conv := f.seedConversation(t)
	f.saveSettings(t, nil)

	result, err := f.sut.ProcessInbound(f.env.Ctx, inboundFor(conv, "Can I get an invoice?"))
	require.NoError(t, err)
	require.NotNil(t, result.AIMessage)

	stored, err := f.messageRepo.GetByID(f.env.Ctx, result.AIMessage.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.DeliveryFailed, stored.DeliveryStatus())
}

func TestOrchestratorService_ProcessInbound_DashboardOriginSkipsDispatch(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "answer"}}
	f := setupOrchestratorTest(t, generator)
	conv := f.seedConversation(t)
	f.saveSettings(t, nil)

	inbound := inboundFor(conv, "hello from the dashboard")
	inbound.Origin = platform.Dashboard
	_, err := f.sut.ProcessInbound(f.env.Ctx, inbound)
	require.NoError(t, err)

	assert.Empty(t, f.gateway.sent())
}

func TestOrchestratorService_ProcessInbound_UnknownConversation(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "answer"}}
	f := setupOrchestratorTest(t, generator)

	_, err := f.sut.ProcessInbound(f.env.Ctx, services.InboundMessage{
		ConversationID:    uuid.New(),
		Text:              "hello",
		PlatformMessageID: uuid.New().String(),
		Timestamp:         time.Now(),
		Origin:            "telegram",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrConversationNotFound))
}
