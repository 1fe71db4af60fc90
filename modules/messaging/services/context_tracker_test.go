package services_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/modules/messaging/infrastructure/persistence"
	"github.com/talkbase/talkbase/modules/messaging/services"
	"github.com/talkbase/talkbase/pkg/itf"
	"github.com/talkbase/talkbase/pkg/llm"
)

type fakeGenerator struct {
	completion llm.Completion
	err        error
	calls      int
	lastPrompt []llm.Message
}

func (f *fakeGenerator) Generate(_ context.Context, messages []llm.Message) (llm.Completion, error) {
	f.calls++
	f.lastPrompt = messages
	if f.err != nil {
		return llm.Completion{}, f.err
	}
	return f.completion, nil
}

func setupTrackerTest(t *testing.T, generator *fakeGenerator) (*itf.TestEnvironment, *services.ContextTracker, *persistence.InmemMessageRepository) {
	t.Helper()

	env := itf.Setup(t)
	messageRepo := persistence.NewInmemMessageRepository()
	sut := services.NewContextTracker(services.ContextTrackerConfig{
		MessageRepo:      messageRepo,
		Generator:        generator,
		HistoryExchanges: 5,
	})
	return env, sut, messageRepo
}

func seedMessage(t *testing.T, env *itf.TestEnvironment, repo *persistence.InmemMessageRepository, conversationID uuid.UUID, sender conversation.SenderType, content string) conversation.Message {
	t.Helper()

	direction := conversation.DirectionOutbound
	if sender == conversation.SenderCustomer {
		direction = conversation.DirectionInbound
	}
	msg, err := conversation.NewMessage(conversationID, direction, sender, content)
	require.NoError(t, err)
	saved, err := repo.Save(env.Ctx, msg)
	require.NoError(t, err)
	return saved
}

func TestContextTracker_RecentExchanges_PairsQuestionWithFollowingAnswer(t *testing.T) {
	t.Parallel()
	env, sut, messageRepo := setupTrackerTest(t, &fakeGenerator{})
	conversationID := uuid.New()

	seedMessage(t, env, messageRepo, conversationID, conversation.SenderCustomer, "Do you ship abroad?")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderAI, "Yes, we ship to most countries.")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderCustomer, "How long does it take?")

	exchanges, err := sut.RecentExchanges(env.Ctx, conversationID, 0)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)

	assert.Equal(t, "Do you ship abroad?", exchanges[0].Question)
	assert.Equal(t, "Yes, we ship to most countries.", exchanges[0].Answer)
}

func TestContextTracker_RecentExchanges_HumanMessageBreaksPairing(t *testing.T) {
	t.Parallel()
	env, sut, messageRepo := setupTrackerTest(t, &fakeGenerator{})
	conversationID := uuid.New()

	seedMessage(t, env, messageRepo, conversationID, conversation.SenderCustomer, "Where is my order?")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderAI, "Let me check that for you.")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderCustomer, "It was order 1234.")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderHuman, "I looked it up, it ships tomorrow.")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderAI, "Anything else I can help with?")

	exchanges, err := sut.RecentExchanges(env.Ctx, conversationID, 0)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)

	// The agent reply sits between the customer message and the later AI
	// message, so only the first exchange pairs up.
	assert.Equal(t, "Where is my order?", exchanges[0].Question)
	assert.Equal(t, "Let me check that for you.", exchanges[0].Answer)
}

func TestContextTracker_RecentExchanges_LimitKeepsMostRecentOldestFirst(t *testing.T) {
	t.Parallel()
	env, sut, messageRepo := setupTrackerTest(t, &fakeGenerator{})
	conversationID := uuid.New()

	seedMessage(t, env, messageRepo, conversationID, conversation.SenderCustomer, "first question")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderAI, "first answer")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderCustomer, "second question")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderAI, "second answer")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderCustomer, "third question")
	seedMessage(t, env, messageRepo, conversationID, conversation.SenderAI, "third answer")

	exchanges, err := sut.RecentExchanges(env.Ctx, conversationID, 2)
	require.NoError(t, err)
	require.Len(t, exchanges, 2)

	assert.Equal(t, "second question", exchanges[0].Question)
	assert.Equal(t, "third question", exchanges[1].Question)
}

func TestContextTracker_RecentExchanges_EmptyConversation(t *testing.T) {
	t.Parallel()
	env, sut, _ := setupTrackerTest(t, &fakeGenerator{})

	exchanges, err := sut.RecentExchanges(env.Ctx, uuid.New(), 0)
	require.NoError(t, err)
	assert.Empty(t, exchanges)
}

func TestContextTracker_RewriteStandalone_NoHistorySkipsModel(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{}
	_, sut, _ := setupTrackerTest(t, generator)

	got := sut.RewriteStandalone(context.Background(), "What is your refund policy?", nil)

	assert.Equal(t, "What is your refund policy?", got)
	assert.Zero(t, generator.calls)
}

func TestContextTracker_RewriteStandalone_RewrittenPrefix(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "REWRITTEN: How long does shipping to Germany take?"}}
	_, sut, _ := setupTrackerTest(t, generator)

	history := []services.Exchange{{Question: "Do you ship to Germany?", Answer: "Yes."}}
	got := sut.RewriteStandalone(context.Background(), "How long does it take?", history)

	assert.Equal(t, "How long does shipping to Germany take?", got)
	assert.Equal(t, 1, generator.calls)
}

func TestContextTracker_RewriteStandalone_UnchangedKeepsOriginal(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "UNCHANGED"}}
	_, sut, _ := setupTrackerTest(t, generator)

	history := []services.Exchange{{Question: "Do you ship to Germany?", Answer: "Yes."}}
	got := sut.RewriteStandalone(context.Background(), "What payment methods do you accept?", history)

	assert.Equal(t, "What payment methods do you accept?", got)
}

func TestContextTracker_RewriteStandalone_MalformedOutputFallsBack(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "I think the question is fine as is."}}
	_, sut, _ := setupTrackerTest(t, generator)

	history := []services.Exchange{{Question: "q", Answer: "a"}}
	got := sut.RewriteStandalone(context.Background(), "original question", history)

	assert.Equal(t, "original question", got)
}

func TestContextTracker_RewriteStandalone_EmptyRewriteFallsBack(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{completion: llm.Completion{Text: "REWRITTEN: "}}
	_, sut, _ := setupTrackerTest(t, generator)

	history := []services.Exchange{{Question: "q", Answer: "a"}}
	got := sut.RewriteStandalone(context.Background(), "original question", history)

	assert.Equal(t, "original question", got)
}

func TestContextTracker_RewriteStandalone_GenerationErrorFallsBack(t *testing.T) {
	t.Parallel()
	generator := &fakeGenerator{err: errors.New("model unavailable")}
	_, sut, _ := setupTrackerTest(t, generator)

	history := []services.Exchange{{Question: "q", Answer: "a"}}
	got := sut.RewriteStandalone(context.Background(), "original question", history)

	assert.Equal(t, "original question", got)
}
