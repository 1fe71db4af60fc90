package persistence_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/agent"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/aisettings"
	"github.com/talkbase/talkbase/modules/messaging/infrastructure/persistence"
	"github.com/talkbase/talkbase/pkg/itf"
)

func storeMessage(t *testing.T, env *itf.TestEnvironment, repo *persistence.InmemMessageRepository, conversationID uuid.UUID, content string, opts ...conversation.MessageOption) conversation.Message {
	t.Helper()

	msg, err := conversation.NewMessage(conversationID, conversation.DirectionInbound, conversation.SenderCustomer, content, opts...)
	require.NoError(t, err)
	saved, err := repo.Save(env.Ctx, msg)
	require.NoError(t, err)
	return saved
}

func TestInmemMessageRepository_Save_RejectsDuplicateExternalID(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemMessageRepository()
	conversationID := uuid.New()

	storeMessage(t, env, repo, conversationID, "first", conversation.WithExternalMessageID("tg-100"))

	dup, err := conversation.NewMessage(conversationID, conversation.DirectionInbound, conversation.SenderCustomer, "retry", conversation.WithExternalMessageID("tg-100"))
	require.NoError(t, err)
	_, err = repo.Save(env.Ctx, dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrDuplicateMessage))
}

func TestInmemMessageRepository_Save_SameExternalIDAcrossConversations(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemMessageRepository()

	storeMessage(t, env, repo, uuid.New(), "first", conversation.WithExternalMessageID("tg-100"))
	storeMessage(t, env, repo, uuid.New(), "second", conversation.WithExternalMessageID("tg-100"))
}

func TestInmemMessageRepository_RecentByConversation_NewestFirst(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemMessageRepository()
	conversationID := uuid.New()

	storeMessage(t, env, repo, conversationID, "oldest")
	storeMessage(t, env, repo, conversationID, "middle")
	storeMessage(t, env, repo, conversationID, "newest")
	storeMessage(t, env, repo, uuid.New(), "other conversation")

	msgs, err := repo.RecentByConversation(env.Ctx, conversationID, 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "newest", msgs[0].Content())
	assert.Equal(t, "middle", msgs[1].Content())
}

func TestInmemMessageRepository_UpdateDeliveryStatus(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemMessageRepository()
	saved := storeMessage(t, env, repo, uuid.New(), "outbound reply")

	require.NoError(t, repo.UpdateDeliveryStatus(env.Ctx, saved.ID(), conversation.DeliverySent))

	got, err := repo.GetByID(env.Ctx, saved.ID())
	require.NoError(t, err)
	assert.Equal(t, conversation.DeliverySent, got.DeliveryStatus())
	assert.Equal(t, "outbound reply", got.Content())
	assert.Equal(t, saved.ExternalMessageID(), got.ExternalMessageID())
}

func TestInmemMessageRepository_GetByID_NotFound(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemMessageRepository()

	_, err := repo.GetByID(env.Ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrMessageNotFound))
}

func TestInmemConversationRepository_TenantIsolation(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemConversationRepository()

	conv := conversation.New(env.TenantID(), "customer-1", "telegram")
	_, err := repo.Save(env.Ctx, conv)
	require.NoError(t, err)

	otherCtx := env.CtxFor(uuid.New())
	_, err = repo.GetByID(otherCtx, conv.ID())
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrConversationNotFound))

	convs, err := repo.List(otherCtx)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestInmemConversationRepository_List_MostRecentActivityFirst(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemConversationRepository()
	now := time.Now()

	stale := conversation.New(env.TenantID(), "customer-1", "telegram",
		conversation.WithTimestamps(now.Add(-2*time.Hour), now.Add(-2*time.Hour), time.Time{}, time.Time{}, time.Time{}))
	fresh := conversation.New(env.TenantID(), "customer-2", "telegram",
		conversation.WithTimestamps(now.Add(-time.Minute), now.Add(-time.Minute), time.Time{}, time.Time{}, time.Time{}))
	_, err := repo.Save(env.Ctx, stale)
	require.NoError(t, err)
	_, err = repo.Save(env.Ctx, fresh)
	require.NoError(t, err)

	convs, err := repo.List(env.Ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)

	assert.Equal(t, fresh.ID(), convs[0].ID())
	assert.Equal(t, stale.ID(), convs[1].ID())
}

func TestInmemAgentRepository_LeastRecentlyActive(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemAgentRepository()

	never := agent.New(env.TenantID(), "Never Assigned", agent.RoleAgent)
	recent := agent.New(env.TenantID(), "Recently Assigned", agent.RoleAgent,
		agent.WithLastAssignedAt(time.Now()))
	inactive := agent.New(env.TenantID(), "Inactive", agent.RoleAgent, agent.WithActive(false))
	require.NoError(t, repo.Add(env.Ctx, never))
	require.NoError(t, repo.Add(env.Ctx, recent))
	require.NoError(t, repo.Add(env.Ctx, inactive))

	picked, err := repo.LeastRecentlyActive(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, never.ID(), picked.ID())
}

func TestInmemAgentRepository_OnlyAgentAndAdminRolesEligible(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemAgentRepository()

	// The bot was never assigned, so it would win on recency alone.
	bot := agent.New(env.TenantID(), "Notification Bot", agent.Role("bot"))
	admin := agent.New(env.TenantID(), "On-call Admin", agent.RoleAdmin,
		agent.WithLastAssignedAt(time.Now()))
	require.NoError(t, repo.Add(env.Ctx, bot))
	require.NoError(t, repo.Add(env.Ctx, admin))

	picked, err := repo.LeastRecentlyActive(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, admin.ID(), picked.ID())

	require.NoError(t, repo.Add(env.Ctx, agent.New(env.TenantID(), "Support Agent", agent.RoleAgent)))
	picked, err = repo.LeastRecentlyActive(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, "Support Agent", picked.Name())
}

func TestInmemAgentRepository_TouchAssignmentRotates(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemAgentRepository()

	a := agent.New(env.TenantID(), "Agent A", agent.RoleAgent)
	b := agent.New(env.TenantID(), "Agent B", agent.RoleAgent,
		agent.WithLastAssignedAt(time.Now().Add(-time.Hour)))
	require.NoError(t, repo.Add(env.Ctx, a))
	require.NoError(t, repo.Add(env.Ctx, b))

	picked, err := repo.LeastRecentlyActive(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ID(), picked.ID())

	require.NoError(t, repo.TouchAssignment(env.Ctx, a.ID()))

	picked, err = repo.LeastRecentlyActive(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID(), picked.ID())
}

func TestInmemAgentRepository_NoActiveAgents(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemAgentRepository()
	require.NoError(t, repo.Add(env.Ctx, agent.New(env.TenantID(), "Offline", agent.RoleAgent, agent.WithActive(false))))

	_, err := repo.LeastRecentlyActive(env.Ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, agent.ErrNoAvailableAgent))
}

func TestInmemAISettingsRepository_DefaultsWhenUnset(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemAISettingsRepository()

	settings, err := repo.GetByTenant(env.Ctx, "telegram")
	require.NoError(t, err)

	assert.Equal(t, env.TenantID(), settings.TenantID)
	assert.Equal(t, aisettings.DefaultMaxKnowledgeChunks, settings.MaxKnowledgeChunks)
	assert.True(t, settings.Triggers.ExplicitRequest.Enabled)
}

func TestInmemAISettingsRepository_SaveRoundTrip(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemAISettingsRepository()

	settings := aisettings.Default(env.TenantID(), "telegram")
	settings.SystemPrompt = "You are the support bot for Acme."
	settings.Triggers.Keyword.Keywords = []string{"lawsuit"}
	require.NoError(t, repo.Save(env.Ctx, settings))

	got, err := repo.GetByTenant(env.Ctx, "telegram")
	require.NoError(t, err)
	assert.Equal(t, "You are the support bot for Acme.", got.SystemPrompt)
	assert.Equal(t, []string{"lawsuit"}, got.Triggers.Keyword.Keywords)

	// Another platform still falls back to defaults.
	other, err := repo.GetByTenant(env.Ctx, "whatsapp")
	require.NoError(t, err)
	assert.Empty(t, other.SystemPrompt)
}

func TestInmemAISettingsRepository_SaveValidates(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemAISettingsRepository()

	settings := aisettings.Default(env.TenantID(), "telegram")
	settings.MaxKnowledgeChunks = 0

	require.Error(t, repo.Save(env.Ctx, settings))
}
