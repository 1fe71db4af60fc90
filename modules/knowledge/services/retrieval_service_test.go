package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/modules/knowledge/infrastructure/persistence"
	"github.com/talkbase/talkbase/modules/knowledge/services"
	"github.com/talkbase/talkbase/pkg/itf"
)

type fakeEmbedder struct {
	vector   []float32
	failures int
	calls    int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("embedding provider unavailable")
	}
	return f.vector, nil
}

func (f *fakeEmbedder) Model() string  { return "text-embedding-3-small" }
func (f *fakeEmbedder) Dimension() int { return len(f.vector) }

func setupRetrievalTest(t *testing.T, embedder *fakeEmbedder) (*itf.TestEnvironment, *services.RetrievalService, *persistence.InmemEmbeddingRepository, *persistence.InmemRetrievalLogRepository) {
	t.Helper()

	env := itf.Setup(t)
	embeddingRepo := persistence.NewInmemEmbeddingRepository()
	logRepo := persistence.NewInmemRetrievalLogRepository()

	sut := services.NewRetrievalService(services.RetrievalServiceConfig{
		EmbeddingRepo: embeddingRepo,
		LogRepo:       logRepo,
		Embedder:      embedder,
		TopK:          3,
		MinSimilarity: 0.5,
		RetryAttempts: 3,
		RetryMaxWait:  time.Millisecond,
	})
	return env, sut, embeddingRepo, logRepo
}

func seedEmbedding(t *testing.T, env *itf.TestEnvironment, repo *persistence.InmemEmbeddingRepository, vector []float32, content string) uuid.UUID {
	t.Helper()

	chunkID := uuid.New()
	repo.SetChunkContent(chunkID, content)
	require.NoError(t, repo.Store(env.Ctx, document.StoreEmbeddingParams{
		DocumentID: uuid.New(),
		ChunkID:    chunkID,
		Model:      "text-embedding-3-small",
		Vector:     vector,
	}))
	return chunkID
}

func TestRetrievalService_Retrieve_ReturnsRankedMatches(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	env, sut, embeddingRepo, _ := setupRetrievalTest(t, embedder)

	exactID := seedEmbedding(t, env, embeddingRepo, []float32{1, 0, 0}, "refund policy")
	seedEmbedding(t, env, embeddingRepo, []float32{0, 1, 0}, "unrelated")

	result, err := sut.Retrieve(env.Ctx, uuid.New(), "how do refunds work", services.RetrieveOptions{})
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)

	assert.Equal(t, exactID, result.Matches[0].ChunkID)
	assert.Equal(t, "refund policy", result.Matches[0].Content)
	assert.Equal(t, "text-embedding-3-small", result.Model)
	assert.Equal(t, []float32{1, 0, 0}, result.Vector)
}

func TestRetrievalService_Retrieve_EmptyResultIsNotAnError(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	env, sut, _, _ := setupRetrievalTest(t, embedder)

	result, err := sut.Retrieve(env.Ctx, uuid.New(), "anything", services.RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
}

func TestRetrievalService_Retrieve_RetriesEmbedding(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, failures: 2}
	env, sut, _, _ := setupRetrievalTest(t, embedder)

	_, err := sut.Retrieve(env.Ctx, uuid.New(), "try harder", services.RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, embedder.calls)
}

func TestRetrievalService_Retrieve_DegradesToEmptyOnRetryExhaustion(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, failures: 10}
	env, sut, _, logRepo := setupRetrievalTest(t, embedder)

	result, err := sut.Retrieve(env.Ctx, uuid.New(), "hopeless", services.RetrieveOptions{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Empty(t, result.Matches)
	assert.Equal(t, 3, embedder.calls)
	assert.Empty(t, logRepo.Entries())
}

func TestRetrievalService_Retrieve_AppendsAuditLog(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	env, sut, embeddingRepo, logRepo := setupRetrievalTest(t, embedder)

	chunkID := seedEmbedding(t, env, embeddingRepo, []float32{1, 0, 0}, "shipping times")
	conversationID := uuid.New()

	_, err := sut.Retrieve(env.Ctx, conversationID, "when will my order arrive", services.RetrieveOptions{})
	require.NoError(t, err)

	entries := logRepo.Entries()
	require.Len(t, entries, 1)
	entry := entries[0]

	assert.Equal(t, env.TenantID(), entry.TenantID)
	assert.Equal(t, conversationID, entry.ConversationID)
	assert.Equal(t, "when will my order arrive", entry.Query)
	assert.Equal(t, "text-embedding-3-small", entry.Model)
	require.Len(t, entry.Chunks, 1)
	assert.Equal(t, chunkID, entry.Chunks[0].ChunkID)
	assert.InDelta(t, 1.0, entry.Chunks[0].Score, 1e-9)
}

func TestRetrievalService_Retrieve_PerCallThresholdFiltersMatches(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	env, sut, embeddingRepo, _ := setupRetrievalTest(t, embedder)

	// Cosine similarity against the query vector is 0.8.
	seedEmbedding(t, env, embeddingRepo, []float32{0.8, 0.6, 0}, "close but not close enough")

	result, err := sut.Retrieve(env.Ctx, uuid.New(), "strict tenant", services.RetrieveOptions{
		MinSimilarity: 0.99,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Matches)

	// The service default of 0.5 would have admitted it.
	result, err = sut.Retrieve(env.Ctx, uuid.New(), "lenient tenant", services.RetrieveOptions{})
	require.NoError(t, err)
	assert.Len(t, result.Matches, 1)
}

func TestRetrievalService_Retrieve_PerCallTopKCapsMatches(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	env, sut, embeddingRepo, _ := setupRetrievalTest(t, embedder)

	seedEmbedding(t, env, embeddingRepo, []float32{1, 0, 0}, "first")
	seedEmbedding(t, env, embeddingRepo, []float32{0.99, 0.141, 0}, "second")
	seedEmbedding(t, env, embeddingRepo, []float32{0.98, 0.199, 0}, "third")

	result, err := sut.Retrieve(env.Ctx, uuid.New(), "capped", services.RetrieveOptions{TopK: 1})
	require.NoError(t, err)
	require.Len(t, result.Matches, 1)
	assert.Equal(t, "first", result.Matches[0].Content)
}

func TestRetrievalService_Retrieve_PropagatesDimensionMismatch(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0}}
	env, sut, embeddingRepo, _ := setupRetrievalTest(t, embedder)

	seedEmbedding(t, env, embeddingRepo, []float32{1, 0, 0}, "three dims")

	_, err := sut.Retrieve(env.Ctx, uuid.New(), "mismatched", services.RetrieveOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrDimensionMismatch)
}
