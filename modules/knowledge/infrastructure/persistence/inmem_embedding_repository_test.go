package persistence_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/modules/knowledge/infrastructure/persistence"
	"github.com/talkbase/talkbase/pkg/itf"
)

const testModel = "text-embedding-3-small"

func storeVector(t *testing.T, env *itf.TestEnvironment, repo *persistence.InmemEmbeddingRepository, vector []float32, content string) (uuid.UUID, uuid.UUID) {
	t.Helper()

	documentID := uuid.New()
	chunkID := uuid.New()
	repo.SetChunkContent(chunkID, content)
	require.NoError(t, repo.Store(env.Ctx, document.StoreEmbeddingParams{
		DocumentID: documentID,
		ChunkID:    chunkID,
		Model:      testModel,
		Vector:     vector,
	}))
	return documentID, chunkID
}

func TestInmemEmbeddingRepository_Query_OrdersByScore(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemEmbeddingRepository()

	_, farID := storeVector(t, env, repo, []float32{0, 1, 0}, "far")
	_, nearID := storeVector(t, env, repo, []float32{1, 0.1, 0}, "near")
	_, exactID := storeVector(t, env, repo, []float32{1, 0, 0}, "exact")

	matches, err := repo.Query(env.Ctx, document.EmbeddingQuery{
		Model:         testModel,
		Vector:        []float32{1, 0, 0},
		TopK:          10,
		MinSimilarity: 0,
	})
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, exactID, matches[0].ChunkID)
	assert.Equal(t, nearID, matches[1].ChunkID)
	assert.Equal(t, farID, matches[2].ChunkID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
	assert.Equal(t, "exact", matches[0].Content)
}

func TestInmemEmbeddingRepository_Query_TiesBreakByInsertionOrder(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemEmbeddingRepository()

	_, firstID := storeVector(t, env, repo, []float32{1, 0, 0}, "first")
	_, secondID := storeVector(t, env, repo, []float32{1, 0, 0}, "second")

	matches, err := repo.Query(env.Ctx, document.EmbeddingQuery{
		Model:  testModel,
		Vector: []float32{1, 0, 0},
		TopK:   2,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, firstID, matches[0].ChunkID)
	assert.Equal(t, secondID, matches[1].ChunkID)
}

func TestInmemEmbeddingRepository_Query_FiltersBelowThreshold(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemEmbeddingRepository()

	_, keptID := storeVector(t, env, repo, []float32{1, 0, 0}, "kept")
	storeVector(t, env, repo, []float32{0, 1, 0}, "orthogonal")

	matches, err := repo.Query(env.Ctx, document.EmbeddingQuery{
		Model:         testModel,
		Vector:        []float32{1, 0, 0},
		TopK:          10,
		MinSimilarity: 0.7,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, keptID, matches[0].ChunkID)
}

func TestInmemEmbeddingRepository_Query_RespectsTopK(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemEmbeddingRepository()

	for i := 0; i < 5; i++ {
		storeVector(t, env, repo, []float32{1, float32(i) * 0.01, 0}, "chunk")
	}

	matches, err := repo.Query(env.Ctx, document.EmbeddingQuery{
		Model:  testModel,
		Vector: []float32{1, 0, 0},
		TopK:   2,
	})
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestInmemEmbeddingRepository_Query_TenantIsolation(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemEmbeddingRepository()

	storeVector(t, env, repo, []float32{1, 0, 0}, "mine")

	otherCtx := env.CtxFor(uuid.New())
	matches, err := repo.Query(otherCtx, document.EmbeddingQuery{
		Model:  testModel,
		Vector: []float32{1, 0, 0},
		TopK:   10,
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestInmemEmbeddingRepository_Store_DimensionMismatch(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemEmbeddingRepository()

	storeVector(t, env, repo, []float32{1, 0, 0}, "three dims")

	err := repo.Store(env.Ctx, document.StoreEmbeddingParams{
		DocumentID: uuid.New(),
		ChunkID:    uuid.New(),
		Model:      testModel,
		Vector:     []float32{1, 0},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrDimensionMismatch)
}

func TestInmemEmbeddingRepository_Query_DimensionMismatch(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemEmbeddingRepository()

	storeVector(t, env, repo, []float32{1, 0, 0}, "three dims")

	_, err := repo.Query(env.Ctx, document.EmbeddingQuery{
		Model:  testModel,
		Vector: []float32{1, 0},
		TopK:   1,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrDimensionMismatch)
}

func TestInmemEmbeddingRepository_Store_DuplicateRequiresRegenerate(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemEmbeddingRepository()

	documentID, chunkID := storeVector(t, env, repo, []float32{1, 0, 0}, "original")

	err := repo.Store(env.Ctx, document.StoreEmbeddingParams{
		DocumentID: documentID,
		ChunkID:    chunkID,
		Model:      testModel,
		Vector:     []float32{0, 1, 0},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrEmbeddingExists)

	require.NoError(t, repo.Store(env.Ctx, document.StoreEmbeddingParams{
		DocumentID: documentID,
		ChunkID:    chunkID,
		Model:      testModel,
		Vector:     []float32{0, 1, 0},
		Regenerate: true,
	}))

	matches, err := repo.Query(env.Ctx, document.EmbeddingQuery{
		Model:  testModel,
		Vector: []float32{0, 1, 0},
		TopK:   1,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-9)
}

func TestInmemEmbeddingRepository_DeleteByDocument(t *testing.T) {
	t.Parallel()
	env := itf.Setup(t)
	repo := persistence.NewInmemEmbeddingRepository()

	documentID, _ := storeVector(t, env, repo, []float32{1, 0, 0}, "doomed")
	_, keptID := storeVector(t, env, repo, []float32{1, 0, 0}, "kept")

	require.NoError(t, repo.DeleteByDocument(env.Ctx, documentID, testModel))

	matches, err := repo.Query(env.Ctx, document.EmbeddingQuery{
		Model:  testModel,
		Vector: []float32{1, 0, 0},
		TopK:   10,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, keptID, matches[0].ChunkID)
}
