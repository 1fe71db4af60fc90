package services_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/modules/knowledge/infrastructure/persistence"
	"github.com/talkbase/talkbase/modules/knowledge/services"
	"github.com/talkbase/talkbase/pkg/itf"
)

func setupDocumentTest(t *testing.T, embedder *fakeEmbedder, chunkWords int) (*itf.TestEnvironment, *services.DocumentService, *persistence.InmemDocumentRepository, *persistence.InmemEmbeddingRepository) {
	t.Helper()

	env := itf.Setup(t)
	documentRepo := persistence.NewInmemDocumentRepository()
	embeddingRepo := persistence.NewInmemEmbeddingRepository()

	sut := services.NewDocumentService(services.DocumentServiceConfig{
		DocumentRepo:  documentRepo,
		EmbeddingRepo: embeddingRepo,
		Embedder:      embedder,
		ChunkWords:    chunkWords,
		RetryAttempts: 2,
		RetryMaxWait:  time.Millisecond,
	})
	return env, sut, documentRepo, embeddingRepo
}

func TestDocumentService_Create_ChunksOnWordBoundaries(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	env, sut, documentRepo, _ := setupDocumentTest(t, embedder, 3)

	doc, err := sut.Create(env.Ctx, services.CreateDocumentDTO{
		Title:   "Returns",
		Content: "one two three four five six seven",
	})
	require.NoError(t, err)
	assert.Equal(t, document.StatusPending, doc.Status())
	assert.Equal(t, env.TenantID(), doc.TenantID())

	chunks, err := documentRepo.Chunks(env.Ctx, doc.ID())
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "one two three", chunks[0].Content())
	assert.Equal(t, "four five six", chunks[1].Content())
	assert.Equal(t, "seven", chunks[2].Content())
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index())
		assert.Equal(t, doc.ID(), chunk.DocumentID())
	}
	assert.Equal(t, 3, chunks[0].WordCount())
	assert.Equal(t, 1, chunks[2].WordCount())
}

func TestDocumentService_Create_RejectsEmptyContent(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	env, sut, _, _ := setupDocumentTest(t, embedder, 3)

	_, err := sut.Create(env.Ctx, services.CreateDocumentDTO{Title: "Empty", Content: "   \n\t "})
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrEmptyContent)
}

func TestDocumentService_Process_EmbedsEveryChunk(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	env, sut, documentRepo, embeddingRepo := setupDocumentTest(t, embedder, 2)

	doc, err := sut.Create(env.Ctx, services.CreateDocumentDTO{
		Title:   "Shipping",
		Content: "orders ship within two business days",
	})
	require.NoError(t, err)

	require.NoError(t, sut.Process(env.Ctx, doc.ID(), false))

	stored, err := documentRepo.GetByID(env.Ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusProcessed, stored.Status())

	matches, err := embeddingRepo.Query(env.Ctx, document.EmbeddingQuery{
		Model:  embedder.Model(),
		Vector: []float32{1, 0, 0},
		TopK:   10,
	})
	require.NoError(t, err)
	assert.Len(t, matches, 3)
	assert.Equal(t, 3, embedder.calls)
}

func TestDocumentService_Process_SecondRunRequiresRegenerate(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	env, sut, documentRepo, _ := setupDocumentTest(t, embedder, 10)

	doc, err := sut.Create(env.Ctx, services.CreateDocumentDTO{
		Title:   "Hours",
		Content: "open nine to five",
	})
	require.NoError(t, err)
	require.NoError(t, sut.Process(env.Ctx, doc.ID(), false))

	err = sut.Process(env.Ctx, doc.ID(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, document.ErrEmbeddingExists)

	stored, err := documentRepo.GetByID(env.Ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, stored.Status())

	require.NoError(t, sut.Process(env.Ctx, doc.ID(), true))
	stored, err = documentRepo.GetByID(env.Ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusProcessed, stored.Status())
}

func TestDocumentService_Process_FailureMarksDocumentFailed(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}, failures: 10}
	env, sut, documentRepo, _ := setupDocumentTest(t, embedder, 10)

	doc, err := sut.Create(env.Ctx, services.CreateDocumentDTO{
		Title:   "Doomed",
		Content: "this will not embed",
	})
	require.NoError(t, err)

	require.Error(t, sut.Process(env.Ctx, doc.ID(), false))

	stored, err := documentRepo.GetByID(env.Ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, document.StatusFailed, stored.Status())
}

func TestDocumentService_Delete_RemovesEmbeddings(t *testing.T) {
	t.Parallel()
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	env, sut, documentRepo, embeddingRepo := setupDocumentTest(t, embedder, 10)

	doc, err := sut.Create(env.Ctx, services.CreateDocumentDTO{
		Title:   "Old",
		Content: "stale knowledge",
	})
	require.NoError(t, err)
	require.NoError(t, sut.Process(env.Ctx, doc.ID(), false))

	require.NoError(t, sut.Delete(env.Ctx, doc.ID()))

	_, err = documentRepo.GetByID(env.Ctx, doc.ID())
	assert.ErrorIs(t, err, document.ErrDocumentNotFound)

	matches, err := embeddingRepo.Query(env.Ctx, document.EmbeddingQuery{
		Model:  embedder.Model(),
		Vector: []float32{1, 0, 0},
		TopK:   10,
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}
