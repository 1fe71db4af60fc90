package services

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/pkg/composables"
	"github.com/talkbase/talkbase/pkg/llm"
)

// DefaultChunkWords bounds one chunk of document content. Chunks split on
// word boundaries, never mid-word.
const DefaultChunkWords = 200

type CreateDocumentDTO struct {
	Title   string
	Content string
}

type DocumentServiceConfig struct {
	DocumentRepo  document.Repository
	EmbeddingRepo document.EmbeddingRepository
	Embedder      llm.Embedder

	ChunkWords       int
	RetryAttempts    int
	RetryMaxWait     time.Duration
	EmbeddingTimeout time.Duration
}

type DocumentService struct {
	documentRepo  document.Repository
	embeddingRepo document.EmbeddingRepository
	embedder      llm.Embedder

	chunkWords       int
	retryAttempts    int
	retryMaxWait     time.Duration
	embeddingTimeout time.Duration
}

func NewDocumentService(config DocumentServiceConfig) *DocumentService {
	if config.ChunkWords == 0 {
		config.ChunkWords = DefaultChunkWords
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 3
	}
	if config.RetryMaxWait == 0 {
		config.RetryMaxWait = time.Minute
	}
	if config.EmbeddingTimeout == 0 {
		config.EmbeddingTimeout = 15 * time.Second
	}
	return &DocumentService{
		documentRepo:     config.DocumentRepo,
		embeddingRepo:    config.EmbeddingRepo,
		embedder:         config.Embedder,
		chunkWords:       config.ChunkWords,
		retryAttempts:    config.RetryAttempts,
		retryMaxWait:     config.RetryMaxWait,
		embeddingTimeout: config.EmbeddingTimeout,
	}
}

func (s *DocumentService) GetByID(ctx context.Context, id uuid.UUID) (document.Document, error) {
	return s.documentRepo.GetByID(ctx, id)
}

func (s *DocumentService) List(ctx context.Context) ([]document.Document, error) {
	return s.documentRepo.List(ctx)
}

// Create stores a document and its word-bounded chunks. Embeddings are
// generated separately by Process so ingestion stays cheap.
func (s *DocumentService) Create(ctx context.Context, dto CreateDocumentDTO) (document.Document, error) {
	if strings.TrimSpace(dto.Content) == "" {
		return nil, document.ErrEmptyContent
	}
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	doc := document.New(tenantID, dto.Title, dto.Content)
	doc, err = s.documentRepo.Save(ctx, doc)
	if err != nil {
		return nil, errors.Wrap(err, "failed to save document")
	}

	chunks, err := s.chunkContent(doc.ID(), doc.Content())
	if err != nil {
		return nil, err
	}
	if err := s.documentRepo.ReplaceChunks(ctx, doc.ID(), chunks); err != nil {
		return nil, errors.Wrap(err, "failed to save document chunks")
	}
	return doc, nil
}

func (s *DocumentService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.embeddingRepo.DeleteByDocument(ctx, id, s.embedder.Model()); err != nil {
		return errors.Wrap(err, "failed to delete document embeddings")
	}
	return s.documentRepo.Delete(ctx, id)
}

// Process embeds every chunk of a document. With regenerate set, existing
// chunks and embeddings are replaced; without it, a chunk that already has
// an embedding for the current model fails the run.
func (s *DocumentService) Process(ctx context.Context, documentID uuid.UUID, regenerate bool) error {
	doc, err := s.documentRepo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if _, err := s.documentRepo.Save(ctx, doc.WithStatus(document.StatusProcessing)); err != nil {
		return errors.Wrap(err, "failed to mark document processing")
	}

	if regenerate {
		chunks, err := s.chunkContent(doc.ID(), doc.Content())
		if err != nil {
			return s.fail(ctx, doc, err)
		}
		if err := s.embeddingRepo.DeleteByDocument(ctx, doc.ID(), s.embedder.Model()); err != nil {
			return s.fail(ctx, doc, errors.Wrap(err, "failed to delete stale embeddings"))
		}
		if err := s.documentRepo.ReplaceChunks(ctx, doc.ID(), chunks); err != nil {
			return s.fail(ctx, doc, errors.Wrap(err, "failed to replace chunks"))
		}
	}

	chunks, err := s.documentRepo.Chunks(ctx, doc.ID())
	if err != nil {
		return s.fail(ctx, doc, errors.Wrap(err, "failed to load chunks"))
	}

	for _, chunk := range chunks {
		vector, err := s.embedChunk(ctx, chunk.Content())
		if err != nil {
			return s.fail(ctx, doc, errors.Wrap(err, "failed to embed chunk"))
		}
		err = s.embeddingRepo.Store(ctx, document.StoreEmbeddingParams{
			DocumentID: doc.ID(),
			ChunkID:    chunk.ID(),
			Model:      s.embedder.Model(),
			Vector:     vector,
			Regenerate: regenerate,
		})
		if err != nil {
			return s.fail(ctx, doc, err)
		}
	}

	if _, err := s.documentRepo.Save(ctx, doc.WithStatus(document.StatusProcessed)); err != nil {
		return errors.Wrap(err, "failed to mark document processed")
	}
	return nil
}

func (s *DocumentService) fail(ctx context.Context, doc document.Document, cause error) error {
	if _, err := s.documentRepo.Save(ctx, doc.WithStatus(document.StatusFailed)); err != nil {
		return errors.Wrap(cause, "failed to mark document failed")
	}
	return cause
}

func (s *DocumentService) embedChunk(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		embedCtx, cancel := context.WithTimeout(ctx, s.embeddingTimeout)
		vector, err := s.embedder.Embed(embedCtx, text)
		cancel()
		if err == nil {
			return vector, nil
		}
		lastErr = err

		if attempt == s.retryAttempts {
			break
		}
		timer := time.NewTimer(backoff(attempt, s.retryMaxWait))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// chunkContent splits on whitespace and packs words into chunks of at most
// chunkWords. Indexes are stable for a given content and chunk size.
func (s *DocumentService) chunkContent(documentID uuid.UUID, content string) ([]document.Chunk, error) {
	words := strings.Fields(content)
	if len(words) == 0 {
		return nil, document.ErrEmptyContent
	}

	chunks := make([]document.Chunk, 0, (len(words)+s.chunkWords-1)/s.chunkWords)
	for start := 0; start < len(words); start += s.chunkWords {
		end := start + s.chunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk, err := document.NewChunk(documentID, len(chunks), strings.Join(words[start:end], " "))
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
