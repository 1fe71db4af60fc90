package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/retrievallog"
	"github.com/talkbase/talkbase/pkg/background"
	"github.com/talkbase/talkbase/pkg/composables"
	"github.com/talkbase/talkbase/pkg/configuration"
	"github.com/talkbase/talkbase/pkg/llm"
)

// RetrievalResult is what a single knowledge lookup produced. An empty
// Matches slice is a valid outcome, not an error.
type RetrievalResult struct {
	Matches  []document.Match
	Vector   []float32
	Model    string
	Duration time.Duration
}

type RetrievalServiceConfig struct {
	EmbeddingRepo document.EmbeddingRepository
	LogRepo       retrievallog.Repository
	Embedder      llm.Embedder
	Queue         *background.Queue

	TopK             int
	MinSimilarity    float64
	RetryAttempts    int
	RetryMaxWait     time.Duration
	EmbeddingTimeout time.Duration
}

type RetrievalService struct {
	embeddingRepo document.EmbeddingRepository
	logRepo       retrievallog.Repository
	embedder      llm.Embedder
	queue         *background.Queue

	topK             int
	minSimilarity    float64
	retryAttempts    int
	retryMaxWait     time.Duration
	embeddingTimeout time.Duration
}

func NewRetrievalService(config RetrievalServiceConfig) *RetrievalService {
	pipeline := configuration.Use().Pipeline
	if config.TopK == 0 {
		config.TopK = pipeline.MaxKnowledgeChunks
	}
	if config.MinSimilarity == 0 {
		config.MinSimilarity = pipeline.SimilarityThreshold
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = pipeline.EmbedRetryAttempts
	}
	if config.RetryMaxWait == 0 {
		config.RetryMaxWait = pipeline.EmbedRetryMaxWait
	}
	if config.EmbeddingTimeout == 0 {
		config.EmbeddingTimeout = pipeline.EmbeddingTimeout
	}
	return &RetrievalService{
		embeddingRepo:    config.EmbeddingRepo,
		logRepo:          config.LogRepo,
		embedder:         config.Embedder,
		queue:            config.Queue,
		topK:             config.TopK,
		minSimilarity:    config.MinSimilarity,
		retryAttempts:    config.RetryAttempts,
		retryMaxWait:     config.RetryMaxWait,
		embeddingTimeout: config.EmbeddingTimeout,
	}
}

// RetrieveOptions narrows a single lookup. Zero fields fall back to the
// service-wide defaults, so callers carrying tenant settings can pass
// them through as-is.
type RetrieveOptions struct {
	TopK          int
	MinSimilarity float64
}

// Retrieve embeds the query and searches the tenant's knowledge base.
// Embedding-provider failures degrade to an empty result after the retry
// budget is spent; only data-integrity errors (dimension mismatch) and
// store errors propagate.
func (s *RetrievalService) Retrieve(ctx context.Context, conversationID uuid.UUID, query string, opts RetrieveOptions) (*RetrievalResult, error) {
	start := time.Now()

	topK := opts.TopK
	if topK == 0 {
		topK = s.topK
	}
	minSimilarity := opts.MinSimilarity
	if minSimilarity == 0 {
		minSimilarity = s.minSimilarity
	}

	vector, err := s.embedWithRetry(ctx, query)
	if err != nil {
		configuration.Use().Logger().
			WithError(err).
			WithField("conversation_id", conversationID).
			Warn("knowledge: embedding failed, degrading to empty retrieval")
		return &RetrievalResult{
			Model:    s.embedder.Model(),
			Duration: time.Since(start),
		}, nil
	}

	matches, err := s.embeddingRepo.Query(ctx, document.EmbeddingQuery{
		Model:         s.embedder.Model(),
		Vector:        vector,
		TopK:          topK,
		MinSimilarity: minSimilarity,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to query embeddings")
	}

	result := &RetrievalResult{
		Matches:  matches,
		Vector:   vector,
		Model:    s.embedder.Model(),
		Duration: time.Since(start),
	}
	s.appendLog(ctx, conversationID, query, result)
	return result, nil
}

func (s *RetrievalService) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
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

func (s *RetrievalService) appendLog(ctx context.Context, conversationID uuid.UUID, query string, result *RetrievalResult) {
	if s.logRepo == nil {
		return
	}

	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return
	}
	entry := retrievallog.New(tenantID, conversationID, query, result.Model)
	entry.QueryVector = result.Vector
	entry.Duration = result.Duration
	for _, m := range result.Matches {
		entry.Chunks = append(entry.Chunks, retrievallog.RetrievedChunk{
			ChunkID:    m.ChunkID,
			DocumentID: m.DocumentID,
			Score:      m.Score,
		})
	}

	// The request may finish before the log lands; keep the context
	// values but drop its cancellation.
	logCtx := context.WithoutCancel(ctx)
	task := background.Task{
		Name: "knowledge.retrieval_log",
		Run: func(taskCtx context.Context) error {
			runCtx, cancel := background.MergeDeadline(logCtx, taskCtx)
			defer cancel()
			return s.logRepo.Append(runCtx, entry)
		},
	}
	if s.queue != nil {
		s.queue.Dispatch(task)
		return
	}
	if err := task.Run(logCtx); err != nil {
		configuration.Use().Logger().WithError(err).Warn("knowledge: failed to append retrieval log")
	}
}
