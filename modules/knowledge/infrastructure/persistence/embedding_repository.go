package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/pkg/composables"
)

const (
	embeddingDimensionQuery = `SELECT dimension FROM knowledge_embeddings WHERE tenant_id = $1 AND model = $2 LIMIT 1`

	embeddingInsertQuery = `
        INSERT INTO knowledge_embeddings (id, tenant_id, document_id, chunk_id, model, dimension, embedding, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (document_id, chunk_id, model) DO NOTHING`

	embeddingUpsertQuery = `
        INSERT INTO knowledge_embeddings (id, tenant_id, document_id, chunk_id, model, dimension, embedding, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
        ON CONFLICT (document_id, chunk_id, model) DO UPDATE
        SET dimension = EXCLUDED.dimension,
            embedding = EXCLUDED.embedding,
            created_at = NOW()`

	embeddingDeleteByDocumentQuery = `DELETE FROM knowledge_embeddings WHERE tenant_id = $1 AND document_id = $2 AND model = $3`

	// Score is cosine similarity; pgvector's <=> operator yields cosine
	// distance. Ties resolve to the earliest stored embedding.
	embeddingSearchQuery = `
        SELECT
            e.chunk_id,
            e.document_id,
            c.content,
            1 - (e.embedding <=> $3) AS score
        FROM knowledge_embeddings e
        JOIN knowledge_chunks c ON c.id = e.chunk_id
        WHERE e.tenant_id = $1
          AND e.model = $2
          AND 1 - (e.embedding <=> $3) >= $4
        ORDER BY score DESC, e.seq
        LIMIT $5`
)

type PgEmbeddingRepository struct{}

func NewEmbeddingRepository() document.EmbeddingRepository {
	return &PgEmbeddingRepository{}
}

func (g *PgEmbeddingRepository) Store(ctx context.Context, params document.StoreEmbeddingParams) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if len(params.Vector) == 0 {
		return document.ErrDimensionMismatch.WithDetails("empty vector")
	}

	if err := g.checkDimension(ctx, tenantID, params.Model, len(params.Vector)); err != nil {
		return err
	}

	query := embeddingInsertQuery
	if params.Regenerate {
		query = embeddingUpsertQuery
	}
	tag, err := tx.Exec(
		ctx,
		query,
		uuid.New(),
		tenantID,
		params.DocumentID,
		params.ChunkID,
		params.Model,
		len(params.Vector),
		pgvector.NewVector(params.Vector),
	)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to store embedding for chunk ID: %s", params.ChunkID))
	}
	if !params.Regenerate && tag.RowsAffected() == 0 {
		return document.ErrEmbeddingExists.WithDetails("chunk %s already embedded with model %s", params.ChunkID, params.Model)
	}
	return nil
}

func (g *PgEmbeddingRepository) Query(ctx context.Context, query document.EmbeddingQuery) ([]document.Match, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	if len(query.Vector) == 0 {
		return nil, document.ErrDimensionMismatch.WithDetails("empty query vector")
	}

	if err := g.checkDimension(ctx, tenantID, query.Model, len(query.Vector)); err != nil {
		return nil, err
	}

	rows, err := tx.Query(
		ctx,
		embeddingSearchQuery,
		tenantID,
		query.Model,
		pgvector.NewVector(query.Vector),
		query.MinSimilarity,
		query.TopK,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute similarity search")
	}
	defer rows.Close()

	var matches []document.Match
	for rows.Next() {
		var m document.Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Content, &m.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan match row")
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}
	return matches, nil
}

func (g *PgEmbeddingRepository) DeleteByDocument(ctx context.Context, documentID uuid.UUID, model string) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, embeddingDeleteByDocumentQuery, tenantID, documentID, model); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete embeddings for document ID: %s", documentID))
	}
	return nil
}

func (g *PgEmbeddingRepository) checkDimension(ctx context.Context, tenantID uuid.UUID, model string, dimension int) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	var stored int
	err = tx.QueryRow(ctx, embeddingDimensionQuery, tenantID, model).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to read stored dimension for model: %s", model))
	}
	if stored != dimension {
		return document.ErrDimensionMismatch.WithDetails("model %s stores %d-dimensional vectors, got %d", model, stored, dimension)
	}
	return nil
}
