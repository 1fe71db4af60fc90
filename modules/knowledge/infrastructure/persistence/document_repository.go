package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/modules/knowledge/infrastructure/persistence/models"
	"github.com/talkbase/talkbase/pkg/composables"
	"github.com/talkbase/talkbase/pkg/repo"
)

const (
	documentFindQuery = `
        SELECT
            d.id,
            d.tenant_id,
            d.title,
            d.content,
            d.status,
            d.created_at,
            d.updated_at
        FROM knowledge_documents d`

	documentDeleteQuery = `DELETE FROM knowledge_documents WHERE id = $1 AND tenant_id = $2`

	chunkFindQuery = `
        SELECT
            c.id,
            c.document_id,
            c.chunk_index,
            c.content,
            c.word_count,
            c.created_at
        FROM knowledge_chunks c
        WHERE c.document_id = $1
        ORDER BY c.chunk_index`

	chunkDeleteQuery = `DELETE FROM knowledge_chunks WHERE document_id = $1`
	chunkInsertQuery = `INSERT INTO knowledge_chunks (id, document_id, chunk_index, content, word_count, created_at) VALUES`
)

type PgDocumentRepository struct{}

func NewDocumentRepository() document.Repository {
	return &PgDocumentRepository{}
}

func (g *PgDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (document.Document, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}

	docs, err := g.queryDocuments(ctx, documentFindQuery+" WHERE d.id = $1 AND d.tenant_id = $2", id, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query document with id: %s", id))
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("id: %s: %w", id, document.ErrDocumentNotFound)
	}
	return docs[0], nil
}

func (g *PgDocumentRepository) List(ctx context.Context) ([]document.Document, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}

	docs, err := g.queryDocuments(ctx, documentFindQuery+" WHERE d.tenant_id = $1 ORDER BY d.created_at", tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	return docs, nil
}

func (g *PgDocumentRepository) Save(ctx context.Context, data document.Document) (document.Document, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	dbDoc := ToDBDocument(data)
	if dbDoc.TenantID == uuid.Nil.String() {
		dbDoc.TenantID = tenantID.String()
	}

	fields := []string{"id", "tenant_id", "title", "content", "status", "created_at", "updated_at"}
	values := []interface{}{
		dbDoc.ID,
		dbDoc.TenantID,
		dbDoc.Title,
		dbDoc.Content,
		dbDoc.Status,
		dbDoc.CreatedAt,
		dbDoc.UpdatedAt,
	}

	q := repo.Insert("knowledge_documents", fields) + `
        ON CONFLICT (id) DO UPDATE
        SET title = EXCLUDED.title,
            content = EXCLUDED.content,
            status = EXCLUDED.status,
            updated_at = EXCLUDED.updated_at`
	if _, err := tx.Exec(ctx, q, values...); err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to save document with ID: %s", dbDoc.ID))
	}
	return data, nil
}

func (g *PgDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, chunkDeleteQuery, id); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete chunks for document ID: %s", id))
	}
	if _, err := tx.Exec(ctx, documentDeleteQuery, id, tenantID); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete document with ID: %s", id))
	}
	return nil
}

func (g *PgDocumentRepository) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []document.Chunk) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	if _, err := tx.Exec(ctx, chunkDeleteQuery, documentID); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to delete existing chunks for document ID: %s", documentID))
	}
	if len(chunks) == 0 {
		return nil
	}

	values := make([][]interface{}, 0, len(chunks))
	for _, c := range chunks {
		dbChunk := ToDBChunk(c)
		values = append(values, []interface{}{
			dbChunk.ID,
			dbChunk.DocumentID,
			dbChunk.ChunkIndex,
			dbChunk.Content,
			dbChunk.WordCount,
			dbChunk.CreatedAt,
		})
	}
	q, args := repo.BatchInsertQueryN(chunkInsertQuery, values)
	if _, err := tx.Exec(ctx, q, args...); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to insert chunks for document ID: %s", documentID))
	}
	return nil
}

func (g *PgDocumentRepository) Chunks(ctx context.Context, documentID uuid.UUID) ([]document.Chunk, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, chunkFindQuery, documentID)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query chunks for document ID: %s", documentID))
	}
	defer rows.Close()

	var dbChunks []*models.DocumentChunk
	for rows.Next() {
		var c models.DocumentChunk
		if err := rows.Scan(
			&c.ID,
			&c.DocumentID,
			&c.ChunkIndex,
			&c.Content,
			&c.WordCount,
			&c.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan chunk row")
		}
		dbChunks = append(dbChunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	chunks := make([]document.Chunk, 0, len(dbChunks))
	for _, c := range dbChunks {
		chunk, err := ToDomainChunk(c)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to convert chunk ID: %s to domain entity", c.ID))
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (g *PgDocumentRepository) queryDocuments(ctx context.Context, query string, args ...interface{}) ([]document.Document, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var dbDocs []*models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID,
			&d.TenantID,
			&d.Title,
			&d.Content,
			&d.Status,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan document row")
		}
		dbDocs = append(dbDocs, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	entities := make([]document.Document, 0, len(dbDocs))
	for _, d := range dbDocs {
		entity, err := ToDomainDocument(d)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to convert document ID: %s to domain entity", d.ID))
		}
		entities = append(entities, entity)
	}
	return entities, nil
}
