package persistence

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/modules/knowledge/infrastructure/persistence/models"
)

func ToDBDocument(entity document.Document) *models.Document {
	return &models.Document{
		ID:        entity.ID().String(),
		TenantID:  entity.TenantID().String(),
		Title:     entity.Title(),
		Content:   entity.Content(),
		Status:    string(entity.Status()),
		CreatedAt: entity.CreatedAt(),
		UpdatedAt: entity.UpdatedAt(),
	}
}

func ToDomainDocument(dbDoc *models.Document) (document.Document, error) {
	id, err := uuid.Parse(dbDoc.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document ID: %w", err)
	}
	tenantID, err := uuid.Parse(dbDoc.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tenant ID: %w", err)
	}
	return document.New(
		tenantID,
		dbDoc.Title,
		dbDoc.Content,
		document.WithID(id),
		document.WithStatus(document.Status(dbDoc.Status)),
		document.WithCreatedAt(dbDoc.CreatedAt),
		document.WithUpdatedAt(dbDoc.UpdatedAt),
	), nil
}

func ToDBChunk(entity document.Chunk) *models.DocumentChunk {
	return &models.DocumentChunk{
		ID:         entity.ID().String(),
		DocumentID: entity.DocumentID().String(),
		ChunkIndex: entity.Index(),
		Content:    entity.Content(),
		WordCount:  entity.WordCount(),
		CreatedAt:  entity.CreatedAt(),
	}
}

func ToDomainChunk(dbChunk *models.DocumentChunk) (document.Chunk, error) {
	id, err := uuid.Parse(dbChunk.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunk ID: %w", err)
	}
	documentID, err := uuid.Parse(dbChunk.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse chunk document ID: %w", err)
	}
	return document.NewChunk(
		documentID,
		dbChunk.ChunkIndex,
		dbChunk.Content,
		document.WithChunkID(id),
		document.WithChunkCreatedAt(dbChunk.CreatedAt),
	)
}
