package models

import "time"

type Document struct {
	ID        string
	TenantID  string
	Title     string
	Content   string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DocumentChunk struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Content    string
	WordCount  int
	CreatedAt  time.Time
}

type RetrievalLogChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}
