package document

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chunk is a bounded slice of a document's content. Chunks are immutable
// after creation; reprocessing a document replaces its chunk set.
type Chunk interface {
	ID() uuid.UUID
	DocumentID() uuid.UUID
	Index() int
	Content() string
	WordCount() int
	CreatedAt() time.Time
}

type chunk struct {
	id         uuid.UUID
	documentID uuid.UUID
	index      int
	content    string
	wordCount  int
	createdAt  time.Time
}

func NewChunk(documentID uuid.UUID, index int, content string, opts ...ChunkOption) (Chunk, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	c := &chunk{
		id:         uuid.New(),
		documentID: documentID,
		index:      index,
		content:    content,
		wordCount:  len(strings.Fields(content)),
		createdAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type ChunkOption func(*chunk)

func WithChunkID(id uuid.UUID) ChunkOption {
	return func(c *chunk) {
		if id != uuid.Nil {
			c.id = id
		}
	}
}

func WithChunkCreatedAt(createdAt time.Time) ChunkOption {
	return func(c *chunk) {
		if !createdAt.IsZero() {
			c.createdAt = createdAt
		}
	}
}

func (c *chunk) ID() uuid.UUID         { return c.id }
func (c *chunk) DocumentID() uuid.UUID { return c.documentID }
func (c *chunk) Index() int            { return c.index }
func (c *chunk) Content() string       { return c.content }
func (c *chunk) WordCount() int        { return c.wordCount }
func (c *chunk) CreatedAt() time.Time  { return c.createdAt }
