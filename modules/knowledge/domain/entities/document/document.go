package document

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrEmptyContent     = errors.New("empty document content")
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Document, error)
	Save(ctx context.Context, doc Document) (Document, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]Document, error)
	// ReplaceChunks swaps the chunk set of a document atomically.
	// Regeneration replaces chunks, it never edits them in place.
	ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []Chunk) error
	Chunks(ctx context.Context, documentID uuid.UUID) ([]Chunk, error)
}

type Document interface {
	ID() uuid.UUID
	TenantID() uuid.UUID
	Title() string
	Content() string
	Status() Status
	CreatedAt() time.Time
	UpdatedAt() time.Time
	WithStatus(status Status) Document
}

type doc struct {
	id        uuid.UUID
	tenantID  uuid.UUID
	title     string
	content   string
	status    Status
	createdAt time.Time
	updatedAt time.Time
}

func New(tenantID uuid.UUID, title, content string, opts ...Option) Document {
	d := &doc{
		id:        uuid.New(),
		tenantID:  tenantID,
		title:     title,
		content:   content,
		status:    StatusPending,
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type Option func(*doc)

func WithID(id uuid.UUID) Option {
	return func(d *doc) {
		if id != uuid.Nil {
			d.id = id
		}
	}
}

func WithStatus(status Status) Option {
	return func(d *doc) {
		if status != "" {
			d.status = status
		}
	}
}

func WithCreatedAt(createdAt time.Time) Option {
	return func(d *doc) {
		if !createdAt.IsZero() {
			d.createdAt = createdAt
		}
	}
}

func WithUpdatedAt(updatedAt time.Time) Option {
	return func(d *doc) {
		if !updatedAt.IsZero() {
			d.updatedAt = updatedAt
		}
	}
}

func (d *doc) ID() uuid.UUID        { return d.id }
func (d *doc) TenantID() uuid.UUID  { return d.tenantID }
func (d *doc) Title() string        { return d.title }
func (d *doc) Content() string      { return d.content }
func (d *doc) Status() Status       { return d.status }
func (d *doc) CreatedAt() time.Time { return d.createdAt }
func (d *doc) UpdatedAt() time.Time { return d.updatedAt }

func (d *doc) WithStatus(status Status) Document {
	clone := *d
	clone.status = status
	clone.updatedAt = time.Now()
	return &clone
}
