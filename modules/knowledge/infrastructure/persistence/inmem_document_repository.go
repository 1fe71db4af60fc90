package persistence

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/knowledge/domain/entities/document"
	"github.com/talkbase/talkbase/pkg/composables"
)

type SafeMap[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{
		m: make(map[K]V),
	}
}

func (s *SafeMap[K, V]) Set(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

func (s *SafeMap[K, V]) Get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, found := s.m[key]
	return val, found
}

func (s *SafeMap[K, V]) Delete(key K) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

func (s *SafeMap[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Values(s.m))
}

type documentKey struct {
	tenantID   uuid.UUID
	documentID uuid.UUID
}

type InmemDocumentRepository struct {
	documents *SafeMap[documentKey, document.Document]
	chunks    *SafeMap[uuid.UUID, []document.Chunk]
}

func NewInmemDocumentRepository() *InmemDocumentRepository {
	return &InmemDocumentRepository{
		documents: NewSafeMap[documentKey, document.Document](),
		chunks:    NewSafeMap[uuid.UUID, []document.Chunk](),
	}
}

func (r *InmemDocumentRepository) GetByID(ctx context.Context, id uuid.UUID) (document.Document, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	doc, found := r.documents.Get(documentKey{tenantID: tenantID, documentID: id})
	if !found {
		return nil, fmt.Errorf("id: %s: %w", id, document.ErrDocumentNotFound)
	}
	return doc, nil
}

func (r *InmemDocumentRepository) Save(ctx context.Context, doc document.Document) (document.Document, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	if doc.TenantID() != tenantID {
		return nil, errors.New("document tenant mismatch")
	}
	r.documents.Set(documentKey{tenantID: tenantID, documentID: doc.ID()}, doc)
	return doc, nil
}

func (r *InmemDocumentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	r.documents.Delete(documentKey{tenantID: tenantID, documentID: id})
	r.chunks.Delete(id)
	return nil
}

func (r *InmemDocumentRepository) List(ctx context.Context) ([]document.Document, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	all := r.documents.Values()
	docs := make([]document.Document, 0, len(all))
	for _, doc := range all {
		if doc.TenantID() == tenantID {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt().Before(docs[j].CreatedAt())
	})
	return docs, nil
}

func (r *InmemDocumentRepository) ReplaceChunks(ctx context.Context, documentID uuid.UUID, chunks []document.Chunk) error {
	if _, err := composables.UseTenantID(ctx); err != nil {
		return err
	}
	r.chunks.Set(documentID, slices.Clone(chunks))
	return nil
}

func (r *InmemDocumentRepository) Chunks(ctx context.Context, documentID uuid.UUID) ([]document.Chunk, error) {
	if _, err := composables.UseTenantID(ctx); err != nil {
		return nil, err
	}
	chunks, _ := r.chunks.Get(documentID)
	ordered := slices.Clone(chunks)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Index() < ordered[j].Index()
	})
	return ordered, nil
}
