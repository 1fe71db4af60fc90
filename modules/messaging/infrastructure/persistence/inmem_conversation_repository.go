package persistence

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
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

func (s *SafeMap[K, V]) ForEach(fn func(key K, value V)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.m {
		fn(k, v)
	}
}

func (s *SafeMap[K, V]) Values() []V {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Collect(maps.Values(s.m))
}

type conversationKey struct {
	tenantID       uuid.UUID
	conversationID uuid.UUID
}

type InmemConversationRepository struct {
	conversations *SafeMap[conversationKey, conversation.Conversation]
}

func NewInmemConversationRepository() *InmemConversationRepository {
	return &InmemConversationRepository{
		conversations: NewSafeMap[conversationKey, conversation.Conversation](),
	}
}

func (r *InmemConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	conv, found := r.conversations.Get(conversationKey{tenantID: tenantID, conversationID: id})
	if !found {
		return nil, fmt.Errorf("id: %s: %w", id, conversation.ErrConversationNotFound)
	}
	return conv, nil
}

func (r *InmemConversationRepository) Save(ctx context.Context, data conversation.Conversation) (conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.conversations.Set(conversationKey{tenantID: tenantID, conversationID: data.ID()}, data)
	return data, nil
}

func (r *InmemConversationRepository) List(ctx context.Context) ([]conversation.Conversation, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	var convs []conversation.Conversation
	for _, conv := range r.conversations.Values() {
		if conv.TenantID() == tenantID {
			convs = append(convs, conv)
		}
	}
	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastMessageAt().After(convs[j].LastMessageAt())
	})
	return convs, nil
}
