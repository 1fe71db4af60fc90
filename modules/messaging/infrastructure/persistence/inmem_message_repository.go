package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/aggregates/conversation"
	"github.com/talkbase/talkbase/pkg/composables"
)

type messageKey struct {
	tenantID  uuid.UUID
	messageID uuid.UUID
}

type externalKey struct {
	conversationID    uuid.UUID
	externalMessageID string
}

type storedMessage struct {
	msg conversation.Message
	seq int64
}

type InmemMessageRepository struct {
	mu       sync.Mutex
	messages *SafeMap[messageKey, *storedMessage]
	external *SafeMap[externalKey, uuid.UUID]
	seq      int64
}

func NewInmemMessageRepository() *InmemMessageRepository {
	return &InmemMessageRepository{
		messages: NewSafeMap[messageKey, *storedMessage](),
		external: NewSafeMap[externalKey, uuid.UUID](),
	}
}

func (r *InmemMessageRepository) Save(ctx context.Context, data conversation.Message) (conversation.Message, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	extKey := externalKey{conversationID: data.ConversationID(), externalMessageID: data.ExternalMessageID()}
	if _, found := r.external.Get(extKey); found {
		return nil, conversation.ErrDuplicateMessage.WithDetails(
			"external message ID %s already exists in conversation %s",
			data.ExternalMessageID(), data.ConversationID(),
		)
	}
	r.seq++
	r.messages.Set(messageKey{tenantID: tenantID, messageID: data.ID()}, &storedMessage{msg: data, seq: r.seq})
	r.external.Set(extKey, data.ID())
	return data, nil
}

func (r *InmemMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Message, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	stored, found := r.messages.Get(messageKey{tenantID: tenantID, messageID: id})
	if !found {
		return nil, fmt.Errorf("id: %s: %w", id, conversation.ErrMessageNotFound)
	}
	return stored.msg, nil
}

func (r *InmemMessageRepository) RecentByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]conversation.Message, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}

	var stored []*storedMessage
	r.messages.ForEach(func(key messageKey, sm *storedMessage) {
		if key.tenantID == tenantID && sm.msg.ConversationID() == conversationID {
			stored = append(stored, sm)
		}
	})

	sort.Slice(stored, func(i, j int) bool {
		return stored[i].seq > stored[j].seq
	})
	if limit > 0 && len(stored) > limit {
		stored = stored[:limit]
	}
	msgs := make([]conversation.Message, 0, len(stored))
	for _, sm := range stored {
		msgs = append(msgs, sm.msg)
	}
	return msgs, nil
}

func (r *InmemMessageRepository) UpdateDeliveryStatus(ctx context.Context, id uuid.UUID, status conversation.DeliveryStatus) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	key := messageKey{tenantID: tenantID, messageID: id}
	stored, found := r.messages.Get(key)
	if !found {
		return fmt.Errorf("id: %s: %w", id, conversation.ErrMessageNotFound)
	}
	updated, err := conversation.NewMessage(
		stored.msg.ConversationID(),
		stored.msg.Direction(),
		stored.msg.Sender(),
		stored.msg.Content(),
		conversation.WithMessageID(stored.msg.ID()),
		conversation.WithAnnotations(stored.msg.Annotations()),
		conversation.WithDeliveryStatus(status),
		conversation.WithExternalMessageID(stored.msg.ExternalMessageID()),
		conversation.WithPlatformTimestamp(stored.msg.PlatformTimestamp()),
		conversation.WithMessageCreatedAt(stored.msg.CreatedAt()),
	)
	if err != nil {
		return err
	}
	r.messages.Set(key, &storedMessage{msg: updated, seq: stored.seq})
	return nil
}
