package persistence

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/aiusagelog"
	"github.com/talkbase/talkbase/pkg/composables"
)

type InmemAIUsageLogRepository struct {
	mu      sync.Mutex
	entries []*aiusagelog.Entry
}

func NewInmemAIUsageLogRepository() *InmemAIUsageLogRepository {
	return &InmemAIUsageLogRepository{}
}

func (r *InmemAIUsageLogRepository) Append(ctx context.Context, entry *aiusagelog.Entry) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	if entry.TenantID == uuid.Nil {
		entry.TenantID = tenantID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *entry
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *InmemAIUsageLogRepository) Entries() []*aiusagelog.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*aiusagelog.Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
