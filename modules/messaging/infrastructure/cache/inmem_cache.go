package cache

import (
	"context"
	"sync"
	"time"

	"github.com/talkbase/talkbase/modules/messaging/domain/entities/responsecache"
)

type inmemEntry struct {
	value     string
	expiresAt time.Time
}

type InmemCache struct {
	mu      sync.RWMutex
	entries map[string]inmemEntry
	ttl     time.Duration
}

func NewInmemCache(ttl time.Duration) *InmemCache {
	return &InmemCache{
		entries: make(map[string]inmemEntry),
		ttl:     ttl,
	}
}

func (c *InmemCache) Get(_ context.Context, key string) (string, error) {
	c.mu.RLock()
	entry, found := c.entries[key]
	c.mu.RUnlock()
	if !found || time.Now().After(entry.expiresAt) {
		return "", responsecache.ErrKeyNotFound
	}
	return entry.value, nil
}

func (c *InmemCache) Set(_ context.Context, key string, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = inmemEntry{value: value, expiresAt: time.Now().Add(c.ttl)}
	return nil
}
