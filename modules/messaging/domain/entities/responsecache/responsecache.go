// Package responsecache defines the cache contract for generated AI
// responses. Keys are content hashes, so a hit means the exact same
// settings, context and question were already answered.
package responsecache

import (
	"context"
	"errors"
)

var ErrKeyNotFound = errors.New("cache key not found")

type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
}
