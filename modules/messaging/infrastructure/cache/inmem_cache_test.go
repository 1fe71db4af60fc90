package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/responsecache"
	"github.com/talkbase/talkbase/modules/messaging/infrastructure/cache"
)

func TestInmemCache_SetGet(t *testing.T) {
	t.Parallel()
	sut := cache.NewInmemCache(time.Minute)

	require.NoError(t, sut.Set(context.Background(), "key", "value"))

	got, err := sut.Get(context.Background(), "key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestInmemCache_MissingKey(t *testing.T) {
	t.Parallel()
	sut := cache.NewInmemCache(time.Minute)

	_, err := sut.Get(context.Background(), "absent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, responsecache.ErrKeyNotFound))
}

func TestInmemCache_Expiry(t *testing.T) {
	t.Parallel()
	sut := cache.NewInmemCache(10 * time.Millisecond)

	require.NoError(t, sut.Set(context.Background(), "key", "value"))
	time.Sleep(20 * time.Millisecond)

	_, err := sut.Get(context.Background(), "key")
	assert.True(t, errors.Is(err, responsecache.ErrKeyNotFound))
}
