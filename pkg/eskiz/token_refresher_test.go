package eskiz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRefresher(login loginFunc) *tokenRefresher {
	return &tokenRefresher{
		login:     login,
		cfg:       NewConfig("support@example.com", "secret"),
		retryWait: time.Millisecond,
	}
}

func TestTokenRefresher_RefreshStoresToken(t *testing.T) {
	t.Parallel()

	sut := newTestRefresher(func(_ context.Context, email, password string) (string, error) {
		assert.Equal(t, "support@example.com", email)
		assert.Equal(t, "secret", password)
		return "bearer-1", nil
	})

	token, err := sut.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bearer-1", token)
	assert.Equal(t, "bearer-1", sut.CurrentToken())
}

func TestTokenRefresher_CurrentTokenEmptyBeforeRefresh(t *testing.T) {
	t.Parallel()

	sut := newTestRefresher(nil)
	assert.Empty(t, sut.CurrentToken())
}

func TestTokenRefresher_RetriesTransientLoginFailure(t *testing.T) {
	t.Parallel()

	calls := 0
	sut := newTestRefresher(func(context.Context, string, string) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("provider unavailable")
		}
		return "bearer-2", nil
	})

	token, err := sut.RefreshToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bearer-2", token)
	assert.Equal(t, 3, calls)
}

func TestTokenRefresher_ExhaustedRetriesReportLastError(t *testing.T) {
	t.Parallel()

	calls := 0
	sut := newTestRefresher(func(context.Context, string, string) (string, error) {
		calls++
		return "", errors.New("bad credentials")
	})

	token, err := sut.RefreshToken(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad credentials")
	assert.Empty(t, token)
	assert.Equal(t, loginAttempts, calls)
	assert.Empty(t, sut.CurrentToken())
}

func TestTokenRefresher_CanceledContextStopsRefresh(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sut := newTestRefresher(func(context.Context, string, string) (string, error) {
		t.Fatal("login must not run on a canceled context")
		return "", nil
	})

	token, err := sut.RefreshToken(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, token)
}

func TestTokenRefresher_ConcurrentRefreshesShareOneToken(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	issued := 0
	sut := newTestRefresher(func(context.Context, string, string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		issued++
		return "bearer-shared", nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := sut.RefreshToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "bearer-shared", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, issued)
	assert.Equal(t, "bearer-shared", sut.CurrentToken())
}
