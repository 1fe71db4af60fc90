package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talkbase/talkbase/pkg/composables"
	"github.com/talkbase/talkbase/pkg/constants"
	"github.com/talkbase/talkbase/pkg/middleware"
)

const tenantHeader = "X-Tenant-ID"

func TestWithTenantHeader_ValidID(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	var resolved uuid.UUID
	handler := middleware.WithTenantHeader(tenantHeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := composables.UseTenantID(r.Context())
		require.NoError(t, err)
		resolved = id
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set(tenantHeader, tenantID.String())
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, tenantID, resolved)
}

func TestWithTenantHeader_MalformedIDRejected(t *testing.T) {
	t.Parallel()

	handler := middleware.WithTenantHeader(tenantHeader)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set(tenantHeader, "not-a-uuid")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestWithTenantHeader_MissingHeaderPassesThrough(t *testing.T) {
	t.Parallel()

	called := false
	handler := middleware.WithTenantHeader(tenantHeader)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, err := composables.UseTenantID(r.Context())
		assert.Error(t, err)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestWithTransaction_RequiresPool(t *testing.T) {
	t.Parallel()

	handler := middleware.WithTransaction()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a pool")
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}

func TestProvide_InjectsValue(t *testing.T) {
	t.Parallel()

	type injected struct{ name string }
	want := &injected{name: "app"}
	key := constants.ContextKey("test_key")

	handler := middleware.Provide(key, want)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := r.Context().Value(key).(*injected)
		require.True(t, ok)
		assert.Same(t, want, got)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)
}
