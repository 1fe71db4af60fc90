// Package itf provides the integration-test fixture shared by module
// tests. The environment is fully in memory: a tenant-scoped context with
// a silenced logger, no database required.
package itf

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/talkbase/talkbase/pkg/composables"
)

type TestEnvironment struct {
	Ctx      context.Context
	tenantID uuid.UUID
}

type Option func(*TestEnvironment)

func WithTenantID(id uuid.UUID) Option {
	return func(env *TestEnvironment) {
		env.tenantID = id
	}
}

func Setup(tb testing.TB, opts ...Option) *TestEnvironment {
	tb.Helper()

	env := &TestEnvironment{
		tenantID: uuid.New(),
	}
	for _, opt := range opts {
		opt(env)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ctx := composables.WithTenantID(context.Background(), env.tenantID)
	ctx = composables.WithLogger(ctx, logrus.NewEntry(logger))
	env.Ctx = ctx
	return env
}

func (e *TestEnvironment) TenantID() uuid.UUID {
	return e.tenantID
}

// CtxFor returns a context scoped to another tenant. Useful for asserting
// tenant isolation.
func (e *TestEnvironment) CtxFor(tenantID uuid.UUID) context.Context {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	ctx := composables.WithTenantID(context.Background(), tenantID)
	return composables.WithLogger(ctx, logrus.NewEntry(logger))
}
