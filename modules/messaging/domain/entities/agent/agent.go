package agent

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNoAvailableAgent = errors.New("no active agent available")

type Role string

const (
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (Agent, error)
	// LeastRecentlyActive picks the active agent or admin with the oldest
	// last-assignment time, for round-robin-ish handover assignment.
	LeastRecentlyActive(ctx context.Context) (Agent, error)
	TouchAssignment(ctx context.Context, id uuid.UUID) error
}

type Agent interface {
	ID() uuid.UUID
	TenantID() uuid.UUID
	Name() string
	Role() Role
	Active() bool
	LastAssignedAt() time.Time
}

type agent struct {
	id             uuid.UUID
	tenantID       uuid.UUID
	name           string
	role           Role
	active         bool
	lastAssignedAt time.Time
}

func New(tenantID uuid.UUID, name string, role Role, opts ...Option) Agent {
	a := &agent{
		id:       uuid.New(),
		tenantID: tenantID,
		name:     name,
		role:     role,
		active:   true,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type Option func(*agent)

func WithID(id uuid.UUID) Option {
	return func(a *agent) {
		if id != uuid.Nil {
			a.id = id
		}
	}
}

func WithActive(active bool) Option {
	return func(a *agent) {
		a.active = active
	}
}

func WithLastAssignedAt(at time.Time) Option {
	return func(a *agent) {
		a.lastAssignedAt = at
	}
}

func (a *agent) ID() uuid.UUID             { return a.id }
func (a *agent) TenantID() uuid.UUID       { return a.tenantID }
func (a *agent) Name() string              { return a.name }
func (a *agent) Role() Role                { return a.role }
func (a *agent) Active() bool              { return a.active }
func (a *agent) LastAssignedAt() time.Time { return a.lastAssignedAt }
