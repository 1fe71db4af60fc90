package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/agent"
	"github.com/talkbase/talkbase/pkg/composables"
)

type agentKey struct {
	tenantID uuid.UUID
	agentID  uuid.UUID
}

type InmemAgentRepository struct {
	agents *SafeMap[agentKey, agent.Agent]
}

func NewInmemAgentRepository() *InmemAgentRepository {
	return &InmemAgentRepository{
		agents: NewSafeMap[agentKey, agent.Agent](),
	}
}

func (r *InmemAgentRepository) Add(ctx context.Context, a agent.Agent) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	r.agents.Set(agentKey{tenantID: tenantID, agentID: a.ID()}, a)
	return nil
}

func (r *InmemAgentRepository) GetByID(ctx context.Context, id uuid.UUID) (agent.Agent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	a, found := r.agents.Get(agentKey{tenantID: tenantID, agentID: id})
	if !found {
		return nil, fmt.Errorf("id: %s: %w", id, agent.ErrNoAvailableAgent)
	}
	return a, nil
}

func (r *InmemAgentRepository) LeastRecentlyActive(ctx context.Context) (agent.Agent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	var picked agent.Agent
	r.agents.ForEach(func(key agentKey, a agent.Agent) {
		if key.tenantID != tenantID || !a.Active() {
			return
		}
		if a.Role() != agent.RoleAgent && a.Role() != agent.RoleAdmin {
			return
		}
		if picked == nil || a.LastAssignedAt().Before(picked.LastAssignedAt()) {
			picked = a
		}
	})
	if picked == nil {
		return nil, agent.ErrNoAvailableAgent
	}
	return picked, nil
}

func (r *InmemAgentRepository) TouchAssignment(ctx context.Context, id uuid.UUID) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	key := agentKey{tenantID: tenantID, agentID: id}
	a, found := r.agents.Get(key)
	if !found {
		return fmt.Errorf("id: %s: %w", id, agent.ErrNoAvailableAgent)
	}
	touched := agent.New(
		a.TenantID(),
		a.Name(),
		a.Role(),
		agent.WithID(a.ID()),
		agent.WithActive(a.Active()),
		agent.WithLastAssignedAt(time.Now()),
	)
	r.agents.Set(key, touched)
	return nil
}
