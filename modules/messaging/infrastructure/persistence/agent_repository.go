package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/agent"
	"github.com/talkbase/talkbase/modules/messaging/infrastructure/persistence/models"
	"github.com/talkbase/talkbase/pkg/composables"
)

const (
	agentFindQuery = `
        SELECT
            a.id,
            a.tenant_id,
            a.name,
            a.role,
            a.active,
            a.last_assigned_at
        FROM agents a`

	agentLeastRecentQuery = agentFindQuery + `
        WHERE a.tenant_id = $1 AND a.active AND a.role IN ('agent', 'admin')
        ORDER BY a.last_assigned_at ASC NULLS FIRST
        LIMIT 1`

	agentTouchQuery = `
        UPDATE agents
        SET last_assigned_at = $1
        WHERE id = $2 AND tenant_id = $3`
)

type PgAgentRepository struct{}

func NewAgentRepository() agent.Repository {
	return &PgAgentRepository{}
}

func (g *PgAgentRepository) GetByID(ctx context.Context, id uuid.UUID) (agent.Agent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var a models.Agent
	err = tx.QueryRow(ctx, agentFindQuery+" WHERE a.id = $1 AND a.tenant_id = $2", id, tenantID).Scan(
		&a.ID,
		&a.TenantID,
		&a.Name,
		&a.Role,
		&a.Active,
		&a.LastAssignedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("id: %s: %w", id, agent.ErrNoAvailableAgent)
		}
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query agent with id: %s", id))
	}
	return ToDomainAgent(&a)
}

func (g *PgAgentRepository) LeastRecentlyActive(ctx context.Context) (agent.Agent, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var a models.Agent
	err = tx.QueryRow(ctx, agentLeastRecentQuery, tenantID).Scan(
		&a.ID,
		&a.TenantID,
		&a.Name,
		&a.Role,
		&a.Active,
		&a.LastAssignedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, agent.ErrNoAvailableAgent
		}
		return nil, errors.Wrap(err, "failed to query least recently active agent")
	}
	return ToDomainAgent(&a)
}

func (g *PgAgentRepository) TouchAssignment(ctx context.Context, id uuid.UUID) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	if _, err := tx.Exec(ctx, agentTouchQuery, time.Now(), id, tenantID); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to touch assignment for agent: %s", id))
	}
	return nil
}
