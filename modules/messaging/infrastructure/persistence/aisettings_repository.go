package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/aisettings"
	"github.com/talkbase/talkbase/pkg/composables"
)

const (
	aiSettingsFindQuery = `
        SELECT s.settings
        FROM tenant_ai_settings s
        WHERE s.tenant_id = $1 AND s.platform = $2`

	aiSettingsUpsertQuery = `
        INSERT INTO tenant_ai_settings (id, tenant_id, platform, settings, updated_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (tenant_id, platform) DO UPDATE
        SET settings = EXCLUDED.settings,
            updated_at = EXCLUDED.updated_at`
)

type PgAISettingsRepository struct{}

func NewAISettingsRepository() aisettings.Repository {
	return &PgAISettingsRepository{}
}

func (g *PgAISettingsRepository) GetByTenant(ctx context.Context, platform string) (*aisettings.Settings, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var raw []byte
	err = tx.QueryRow(ctx, aiSettingsFindQuery, tenantID, platform).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return aisettings.Default(tenantID, platform), nil
		}
		return nil, errors.Wrap(err, fmt.Sprintf("failed to query AI settings for platform: %s", platform))
	}

	var settings aisettings.Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal AI settings")
	}
	settings.TenantID = tenantID
	settings.Platform = platform
	return &settings, nil
}

func (g *PgAISettingsRepository) Save(ctx context.Context, settings *aisettings.Settings) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get tenant from context")
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}

	if settings.TenantID == uuid.Nil {
		settings.TenantID = tenantID
	}
	if err := settings.Validate(); err != nil {
		return errors.Wrap(err, "invalid AI settings")
	}
	settings.UpdatedAt = time.Now()

	raw, err := json.Marshal(settings)
	if err != nil {
		return errors.Wrap(err, "failed to marshal AI settings")
	}
	if _, err := tx.Exec(ctx, aiSettingsUpsertQuery, uuid.New(), settings.TenantID, settings.Platform, raw, settings.UpdatedAt); err != nil {
		return errors.Wrap(err, fmt.Sprintf("failed to save AI settings for platform: %s", settings.Platform))
	}
	return nil
}
