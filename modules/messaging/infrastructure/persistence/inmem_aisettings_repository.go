package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/talkbase/talkbase/modules/messaging/domain/entities/aisettings"
	"github.com/talkbase/talkbase/pkg/composables"
)

type settingsKey struct {
	tenantID uuid.UUID
	platform string
}

type InmemAISettingsRepository struct {
	settings *SafeMap[settingsKey, *aisettings.Settings]
}

func NewInmemAISettingsRepository() *InmemAISettingsRepository {
	return &InmemAISettingsRepository{
		settings: NewSafeMap[settingsKey, *aisettings.Settings](),
	}
}

func (r *InmemAISettingsRepository) GetByTenant(ctx context.Context, platform string) (*aisettings.Settings, error) {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return nil, err
	}
	stored, found := r.settings.Get(settingsKey{tenantID: tenantID, platform: platform})
	if !found {
		return aisettings.Default(tenantID, platform), nil
	}
	copied := *stored
	return &copied, nil
}

func (r *InmemAISettingsRepository) Save(ctx context.Context, settings *aisettings.Settings) error {
	tenantID, err := composables.UseTenantID(ctx)
	if err != nil {
		return err
	}
	if settings.TenantID == uuid.Nil {
		settings.TenantID = tenantID
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	settings.UpdatedAt = time.Now()
	copied := *settings
	r.settings.Set(settingsKey{tenantID: settings.TenantID, platform: settings.Platform}, &copied)
	return nil
}
