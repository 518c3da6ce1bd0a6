package repository

import (
	"context"

	"github.com/storysync/storysync-api/internal/database/postgres"
	"github.com/storysync/storysync-api/pkg/logger"
	"go.uber.org/zap"
)

// SettingsRepository is the Postgres-backed site-wide settings store.
// Reads are loose on type: a setting written as "1" or true both count as
// an enabled boolean, matching how integrations historically wrote them.
type SettingsRepository struct {
	db *postgres.Client
}

// NewSettingsRepository creates a settings repository.
func NewSettingsRepository(db *postgres.Client) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetBool reads a boolean setting. Missing keys and read failures are false.
func (r *SettingsRepository) GetBool(ctx context.Context, key string) bool {
	value, err := r.db.GetSetting(ctx, key)
	if err != nil {
		return false
	}

	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "1" || v == "true"
	case float64:
		return v != 0
	default:
		return false
	}
}

// GetString reads a string setting. Missing keys and read failures are "".
func (r *SettingsRepository) GetString(ctx context.Context, key string) string {
	value, err := r.db.GetSetting(ctx, key)
	if err != nil {
		return ""
	}

	s, _ := value.(string)
	return s
}

// Set writes a setting value. Failures are logged; settings writes ride
// along webhook requests and must never fail them.
func (r *SettingsRepository) Set(ctx context.Context, key string, value any) error {
	if err := r.db.SetSetting(ctx, key, value); err != nil {
		logger.Warn("Failed to persist setting",
			zap.String("key", key),
			zap.Error(err))
		return err
	}
	return nil
}
