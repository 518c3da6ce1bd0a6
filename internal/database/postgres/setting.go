package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	apperrors "github.com/storysync/storysync-api/pkg/errors"
	"github.com/storysync/storysync-api/pkg/logger"
	"github.com/storysync/storysync-api/pkg/metrics"
	"go.uber.org/zap"
)

// GetSetting fetches a site-wide setting value by key. Returns ErrNotFound
// when the key has never been written.
func (c *Client) GetSetting(ctx context.Context, key string) (any, error) {
	start := time.Now()
	operation := "getSetting"

	var value any
	err := c.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, key).Scan(&value)

	duration := metrics.MeasureDuration(start)
	if err == pgx.ErrNoRows {
		recordMetrics(operation, "not_found", duration)
		return nil, apperrors.NotFoundError(fmt.Sprintf("setting %q", key))
	}
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogStoreCall(operation, "error", duration, zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("failed to query setting %q: %w", key, err)
	}

	recordMetrics(operation, "success", duration)
	return value, nil
}

// SetSetting writes a site-wide setting value, creating or replacing it.
func (c *Client) SetSetting(ctx context.Context, key string, value any) error {
	start := time.Now()
	operation := "setSetting"

	query := `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
	`

	_, err := c.pool.Exec(ctx, query, key, value)

	duration := metrics.MeasureDuration(start)
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogStoreCall(operation, "error", duration, zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}

	recordMetrics(operation, "success", duration)
	logger.LogStoreCall(operation, "success", duration, zap.String("key", key))

	return nil
}
