package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/storysync/storysync-api/pkg/metrics"
)

// Client wraps a pgx connection pool with observability
type Client struct {
	pool *pgxpool.Pool
}

// NewClient creates a postgres client on an existing pool
func NewClient(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool}
}

// Pool returns the underlying connection pool for advanced usage
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// recordMetrics records database operation metrics
func recordMetrics(operation, status string, duration float64) {
	metrics.StoreOperationDuration.WithLabelValues(operation, status).Observe(duration)
	metrics.StoreOperationTotal.WithLabelValues(operation, status).Inc()
}
