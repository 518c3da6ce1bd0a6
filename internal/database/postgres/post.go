package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/storysync/storysync-api/internal/models"
	apperrors "github.com/storysync/storysync-api/pkg/errors"
	"github.com/storysync/storysync-api/pkg/logger"
	"github.com/storysync/storysync-api/pkg/metrics"
	"go.uber.org/zap"
)

// InsertPost creates a new post and returns its assigned identifier
func (c *Client) InsertPost(ctx context.Context, post *models.Post) (int64, error) {
	start := time.Now()
	operation := "insertPost"

	query := `
		INSERT INTO posts (post_type, title, content, excerpt, slug, status, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	var id int64
	err := c.pool.QueryRow(ctx, query,
		post.PostType, post.Title, post.Content, post.Excerpt,
		post.Slug, post.Status, metaOrEmpty(post.Meta),
	).Scan(&id)

	duration := metrics.MeasureDuration(start)
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogStoreCall(operation, "error", duration, zap.Error(err))
		return 0, fmt.Errorf("failed to insert post: %w", err)
	}

	recordMetrics(operation, "success", duration)
	logger.LogStoreCall(operation, "success", duration, zap.Int64("post_id", id))

	return id, nil
}

// UpdatePost updates an existing post by identifier. Returns ErrNotFound
// when the identifier does not exist.
func (c *Client) UpdatePost(ctx context.Context, post *models.Post) error {
	start := time.Now()
	operation := "updatePost"

	query := `
		UPDATE posts
		SET title = $2, content = $3, excerpt = $4, slug = $5, status = $6,
		    meta = meta || $7, updated_at = now()
		WHERE id = $1
	`

	tag, err := c.pool.Exec(ctx, query,
		post.ID, post.Title, post.Content, post.Excerpt,
		post.Slug, post.Status, metaOrEmpty(post.Meta),
	)

	duration := metrics.MeasureDuration(start)
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogStoreCall(operation, "error", duration, zap.Error(err))
		return fmt.Errorf("failed to update post %d: %w", post.ID, err)
	}

	if tag.RowsAffected() == 0 {
		recordMetrics(operation, "not_found", duration)
		return apperrors.NotFoundError(fmt.Sprintf("post %d", post.ID))
	}

	recordMetrics(operation, "success", duration)
	logger.LogStoreCall(operation, "success", duration, zap.Int64("post_id", post.ID))

	return nil
}

// GetPostStatus fetches a post's status by identifier. Returns ErrNotFound
// when the identifier does not exist.
func (c *Client) GetPostStatus(ctx context.Context, id int64) (string, error) {
	start := time.Now()
	operation := "getPostStatus"

	var status string
	err := c.pool.QueryRow(ctx, `SELECT status FROM posts WHERE id = $1`, id).Scan(&status)

	duration := metrics.MeasureDuration(start)
	if err == pgx.ErrNoRows {
		recordMetrics(operation, "not_found", duration)
		return "", apperrors.NotFoundError(fmt.Sprintf("post %d", id))
	}
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogStoreCall(operation, "error", duration, zap.Error(err))
		return "", fmt.Errorf("failed to query post status: %w", err)
	}

	recordMetrics(operation, "success", duration)
	return status, nil
}

// GetPostSlug fetches a post's slug by identifier. Returns ErrNotFound when
// the identifier does not exist.
func (c *Client) GetPostSlug(ctx context.Context, id int64) (string, error) {
	start := time.Now()
	operation := "getPostSlug"

	var slug string
	err := c.pool.QueryRow(ctx, `SELECT slug FROM posts WHERE id = $1`, id).Scan(&slug)

	duration := metrics.MeasureDuration(start)
	if err == pgx.ErrNoRows {
		recordMetrics(operation, "not_found", duration)
		return "", apperrors.NotFoundError(fmt.Sprintf("post %d", id))
	}
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogStoreCall(operation, "error", duration, zap.Error(err))
		return "", fmt.Errorf("failed to query post slug: %w", err)
	}

	recordMetrics(operation, "success", duration)
	return slug, nil
}

// GetPostContent fetches a post's content by identifier, for image sideloading.
func (c *Client) GetPostContent(ctx context.Context, id int64) (string, error) {
	start := time.Now()
	operation := "getPostContent"

	var content string
	err := c.pool.QueryRow(ctx, `SELECT content FROM posts WHERE id = $1`, id).Scan(&content)

	duration := metrics.MeasureDuration(start)
	if err == pgx.ErrNoRows {
		recordMetrics(operation, "not_found", duration)
		return "", apperrors.NotFoundError(fmt.Sprintf("post %d", id))
	}
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogStoreCall(operation, "error", duration, zap.Error(err))
		return "", fmt.Errorf("failed to query post content: %w", err)
	}

	recordMetrics(operation, "success", duration)
	return content, nil
}

// UpdatePostContent rewrites a post's content, used after image sideloading.
func (c *Client) UpdatePostContent(ctx context.Context, id int64, content string) error {
	start := time.Now()
	operation := "updatePostContent"

	tag, err := c.pool.Exec(ctx,
		`UPDATE posts SET content = $2, updated_at = now() WHERE id = $1`, id, content)

	duration := metrics.MeasureDuration(start)
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogStoreCall(operation, "error", duration, zap.Error(err))
		return fmt.Errorf("failed to update post content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		recordMetrics(operation, "not_found", duration)
		return apperrors.NotFoundError(fmt.Sprintf("post %d", id))
	}

	recordMetrics(operation, "success", duration)
	return nil
}

// DeletePost removes a post by identifier. Deleting an identifier that does
// not exist is not an error.
func (c *Client) DeletePost(ctx context.Context, id int64) error {
	start := time.Now()
	operation := "deletePost"

	tag, err := c.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)

	duration := metrics.MeasureDuration(start)
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogStoreCall(operation, "error", duration, zap.Error(err))
		return fmt.Errorf("failed to delete post %d: %w", id, err)
	}

	recordMetrics(operation, "success", duration)
	logger.LogStoreCall(operation, "success", duration,
		zap.Int64("post_id", id),
		zap.Int64("rows", tag.RowsAffected()))

	return nil
}

func metaOrEmpty(meta map[string]string) map[string]string {
	if meta == nil {
		return map[string]string{}
	}
	return meta
}
