package repository

import (
	"context"
	"fmt"

	"github.com/storysync/storysync-api/internal/cache"
	"github.com/storysync/storysync-api/internal/database/postgres"
	"github.com/storysync/storysync-api/internal/models"
	apperrors "github.com/storysync/storysync-api/pkg/errors"
	"github.com/storysync/storysync-api/pkg/sanitize"
	"github.com/storysync/storysync-api/pkg/slug"
)

// StoryRepository is the Postgres-backed content store adapter.
type StoryRepository struct {
	db        *postgres.Client
	sanitizer *sanitize.Sanitizer
	postCache *cache.PostCache
	baseURL   string
}

// NewStoryRepository creates a story repository.
func NewStoryRepository(db *postgres.Client, sanitizer *sanitize.Sanitizer, postCache *cache.PostCache, baseURL string) *StoryRepository {
	return &StoryRepository{
		db:        db,
		sanitizer: sanitizer,
		postCache: postCache,
		baseURL:   baseURL,
	}
}

// Upsert creates or updates a post. Content and excerpt pass through the
// sanitization policy; callers holding a bypass scope get them through
// unmodified. A missing slug falls back to the store's title-derived default.
func (r *StoryRepository) Upsert(ctx context.Context, post *models.Post) (int64, error) {
	post.Content = r.sanitizer.Clean(post.Content)
	post.Excerpt = r.sanitizer.Clean(post.Excerpt)

	if post.Slug == "" {
		post.Slug = slug.FromTitle(post.Title)
	}

	if post.ID == 0 {
		id, err := r.db.InsertPost(ctx, post)
		if err != nil {
			return 0, err
		}
		post.ID = id
		return id, nil
	}

	if err := r.db.UpdatePost(ctx, post); err != nil {
		return 0, err
	}

	r.postCache.Invalidate(post.ID)
	return post.ID, nil
}

// Exists reports whether a post identifier is known to the store.
func (r *StoryRepository) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := r.db.GetPostStatus(ctx, id)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes a post. Unknown identifiers are treated as success so
// repeated delete deliveries stay idempotent.
func (r *StoryRepository) Delete(ctx context.Context, id int64) error {
	if err := r.db.DeletePost(ctx, id); err != nil {
		return err
	}

	r.postCache.Invalidate(id)
	return nil
}

// Permalink resolves a post's public URL from its slug.
func (r *StoryRepository) Permalink(ctx context.Context, id int64) (string, error) {
	if permalink, ok := r.postCache.GetPermalink(id); ok {
		return permalink, nil
	}

	postSlug, err := r.db.GetPostSlug(ctx, id)
	if err != nil {
		return "", err
	}

	permalink := fmt.Sprintf("%s/%s", r.baseURL, postSlug)
	r.postCache.SetPermalink(id, permalink)

	return permalink, nil
}

// InvalidateCache drops cached derived values for a post.
func (r *StoryRepository) InvalidateCache(id int64) {
	r.postCache.Invalidate(id)
}
