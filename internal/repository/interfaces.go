package repository

import (
	"context"

	"github.com/storysync/storysync-api/internal/models"
)

// Site-wide setting keys. test_mode and post_type are read by the webhook
// pipeline; meta_fb_pages is written from the payload's meta for companion
// integrations to consume.
const (
	SettingTestMode    = "test_mode"
	SettingPostType    = "post_type"
	SettingMetaFBPages = "meta_fb_pages"
)

// StoryStoreInterface abstracts the content store the webhook reconciles
// stories against.
type StoryStoreInterface interface {
	// Upsert creates the post when its ID is zero, otherwise updates the
	// existing post. Returns the post's durable identifier. Content passes
	// through the sanitization policy unless a bypass scope is active.
	Upsert(ctx context.Context, post *models.Post) (int64, error)

	// Exists reports whether a post identifier is known to the store.
	Exists(ctx context.Context, id int64) (bool, error)

	// Delete removes a post. Unknown identifiers are not an error.
	Delete(ctx context.Context, id int64) error

	// Permalink resolves a post's public URL.
	Permalink(ctx context.Context, id int64) (string, error)

	// InvalidateCache drops cached derived values for a post.
	InvalidateCache(id int64)
}

// SettingsStoreInterface abstracts the site-wide key-value settings.
type SettingsStoreInterface interface {
	GetBool(ctx context.Context, key string) bool
	GetString(ctx context.Context, key string) string
	Set(ctx context.Context, key string, value any) error
}
