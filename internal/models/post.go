package models

import "time"

// Post statuses. The draft/publish split is the only one the webhook
// pipeline decides; anything richer belongs to the store.
const (
	PostStatusDraft   = "draft"
	PostStatusPublish = "publish"
)

// Post is the content entity persisted by the store. ID zero means the
// upsert should create a new row.
type Post struct {
	ID       int64
	PostType string
	Title    string
	Content  string
	Excerpt  string
	Slug     string
	Status   string

	// Meta holds auxiliary metadata entries such as _amphtml.
	Meta map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MetaKeyAMPHTML is the auxiliary metadata key for the story's AMP rendition.
const MetaKeyAMPHTML = "_amphtml"
