package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/storysync/storysync-api/internal/hooks"
	"github.com/storysync/storysync-api/internal/models"
	"github.com/storysync/storysync-api/internal/repository"
	"github.com/storysync/storysync-api/pkg/logger"
	"github.com/storysync/storysync-api/pkg/mac"
	"github.com/storysync/storysync-api/pkg/metrics"
	"github.com/storysync/storysync-api/pkg/sanitize"
	"github.com/storysync/storysync-api/pkg/tracing"
	"go.uber.org/zap"
)

// WebhookService orchestrates a webhook event to its corresponding handler:
// authentication, event-type routing, the store mutation, lifecycle hooks,
// and response re-signing.
type WebhookService struct {
	authenticator   *mac.Authenticator
	storyStore      repository.StoryStoreInterface
	settings        repository.SettingsStoreInterface
	sanitizer       *sanitize.Sanitizer
	bus             *hooks.Bus
	defaultPostType string
}

// NewWebhookService creates the webhook dispatch pipeline.
func NewWebhookService(
	authenticator *mac.Authenticator,
	storyStore repository.StoryStoreInterface,
	settings repository.SettingsStoreInterface,
	sanitizer *sanitize.Sanitizer,
	bus *hooks.Bus,
	defaultPostType string,
) WebhookServiceInterface {
	if defaultPostType == "" {
		defaultPostType = "post"
	}

	return &WebhookService{
		authenticator:   authenticator,
		storyStore:      storyStore,
		settings:        settings,
		sanitizer:       sanitizer,
		bus:             bus,
		defaultPostType: defaultPostType,
	}
}

// Handle runs the dispatch pipeline. Each numbered gate is terminal: MAC
// first, then event presence, then routing. Handler errors propagate
// unchanged and are never signed; successful results pass the alter_response
// filter and get a fresh MAC.
func (s *WebhookService) Handle(ctx context.Context, rawBody []byte) (map[string]any, int) {
	ctx, span := tracing.StartSpan(ctx, "webhook.handle")
	defer span.End()

	payload := models.DecodePayload(rawBody)

	if !s.authenticator.Verify(payload.Raw) {
		logger.Warn("Webhook rejected: invalid mac")
		metrics.WebhookEventTotal.WithLabelValues("unauthenticated", "rejected").Inc()
		return errorBody(models.NewInvalidMACError())
	}

	if !payload.HasEvent() {
		logger.Warn("Webhook rejected: no event type")
		metrics.WebhookEventTotal.WithLabelValues("missing", "rejected").Inc()
		return errorBody(models.NewNoEventTypeError())
	}

	// External collaborators may rewrite the payload before dispatch.
	if filtered, ok := s.bus.ApplyFilter(ctx, hooks.BeforeHandleFilter, payload.Raw).(map[string]any); ok {
		payload.ReplaceRaw(filtered)
	}

	if payload.Meta.FBPageIDs != nil {
		// Persisted for companion integrations; not part of the response.
		_ = s.settings.Set(ctx, repository.SettingMetaFBPages, payload.Meta.FBPageIDs)
	}

	event := payload.Meta.Event
	start := time.Now()
	logger.Info("Webhook event received", zap.String("event", event))

	var response map[string]any
	var err error

	switch event {
	case models.EventPublish:
		response, err = s.handlePublish(ctx, payload)
	case models.EventUpdate:
		response, err = s.handleUpdate(ctx, payload)
	case models.EventDelete:
		response, err = s.handleDelete(ctx, payload)
	case models.EventTest:
		response, err = s.handleConnectionCheck(ctx, payload)
	default:
		// Unrecognized event types are accepted and ignored, so the
		// platform can roll out new ones without breaking older sites.
		response, err = s.handleUnknown(ctx, payload)
	}

	metrics.WebhookEventDuration.WithLabelValues(event).Observe(metrics.MeasureDuration(start))

	if err != nil {
		metrics.WebhookEventTotal.WithLabelValues(event, "error").Inc()

		var webhookErr *models.WebhookError
		if errors.As(err, &webhookErr) {
			logger.Warn("Webhook event failed",
				zap.String("event", event),
				zap.String("code", webhookErr.Code))
			return errorBody(webhookErr)
		}

		// Store or infrastructure failure outside the wire taxonomy. The
		// platform retries on 5xx.
		logger.Error("Webhook event failed unexpectedly",
			zap.String("event", event),
			zap.Error(err))
		return map[string]any{
			"code":    "internal_error",
			"message": "The event could not be processed",
		}, http.StatusInternalServerError
	}

	metrics.WebhookEventTotal.WithLabelValues(event, "success").Inc()

	switch filtered := s.bus.ApplyFilter(ctx, hooks.AlterResponse, response).(type) {
	case map[string]any:
		response = filtered
	case nil:
		response = nil
	}

	// A filter may null the response out entirely; only concrete bodies
	// get a MAC.
	if response != nil {
		response = s.authenticator.Sign(response)
	}

	return response, http.StatusOK
}

// handlePublish creates (or re-creates) a story's post in the content store
// and runs the full lifecycle sequence.
func (s *WebhookService) handlePublish(ctx context.Context, payload *models.Payload) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "webhook.publish")
	defer span.End()

	return s.upsertStory(ctx, payload.Story(), 0)
}

// handleUpdate re-targets an existing post by the story's external id. The
// post type is never recomputed on update.
func (s *WebhookService) handleUpdate(ctx context.Context, payload *models.Payload) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "webhook.update")
	defer span.End()

	story := payload.Story()

	if !story.HasExternalID {
		return nil, models.NewPostNotFoundError()
	}

	exists, err := s.storyStore.Exists(ctx, story.ExternalID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, models.NewPostNotFoundError()
	}

	return s.upsertStory(ctx, story, story.ExternalID)
}

// upsertStory is the shared publish/update core: the before-publish
// notification, draft resolution, post-type resolution, the
// sanitization-bypassed store write, the rest of the lifecycle-event
// sequence, cache invalidation, and permalink resolution. The hook firing
// order here is a contract with external subscribers and must not change.
func (s *WebhookService) upsertStory(ctx context.Context, story *models.Story, existingID int64) (map[string]any, error) {
	s.bus.Dispatch(ctx, hooks.BeforePublishAction, story.Raw)

	isDraft := s.settings.GetBool(ctx, repository.SettingTestMode)
	if filtered, ok := s.bus.ApplyFilter(ctx, hooks.IsDraftStatus, isDraft, story.Raw).(bool); ok {
		isDraft = filtered
	}

	status := models.PostStatusPublish
	if isDraft {
		status = models.PostStatusDraft
	}

	// The post type is resolved on create only; an update keeps whatever
	// type the post already has.
	postType := ""
	if existingID == 0 {
		postType = s.settings.GetString(ctx, repository.SettingPostType)
		if postType == "" {
			postType = s.defaultPostType
		}
		if filtered, ok := s.bus.ApplyFilter(ctx, hooks.ChangePostType, postType, story.Raw).(string); ok {
			postType = filtered
		}
	}

	post := &models.Post{
		ID:       existingID,
		PostType: postType,
		Title:    story.Title,
		Content:  story.Content,
		Excerpt:  story.Excerpt,
		Status:   status,
		Meta:     map[string]string{},
	}

	// The store's default slugging applies unless the platform sent one.
	if story.SEOSlug != "" {
		post.Slug = story.SEOSlug
	}
	if story.HasAMPHTML {
		post.Meta[models.MetaKeyAMPHTML] = story.AMPHTML
	}

	// The platform's HTML must land unmodified; the bypass scope restores
	// sanitization even when the write fails.
	var postID int64
	err := s.sanitizer.Bypass(func() error {
		var upsertErr error
		postID, upsertErr = s.storyStore.Upsert(ctx, post)
		return upsertErr
	})
	if err != nil {
		return nil, err
	}

	story.SetExternalID(postID)

	// Fixed lifecycle order; subscribers own their side effects and their
	// failures never abort the handler.
	s.bus.Dispatch(ctx, hooks.SaveAuthorAction, story.Raw)
	s.bus.Dispatch(ctx, hooks.SaveTagsAction, story.Raw)
	s.bus.Dispatch(ctx, hooks.SaveCategoriesAction, story.Raw)
	s.bus.Dispatch(ctx, hooks.SaveFeaturedImageAction, story.Raw)
	s.bus.Dispatch(ctx, hooks.SaveSEOAction, story.Raw)
	s.bus.Dispatch(ctx, hooks.SideloadImagesAction, postID)
	s.bus.Dispatch(ctx, hooks.AfterPublishAction, story.Raw)

	// Entity-scoped cache flush; external caching layers subscribe here.
	s.storyStore.InvalidateCache(postID)
	s.bus.Dispatch(ctx, hooks.CleanPostCache, postID)

	permalink, err := s.storyStore.Permalink(ctx, postID)
	if err != nil {
		// The write succeeded, so the id must still reach the platform.
		logger.Warn("Failed to resolve permalink",
			zap.Int64("post_id", postID),
			zap.Error(err))
	}

	return map[string]any{
		"id":        postID,
		"permalink": permalink,
	}, nil
}

// handleDelete removes the story's post. There is no existence check:
// deleting an unknown id reports success, which keeps repeated delete
// deliveries idempotent. A payload without a usable id skips the store
// entirely and echoes the value back.
func (s *WebhookService) handleDelete(ctx context.Context, payload *models.Payload) (map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "webhook.delete")
	defer span.End()

	story := payload.Story()

	if !story.HasExternalID {
		s.bus.Dispatch(ctx, hooks.AfterDeleteAction, story.Raw)

		return map[string]any{
			"id":        story.Raw["external_id"],
			"permalink": nil,
		}, nil
	}

	if err := s.storyStore.Delete(ctx, story.ExternalID); err != nil {
		return nil, err
	}

	s.bus.Dispatch(ctx, hooks.AfterDeleteAction, story.Raw)

	return map[string]any{
		"id":        story.ExternalID,
		"permalink": nil,
	}, nil
}

// handleConnectionCheck lets the platform validate connectivity and the
// shared secret without touching content.
func (s *WebhookService) handleConnectionCheck(ctx context.Context, payload *models.Payload) (map[string]any, error) {
	s.bus.Dispatch(ctx, hooks.AfterTestAction, payload.Story().Raw)

	return map[string]any{}, nil
}

// handleUnknown accepts unrecognized event types as an empty no-op result.
func (s *WebhookService) handleUnknown(_ context.Context, payload *models.Payload) (map[string]any, error) {
	logger.Debug("Ignoring unknown webhook event",
		zap.String("event", payload.Meta.Event))

	return map[string]any{}, nil
}

func errorBody(err *models.WebhookError) (map[string]any, int) {
	return map[string]any{
		"code":    err.Code,
		"message": err.Message,
	}, err.Status
}
