package services_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/storysync/storysync-api/internal/hooks"
	"github.com/storysync/storysync-api/internal/models"
	"github.com/storysync/storysync-api/internal/services"
	"github.com/storysync/storysync-api/pkg/mac"
	"github.com/storysync/storysync-api/pkg/sanitize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const testSecret = "test-webhook-secret"

type fixture struct {
	service    services.WebhookServiceInterface
	storyStore *MockStoryStore
	settings   *MockSettingsStore
	sanitizer  *sanitize.Sanitizer
	bus        *hooks.Bus
}

func newFixture() *fixture {
	storyStore := new(MockStoryStore)
	settings := new(MockSettingsStore)
	sanitizer := sanitize.New()
	bus := hooks.New()

	return &fixture{
		service:    services.NewWebhookService(mac.New(testSecret), storyStore, settings, sanitizer, bus, "post"),
		storyStore: storyStore,
		settings:   settings,
		sanitizer:  sanitizer,
		bus:        bus,
	}
}

// digest computes the HMAC the publishing platform would attach.
func digest(t *testing.T, v any) string {
	t.Helper()

	encoded, err := json.Marshal(v)
	assert.NoError(t, err)

	h := hmac.New(sha256.New, []byte(testSecret))
	h.Write(encoded)
	return hex.EncodeToString(h.Sum(nil))
}

// signedBody serializes a payload with a valid meta.mac.
func signedBody(t *testing.T, payload map[string]any) []byte {
	t.Helper()

	meta, _ := payload["meta"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
		payload["meta"] = meta
	}
	// The digest covers the payload without the mac, so compute first,
	// attach second.
	delete(meta, "mac")
	meta["mac"] = digest(t, payload)

	body, err := json.Marshal(payload)
	assert.NoError(t, err)
	return body
}

// expectStorySettings wires the settings reads every publish/update makes.
func (f *fixture) expectStorySettings(testMode bool, postType string) {
	f.settings.On("GetBool", mock.Anything, "test_mode").Return(testMode)
	f.settings.On("GetString", mock.Anything, "post_type").Return(postType).Maybe()
}

func TestHandle_InvalidMac(t *testing.T) {
	f := newFixture()

	body, status := f.service.Handle(context.Background(),
		[]byte(`{"meta":{"event":"publish","mac":"bogus"},"data":{"title":"T"}}`))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeInvalidMAC, body["code"])
	assert.NotContains(t, body, "mac", "error responses are never signed")
	f.storyStore.AssertNotCalled(t, "Upsert")
}

func TestHandle_MissingMacField(t *testing.T) {
	f := newFixture()

	_, status := f.service.Handle(context.Background(),
		[]byte(`{"meta":{"event":"publish"},"data":{"title":"T"}}`))

	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHandle_MalformedJSONDegradesToInvalidMac(t *testing.T) {
	f := newFixture()

	body, status := f.service.Handle(context.Background(), []byte("{truncated"))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeInvalidMAC, body["code"])
}

func TestHandle_MissingEventType(t *testing.T) {
	f := newFixture()

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{},
		"data": map[string]any{"title": "T"},
	}))

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeNoEventType, body["code"])
	f.storyStore.AssertNotCalled(t, "Upsert")
}

func TestHandle_PublishCreatesPost(t *testing.T) {
	f := newFixture()
	f.expectStorySettings(false, "")

	var captured *models.Post
	f.storyStore.On("Upsert", mock.Anything, mock.AnythingOfType("*models.Post")).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*models.Post) }).
		Return(int64(99), nil).Once()
	f.storyStore.On("InvalidateCache", int64(99)).Return().Once()
	f.storyStore.On("Permalink", mock.Anything, int64(99)).Return("https://news.example.com/t", nil).Once()

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "publish"},
		"data": map[string]any{"title": "T", "content": "C", "excerpt": ""},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 99, body["id"])
	assert.Equal(t, "https://news.example.com/t", body["permalink"])

	assert.EqualValues(t, 0, captured.ID, "publish always creates")
	assert.Equal(t, "post", captured.PostType)
	assert.Equal(t, models.PostStatusPublish, captured.Status)
	assert.Equal(t, "T", captured.Title)
	assert.Equal(t, "", captured.Slug, "store slugging applies without seo_slug")

	f.storyStore.AssertExpectations(t)
}

func TestHandle_PublishResponseMacVerifies(t *testing.T) {
	f := newFixture()
	f.expectStorySettings(false, "")

	f.storyStore.On("Upsert", mock.Anything, mock.Anything).Return(int64(7), nil)
	f.storyStore.On("InvalidateCache", int64(7)).Return()
	f.storyStore.On("Permalink", mock.Anything, int64(7)).Return("https://news.example.com/t", nil)

	body, _ := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "publish"},
		"data": map[string]any{"title": "T", "content": "C"},
	}))

	suppliedMac, ok := body["mac"].(string)
	assert.True(t, ok, "successful responses carry a mac")

	unsigned := map[string]any{}
	for k, v := range body {
		if k != "mac" {
			unsigned[k] = v
		}
	}
	assert.Equal(t, digest(t, unsigned), suppliedMac)
}

func TestHandle_PublishTestModeCreatesDraft(t *testing.T) {
	f := newFixture()
	f.expectStorySettings(true, "")

	var captured *models.Post
	f.storyStore.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*models.Post) }).
		Return(int64(5), nil)
	f.storyStore.On("InvalidateCache", int64(5)).Return()
	f.storyStore.On("Permalink", mock.Anything, int64(5)).Return("https://news.example.com/t", nil)

	_, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "publish"},
		"data": map[string]any{"title": "T", "content": "C"},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.PostStatusDraft, captured.Status)
}

func TestHandle_PublishSlugAndAmphtml(t *testing.T) {
	f := newFixture()
	f.expectStorySettings(false, "")

	var captured *models.Post
	f.storyStore.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*models.Post) }).
		Return(int64(5), nil)
	f.storyStore.On("InvalidateCache", int64(5)).Return()
	f.storyStore.On("Permalink", mock.Anything, int64(5)).Return("https://news.example.com/custom", nil)

	f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "publish"},
		"data": map[string]any{
			"title":    "T",
			"content":  "C",
			"seo_slug": "custom",
			"amphtml":  "<html amp></html>",
		},
	}))

	assert.Equal(t, "custom", captured.Slug)
	assert.Equal(t, "<html amp></html>", captured.Meta[models.MetaKeyAMPHTML])
}

func TestHandle_PublishLifecycleHookOrder(t *testing.T) {
	f := newFixture()
	f.expectStorySettings(false, "")

	f.storyStore.On("Upsert", mock.Anything, mock.Anything).Return(int64(3), nil)
	f.storyStore.On("InvalidateCache", int64(3)).Return()
	f.storyStore.On("Permalink", mock.Anything, int64(3)).Return("https://news.example.com/t", nil)

	var order []hooks.Point
	recordAction := func(point hooks.Point) {
		f.bus.OnAction(point, func(_ context.Context, payload any) error {
			order = append(order, point)
			return nil
		})
	}
	recordFilter := func(point hooks.Point) {
		f.bus.OnFilter(point, func(_ context.Context, value any, _ ...any) (any, error) {
			order = append(order, point)
			return value, nil
		})
	}
	recordAction(hooks.BeforePublishAction)
	recordFilter(hooks.IsDraftStatus)
	recordFilter(hooks.ChangePostType)
	for _, point := range []hooks.Point{
		hooks.SaveAuthorAction,
		hooks.SaveTagsAction,
		hooks.SaveCategoriesAction,
		hooks.SaveFeaturedImageAction,
		hooks.SaveSEOAction,
		hooks.SideloadImagesAction,
		hooks.AfterPublishAction,
		hooks.CleanPostCache,
	} {
		recordAction(point)
	}

	f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "publish"},
		"data": map[string]any{"title": "T", "content": "C"},
	}))

	// The before-publish notification precedes both resolution filters;
	// subscribers rely on this sequence.
	assert.Equal(t, []hooks.Point{
		hooks.BeforePublishAction,
		hooks.IsDraftStatus,
		hooks.ChangePostType,
		hooks.SaveAuthorAction,
		hooks.SaveTagsAction,
		hooks.SaveCategoriesAction,
		hooks.SaveFeaturedImageAction,
		hooks.SaveSEOAction,
		hooks.SideloadImagesAction,
		hooks.AfterPublishAction,
		hooks.CleanPostCache,
	}, order)
}

func TestHandle_PublishHookSubscriberFailureDoesNotAbort(t *testing.T) {
	f := newFixture()
	f.expectStorySettings(false, "")

	f.storyStore.On("Upsert", mock.Anything, mock.Anything).Return(int64(3), nil)
	f.storyStore.On("InvalidateCache", int64(3)).Return()
	f.storyStore.On("Permalink", mock.Anything, int64(3)).Return("https://news.example.com/t", nil)

	f.bus.OnAction(hooks.SaveTagsAction, func(_ context.Context, payload any) error {
		return errors.New("tag taxonomy offline")
	})

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "publish"},
		"data": map[string]any{"title": "T", "content": "C"},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3, body["id"])
}

func TestHandle_PublishUpsertFailure(t *testing.T) {
	f := newFixture()
	f.expectStorySettings(false, "")

	f.storyStore.On("Upsert", mock.Anything, mock.Anything).Return(int64(0), errors.New("db down"))

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "publish"},
		"data": map[string]any{"title": "T", "content": "C"},
	}))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", body["code"])

	// The bypass scope must have been restored despite the failure.
	assert.NotContains(t, f.sanitizer.Clean("<script>x</script>"), "script")
}

func TestHandle_IsDraftStatusFilterOverrides(t *testing.T) {
	f := newFixture()
	f.expectStorySettings(false, "")

	f.bus.OnFilter(hooks.IsDraftStatus, func(_ context.Context, value any, _ ...any) (any, error) {
		return true, nil
	})

	var captured *models.Post
	f.storyStore.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*models.Post) }).
		Return(int64(5), nil)
	f.storyStore.On("InvalidateCache", int64(5)).Return()
	f.storyStore.On("Permalink", mock.Anything, int64(5)).Return("https://news.example.com/t", nil)

	f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "publish"},
		"data": map[string]any{"title": "T", "content": "C"},
	}))

	assert.Equal(t, models.PostStatusDraft, captured.Status)
}

func TestHandle_ChangePostTypeFilter(t *testing.T) {
	f := newFixture()
	f.expectStorySettings(false, "")

	f.bus.OnFilter(hooks.ChangePostType, func(_ context.Context, value any, _ ...any) (any, error) {
		return "press_release", nil
	})

	var captured *models.Post
	f.storyStore.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*models.Post) }).
		Return(int64(5), nil)
	f.storyStore.On("InvalidateCache", int64(5)).Return()
	f.storyStore.On("Permalink", mock.Anything, int64(5)).Return("https://news.example.com/t", nil)

	f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "publish"},
		"data": map[string]any{"title": "T", "content": "C"},
	}))

	assert.Equal(t, "press_release", captured.PostType)
}

func TestHandle_UpdateNotFound(t *testing.T) {
	f := newFixture()

	f.storyStore.On("Exists", mock.Anything, int64(42)).Return(false, nil).Once()

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "update"},
		"data": map[string]any{"title": "T", "content": "C", "external_id": 42},
	}))

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, models.CodePostNotFound, body["code"])
	f.storyStore.AssertNotCalled(t, "Upsert")
	f.storyStore.AssertExpectations(t)
}

func TestHandle_UpdateWithoutExternalID(t *testing.T) {
	f := newFixture()

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "update"},
		"data": map[string]any{"title": "T", "content": "C"},
	}))

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, models.CodePostNotFound, body["code"])
	f.storyStore.AssertNotCalled(t, "Exists")
}

func TestHandle_UpdateTargetsExistingPost(t *testing.T) {
	f := newFixture()
	f.expectStorySettings(false, "")

	f.storyStore.On("Exists", mock.Anything, int64(42)).Return(true, nil)

	var captured *models.Post
	f.storyStore.On("Upsert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(1).(*models.Post) }).
		Return(int64(42), nil)
	f.storyStore.On("InvalidateCache", int64(42)).Return()
	f.storyStore.On("Permalink", mock.Anything, int64(42)).Return("https://news.example.com/t", nil)

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "update"},
		"data": map[string]any{"title": "T2", "content": "C2", "external_id": "42"},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 42, body["id"])
	assert.EqualValues(t, 42, captured.ID, "update always targets the existing id")
	assert.Equal(t, "", captured.PostType, "post type is not recomputed on update")

	// post_type is never read on update.
	f.settings.AssertNotCalled(t, "GetString", mock.Anything, "post_type")
}

func TestHandle_DeleteIsIdempotent(t *testing.T) {
	f := newFixture()

	f.storyStore.On("Delete", mock.Anything, int64(77)).Return(nil).Once()

	deleted := false
	f.bus.OnAction(hooks.AfterDeleteAction, func(_ context.Context, payload any) error {
		deleted = true
		return nil
	})

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "delete"},
		"data": map[string]any{"external_id": 77},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 77, body["id"])
	assert.Nil(t, body["permalink"])
	assert.True(t, deleted)
	f.storyStore.AssertNotCalled(t, "Exists")
}

func TestHandle_DeleteWithoutExternalID(t *testing.T) {
	f := newFixture()

	deleted := false
	f.bus.OnAction(hooks.AfterDeleteAction, func(_ context.Context, payload any) error {
		deleted = true
		return nil
	})

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "delete"},
		"data": map[string]any{"external_id": "not-a-number"},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "not-a-number", body["id"], "unusable ids are echoed back")
	assert.Nil(t, body["permalink"])
	assert.True(t, deleted)
	f.storyStore.AssertNotCalled(t, "Delete")
}

func TestHandle_ConnectionCheck(t *testing.T) {
	f := newFixture()

	tested := false
	f.bus.OnAction(hooks.AfterTestAction, func(_ context.Context, payload any) error {
		tested = true
		return nil
	})

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "test"},
		"data": map[string]any{},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, tested)
	assert.Contains(t, body, "mac")
	assert.Len(t, body, 1, "connection check returns an empty signed body")
}

func TestHandle_UnknownEventIsNoOp(t *testing.T) {
	f := newFixture()

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "archive"},
		"data": map[string]any{"title": "T"},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "mac")
	f.storyStore.AssertNotCalled(t, "Upsert")
	f.storyStore.AssertNotCalled(t, "Delete")
}

func TestHandle_CaseSensitiveEventRouting(t *testing.T) {
	f := newFixture()

	// "Publish" is not "publish": it routes to the unknown handler.
	_, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "Publish"},
		"data": map[string]any{"title": "T"},
	}))

	assert.Equal(t, http.StatusOK, status)
	f.storyStore.AssertNotCalled(t, "Upsert")
}

func TestHandle_BeforeHandleFilterRewritesPayload(t *testing.T) {
	f := newFixture()

	f.bus.OnFilter(hooks.BeforeHandleFilter, func(_ context.Context, value any, _ ...any) (any, error) {
		payload := value.(map[string]any)
		payload["meta"].(map[string]any)["event"] = "test"
		return payload, nil
	})

	tested := false
	f.bus.OnAction(hooks.AfterTestAction, func(_ context.Context, payload any) error {
		tested = true
		return nil
	})

	_, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "publish"},
		"data": map[string]any{"title": "T"},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, tested, "dispatch uses the filtered payload")
	f.storyStore.AssertNotCalled(t, "Upsert")
}

func TestHandle_FBPageIDsPersisted(t *testing.T) {
	f := newFixture()

	f.settings.On("Set", mock.Anything, "meta_fb_pages", []any{"123", "456"}).Return(nil).Once()

	_, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "test", "fb-page-ids": []any{"123", "456"}},
		"data": map[string]any{},
	}))

	assert.Equal(t, http.StatusOK, status)
	f.settings.AssertExpectations(t)
}

func TestHandle_AlterResponseFilter(t *testing.T) {
	f := newFixture()

	f.bus.OnFilter(hooks.AlterResponse, func(_ context.Context, value any, _ ...any) (any, error) {
		response := value.(map[string]any)
		response["extra"] = "added"
		return response, nil
	})

	body, _ := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "test"},
		"data": map[string]any{},
	}))

	assert.Equal(t, "added", body["extra"])
	assert.Contains(t, body, "mac", "filtered responses are signed after filtering")
}

func TestHandle_AlterResponseFilterMayNullResponse(t *testing.T) {
	f := newFixture()

	f.bus.OnFilter(hooks.AlterResponse, func(_ context.Context, value any, _ ...any) (any, error) {
		return nil, nil
	})

	body, status := f.service.Handle(context.Background(), signedBody(t, map[string]any{
		"meta": map[string]any{"event": "test"},
		"data": map[string]any{},
	}))

	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, body, "null responses bypass output signing")
}
