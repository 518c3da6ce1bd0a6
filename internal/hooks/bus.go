// Package hooks implements the extension-point registry external
// collaborators plug into. Points come in two contracts: filters transform a
// value and hand it back, actions are one-way notifications. The point names
// are a wire contract shared with companion integrations and must not change.
package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/storysync/storysync-api/pkg/logger"
	"github.com/storysync/storysync-api/pkg/metrics"
	"go.uber.org/zap"
)

// Point names a hook extension point.
type Point string

// Filter points. Each transforms a value and returns it.
const (
	BeforeHandleFilter Point = "before_handle_filter" // full payload in/out
	AlterResponse      Point = "alter_response"       // response body in/out
	IsDraftStatus      Point = "is_draft_status"      // bool in/out, story as context
	ChangePostType     Point = "change_post_type"     // string in/out, story as context
)

// Action points. Each is a notify-only lifecycle event.
const (
	BeforePublishAction     Point = "before_publish_action"
	SaveAuthorAction        Point = "save_author_action"
	SaveTagsAction          Point = "save_tags_action"
	SaveCategoriesAction    Point = "save_categories_action"
	SaveFeaturedImageAction Point = "save_featured_image_action"
	SaveSEOAction           Point = "save_seo_action"
	SideloadImagesAction    Point = "sideload_images_action"
	AfterPublishAction      Point = "after_publish_action"
	AfterDeleteAction       Point = "after_delete_action"
	AfterTestAction         Point = "after_test_action"
	CleanPostCache          Point = "clean_post_cache"
)

// FilterFunc transforms value. Extra arguments carry read-only context such
// as the story a status decision is about.
type FilterFunc func(ctx context.Context, value any, args ...any) (any, error)

// ActionFunc observes a lifecycle event. Its error is logged and swallowed;
// subscriber failures are never the request's problem.
type ActionFunc func(ctx context.Context, payload any) error

// Bus is the publish/subscribe registry. Registration happens at startup,
// dispatch on every request, hence the read/write lock.
type Bus struct {
	mu      sync.RWMutex
	filters map[Point][]FilterFunc
	actions map[Point][]ActionFunc
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		filters: make(map[Point][]FilterFunc),
		actions: make(map[Point][]ActionFunc),
	}
}

// OnFilter registers a transforming subscriber on a filter point.
// Subscribers run in registration order, each receiving the previous one's
// output.
func (b *Bus) OnFilter(point Point, fn FilterFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters[point] = append(b.filters[point], fn)
}

// OnAction registers a notify-only subscriber on an action point.
func (b *Bus) OnAction(point Point, fn ActionFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.actions[point] = append(b.actions[point], fn)
}

// ApplyFilter runs value through every subscriber on a filter point. A
// subscriber that errors or panics is skipped and the value it received is
// carried forward unchanged.
func (b *Bus) ApplyFilter(ctx context.Context, point Point, value any, args ...any) any {
	b.mu.RLock()
	subscribers := b.filters[point]
	b.mu.RUnlock()

	metrics.HookDispatchTotal.WithLabelValues(string(point), "filter").Inc()

	for i, fn := range subscribers {
		filtered, err := b.invokeFilter(ctx, point, fn, value, args)
		if err != nil {
			metrics.HookSubscriberFailures.WithLabelValues(string(point)).Inc()
			logger.Warn("Hook filter subscriber failed, value unchanged",
				zap.String("point", string(point)),
				zap.Int("subscriber", i),
				zap.Error(err))
			continue
		}
		value = filtered
	}

	return value
}

// Dispatch notifies every subscriber on an action point. Errors and panics
// are logged and swallowed.
func (b *Bus) Dispatch(ctx context.Context, point Point, payload any) {
	b.mu.RLock()
	subscribers := b.actions[point]
	b.mu.RUnlock()

	metrics.HookDispatchTotal.WithLabelValues(string(point), "action").Inc()

	for i, fn := range subscribers {
		if err := b.invokeAction(ctx, fn, payload); err != nil {
			metrics.HookSubscriberFailures.WithLabelValues(string(point)).Inc()
			logger.Warn("Hook action subscriber failed",
				zap.String("point", string(point)),
				zap.Int("subscriber", i),
				zap.Error(err))
		}
	}
}

func (b *Bus) invokeFilter(ctx context.Context, point Point, fn FilterFunc, value any, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("filter subscriber panicked: %v", r)
		}
	}()
	return fn(ctx, value, args...)
}

func (b *Bus) invokeAction(ctx context.Context, fn ActionFunc, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action subscriber panicked: %v", r)
		}
	}()
	return fn(ctx, payload)
}
