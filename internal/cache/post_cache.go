package cache

import (
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/storysync/storysync-api/pkg/logger"
	"github.com/storysync/storysync-api/pkg/metrics"
	"go.uber.org/zap"
)

const postCacheName = "posts"

// PostCache holds per-post derived values (permalink, status) so repeated
// webhook deliveries for the same story do not hit the database. Entries are
// invalidated whenever the post mutates.
type PostCache struct {
	cache *gocache.Cache
}

// NewPostCache creates a post cache with the given TTL in seconds.
func NewPostCache(ttlSeconds int) *PostCache {
	ttl := time.Duration(ttlSeconds) * time.Second

	return &PostCache{
		cache: gocache.New(ttl, time.Hour),
	}
}

// GetPermalink returns a cached permalink for a post, if present.
func (pc *PostCache) GetPermalink(id int64) (string, bool) {
	value, found := pc.cache.Get(permalinkKey(id))
	if !found {
		metrics.CacheMisses.WithLabelValues(postCacheName).Inc()
		return "", false
	}

	permalink, ok := value.(string)
	if !ok {
		pc.cache.Delete(permalinkKey(id))
		return "", false
	}

	metrics.CacheHits.WithLabelValues(postCacheName).Inc()
	return permalink, true
}

// SetPermalink caches a post's resolved permalink.
func (pc *PostCache) SetPermalink(id int64, permalink string) {
	pc.cache.SetDefault(permalinkKey(id), permalink)
}

// Invalidate drops every cached value for a post.
func (pc *PostCache) Invalidate(id int64) {
	pc.cache.Delete(permalinkKey(id))
	logger.Debug("Post cache invalidated", zap.Int64("post_id", id))
}

func permalinkKey(id int64) string {
	return "permalink:" + strconv.FormatInt(id, 10)
}
