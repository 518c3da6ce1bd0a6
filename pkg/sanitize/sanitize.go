// Package sanitize owns the HTML sanitization policy the content store
// applies to every write, plus the scoped bypass the webhook pipeline uses
// when the publishing platform's HTML must land unmodified.
package sanitize

import (
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer applies a bluemonday UGC policy to post content unless a bypass
// scope is active. The bypass is a counter, not a flag, so overlapping scopes
// from concurrent requests compose: content is sanitized again only once
// every scope has exited.
type Sanitizer struct {
	policy *bluemonday.Policy

	mu       sync.Mutex
	bypasses int
}

// New creates a Sanitizer with the default user-generated-content policy,
// extended to keep the embed markup publishing platforms emit.
func New() *Sanitizer {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class", "id").Globally()
	policy.AllowElements("figure", "figcaption", "iframe")
	policy.AllowAttrs("src", "width", "height", "frameborder", "allowfullscreen").OnElements("iframe")

	return &Sanitizer{policy: policy}
}

// Clean returns html sanitized per the policy, or unmodified while a bypass
// scope is active.
func (s *Sanitizer) Clean(html string) string {
	s.mu.Lock()
	bypassed := s.bypasses > 0
	s.mu.Unlock()

	if bypassed {
		return html
	}
	return s.policy.Sanitize(html)
}

// Bypass runs fn with sanitization disabled and guarantees it is restored on
// every exit path, including a panic inside fn.
func (s *Sanitizer) Bypass(fn func() error) error {
	s.mu.Lock()
	s.bypasses++
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.bypasses--
		s.mu.Unlock()
	}()

	return fn()
}
