package slug

import (
	"regexp"
	"strings"
)

var (
	nonSlugChars   = regexp.MustCompile(`[^a-z0-9-]+`)
	dashCollapse   = regexp.MustCompile(`-{2,}`)
	maxSlugLength  = 200
)

// FromTitle derives a URL-friendly slug from a post title. Used when the
// publishing platform does not supply an SEO slug of its own.
// Example: "Hello, World!" -> "hello-world"
func FromTitle(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = dashCollapse.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		slug = "post"
	}

	return slug
}
