package sanitize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizer_CleanStripsScript(t *testing.T) {
	s := New()

	cleaned := s.Clean(`<p>hello</p><script>alert(1)</script>`)

	assert.Contains(t, cleaned, "<p>hello</p>")
	assert.NotContains(t, cleaned, "script")
}

func TestSanitizer_BypassPassesContentThrough(t *testing.T) {
	s := New()
	raw := `<p onclick="x()">hello</p><script>alert(1)</script>`

	var inside string
	err := s.Bypass(func() error {
		inside = s.Clean(raw)
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, raw, inside)
}

func TestSanitizer_BypassRestoresOnError(t *testing.T) {
	s := New()

	err := s.Bypass(func() error {
		return errors.New("upsert failed")
	})
	assert.Error(t, err)

	// Sanitization must be active again after the failed scope.
	assert.NotContains(t, s.Clean("<script>x</script>"), "script")
}

func TestSanitizer_BypassRestoresOnPanic(t *testing.T) {
	s := New()

	assert.Panics(t, func() {
		_ = s.Bypass(func() error {
			panic("boom")
		})
	})

	assert.NotContains(t, s.Clean("<script>x</script>"), "script")
}

func TestSanitizer_NestedBypassScopes(t *testing.T) {
	s := New()

	_ = s.Bypass(func() error {
		return s.Bypass(func() error { return nil })
	})

	assert.NotContains(t, s.Clean("<script>x</script>"), "script")
}
