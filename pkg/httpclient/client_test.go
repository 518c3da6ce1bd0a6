package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStandardClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/image.png", r.URL.Path)
		w.Write([]byte("payload"))
	}))
	defer server.Close()

	resp, err := NewStandardClient().Get(server.URL + "/image.png")
	assert.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, "payload", string(body))
}

func TestStandardClient_TimeoutApplied(t *testing.T) {
	c := NewStandardClientWithTimeout(5 * time.Second).(*StandardHTTPClient)
	assert.Equal(t, 5*time.Second, c.client.Timeout)

	d := NewStandardClient().(*StandardHTTPClient)
	assert.Equal(t, defaultTimeout, d.client.Timeout)
}
