// Package httpclient puts outbound HTTP behind a small interface so the
// image sideloader's downloads can be mocked in tests.
package httpclient

import (
	"net/http"
	"time"
)

// defaultTimeout bounds a single image download.
const defaultTimeout = 30 * time.Second

// Client fetches remote resources. Downloads are the only outbound calls
// this service makes, so the surface is a single Get.
type Client interface {
	Get(url string) (*http.Response, error)
}

// StandardHTTPClient wraps the standard http.Client
type StandardHTTPClient struct {
	client *http.Client
}

// NewStandardClient creates a client with the default download timeout.
func NewStandardClient() Client {
	return NewStandardClientWithTimeout(defaultTimeout)
}

// NewStandardClientWithTimeout creates a client with an explicit timeout,
// for callers fetching from slow origins.
func NewStandardClientWithTimeout(timeout time.Duration) Client {
	return &StandardHTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Get fetches a URL
func (c *StandardHTTPClient) Get(url string) (*http.Response, error) {
	return c.client.Get(url)
}
