package services

import (
	"context"
)

// WebhookServiceInterface defines the webhook dispatch pipeline. Handle
// takes the raw request body and returns the response body and HTTP status;
// it never errors at the Go level because every failure mode is part of the
// wire contract.
type WebhookServiceInterface interface {
	Handle(ctx context.Context, rawBody []byte) (map[string]any, int)
}
