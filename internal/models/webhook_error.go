package models

import "net/http"

// Error codes forming the wire contract with the publishing platform.
const (
	CodeInvalidMAC   = "invalid_mac"
	CodeNoEventType  = "no_event_type"
	CodePostNotFound = "post_not_found"
)

// WebhookError is a terminal request failure with a stable machine-readable
// code. It is returned to the platform as {code, message} with its HTTP
// status and is never MAC-signed.
type WebhookError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *WebhookError) Error() string {
	return e.Code + ": " + e.Message
}

// NewInvalidMACError reports a payload whose message authentication code
// did not verify.
func NewInvalidMACError() *WebhookError {
	return &WebhookError{
		Code:    CodeInvalidMAC,
		Message: "The mac is invalid",
		Status:  http.StatusBadRequest,
	}
}

// NewNoEventTypeError reports a payload without a meta.event field.
func NewNoEventTypeError() *WebhookError {
	return &WebhookError{
		Code:    CodeNoEventType,
		Message: "The event is not set",
		Status:  http.StatusBadRequest,
	}
}

// NewPostNotFoundError reports an update targeting an external_id the
// content store does not know.
func NewPostNotFoundError() *WebhookError {
	return &WebhookError{
		Code:    CodePostNotFound,
		Message: "The post could not be found",
		Status:  http.StatusNotFound,
	}
}
