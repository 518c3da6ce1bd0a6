package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/storysync/storysync-api/internal/services"
)

type WebhookHandler struct {
	service services.WebhookServiceInterface
}

func NewWebhookHandler(service services.WebhookServiceInterface) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// HandleWebhook receives a story event from the publishing platform. The
// service needs the raw body because the mac covers the payload as delivered,
// so no binding happens here.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondError(c, http.StatusRequestEntityTooLarge, "Payload too large", err)
			return
		}
		respondError(c, http.StatusBadRequest, "Failed to read request body", err)
		return
	}

	response, status := h.service.Handle(c.Request.Context(), body)
	if status >= 400 {
		attachError(c, errors.New("webhook rejected"))
	}

	c.JSON(status, response)
}
