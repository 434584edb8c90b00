// Webhook HTTP handler.
//
// POST /webhooks/:provider/:instance is the ingestion entry point for the
// messaging gateways. The contract with the providers is deliberately
// generous: any payload the decoder can parse is acknowledged with 200, even
// when the event is ignored or a duplicate, because a non-2xx answer makes
// the gateway retry and a retry storm helps nobody. Only three things are not
// a 200: an unparseable body (400), an instance no tenant has configured
// (404), and a fatal store error (500, safe to retry).
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/legalflow/messaging-backend/internal/gateway"
	"github.com/legalflow/messaging-backend/internal/http/middleware"
	"github.com/legalflow/messaging-backend/internal/services"
)

// WebhookAckResponse is the small JSON body returned for accepted deliveries.
type WebhookAckResponse struct {
	Outcome   string `json:"outcome"`
	MessageID string `json:"message_id,omitempty"`
}

// Webhook ingests one provider delivery.
func (h *Handlers) Webhook(c *gin.Context) {
	ctx := c.Request.Context()
	provider := c.Param("provider")
	instance := c.Param("instance")

	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		middleware.ObserveWebhook(provider, "error")
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "empty or unreadable body")
		return
	}

	ack, err := h.Dispatcher.Handle(ctx, provider, instance, raw)
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrMalformed):
			middleware.ObserveWebhook(provider, "error")
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unparseable payload")
		case errors.Is(err, services.ErrAccountNotFound):
			middleware.ObserveWebhook(provider, "error")
			fail(c, http.StatusNotFound, ErrCodeNotFound, "unknown instance")
		default:
			middleware.ObserveWebhook(provider, "error")
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	middleware.ObserveWebhook(provider, ack.Outcome)
	ok(c, http.StatusOK, WebhookAckResponse{Outcome: ack.Outcome, MessageID: ack.MessageID})
}
