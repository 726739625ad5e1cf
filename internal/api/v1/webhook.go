package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/paypal"
	"github.com/splitfair/splitfair/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WebhookHandler receives provider webhook deliveries. Signature
// verification happens before anything else: a delivery that cannot be
// verified is rejected with zero state effect.
type WebhookHandler struct {
	gateway paypal.Gateway
	service service.SubscriptionService
	log     *logger.Logger
}

func NewWebhookHandler(gateway paypal.Gateway, s service.SubscriptionService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{gateway: gateway, service: s, log: log}
}

// @Summary Receive a provider webhook
// @Description Verifies the delivery signature and routes the event into the reconciliation engine
// @Tags webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 400 {object} errors.ErrorResponse
// @Router /webhooks/paypal [post]
func (h *WebhookHandler) HandlePayPal(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		respondError(c, ierr.WithError(err).
			WithHint("Failed to read webhook body").
			Mark(ierr.ErrValidation))
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name := range c.Request.Header {
		headers[name] = c.GetHeader(name)
	}

	verified, err := h.gateway.VerifyWebhookSignature(c.Request.Context(), headers, rawBody)
	if err != nil {
		respondError(c, err)
		return
	}
	if !verified {
		respondError(c, ierr.NewError("webhook signature could not be verified").
			WithHint("The delivery signature did not verify").
			Mark(ierr.ErrSignatureVerification))
		return
	}

	var event paypal.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		respondError(c, ierr.WithError(err).
			WithHint("Webhook body is not a valid event envelope").
			Mark(ierr.ErrValidation))
		return
	}

	if err := h.service.HandleWebhookEvent(c.Request.Context(), &event); err != nil {
		h.log.Errorw("webhook processing failed",
			"event_id", event.ID,
			"event_type", event.EventType,
			"error", err,
		)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
