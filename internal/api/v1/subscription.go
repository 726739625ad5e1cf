package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/service"
	"github.com/splitfair/splitfair/internal/types"
	"github.com/splitfair/splitfair/internal/validator"
)

// SubscriptionHandler serves the subscription lifecycle endpoints
type SubscriptionHandler struct {
	service service.SubscriptionService
	log     *logger.Logger
}

func NewSubscriptionHandler(s service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: s, log: log}
}

// @Summary Create a checkout session
// @Description Initiates a purchase and returns the provider approval URL
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body CreateCheckoutRequest true "Checkout request"
// @Success 201 {object} service.CheckoutSession
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /subscriptions/checkout [post]
func (h *SubscriptionHandler) CreateCheckout(c *gin.Context) {
	ownerID, err := actingOwner(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}
	if err := validator.ValidateRequest(&req); err != nil {
		respondError(c, ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	session, err := h.service.CreateCheckout(c.Request.Context(), ownerID, types.PlanType(req.PlanType), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// @Summary Activate a subscription
// @Description Confirms a purchase after the buyer returns from approval
// @Tags subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} subscription.Subscription
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /subscriptions/{id}/activate [post]
func (h *SubscriptionHandler) Activate(c *gin.Context) {
	sub, err := h.service.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// @Summary Get the owner's current subscription
// @Description Returns the owner's latest subscription, reconciled with the provider when stale
// @Tags subscriptions
// @Produce json
// @Success 200 {object} subscription.Subscription
// @Failure 404 {object} errors.ErrorResponse
// @Router /subscriptions/current [get]
func (h *SubscriptionHandler) GetCurrent(c *gin.Context) {
	ownerID, err := actingOwner(c)
	if err != nil {
		respondError(c, err)
		return
	}

	sub, err := h.service.GetActiveSubscription(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// @Summary Cancel a subscription
// @Description Cancels immediately or schedules cancellation at period end
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param id path string true "Subscription ID"
// @Param request body CancelSubscriptionRequest true "Cancellation options"
// @Success 200 {object} subscription.Subscription
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /subscriptions/{id}/cancel [post]
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	var req CancelSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	sub, err := h.service.Cancel(c.Request.Context(), c.Param("id"), req.Immediate, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// @Summary Resume a subscription
// @Description Withdraws a scheduled cancellation
// @Tags subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {object} subscription.Subscription
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /subscriptions/{id}/resume [post]
func (h *SubscriptionHandler) Resume(c *gin.Context) {
	sub, err := h.service.Resume(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// @Summary List subscription history
// @Description Returns the append-only transition ledger, newest first
// @Tags subscriptions
// @Produce json
// @Param id path string true "Subscription ID"
// @Success 200 {array} billinghistory.HistoryEntry
// @Failure 404 {object} errors.ErrorResponse
// @Router /subscriptions/{id}/history [get]
func (h *SubscriptionHandler) ListHistory(c *gin.Context) {
	entries, err := h.service.ListHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// @Summary Trigger the periodic pull
// @Description Reconciles every non-terminal subscription whose sync TTL elapsed
// @Tags subscriptions
// @Produce json
// @Success 200 {object} map[string]int
// @Router /admin/subscriptions/sync [post]
func (h *SubscriptionHandler) SyncDue(c *gin.Context) {
	count, err := h.service.SyncDueSubscriptions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": count})
}
