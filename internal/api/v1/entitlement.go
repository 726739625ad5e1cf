package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/splitfair/splitfair/internal/domain/entitlement"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/service"
	"github.com/splitfair/splitfair/internal/types"
	"github.com/splitfair/splitfair/internal/validator"
)

// EntitlementHandler serves feature gate reads and the operator CRUD
type EntitlementHandler struct {
	service service.EntitlementService
	log     *logger.Logger
}

func NewEntitlementHandler(s service.EntitlementService, log *logger.Logger) *EntitlementHandler {
	return &EntitlementHandler{service: s, log: log}
}

// @Summary Get the owner's entitlement summary
// @Description Resolves the effective plan tier and every feature's state with live usage
// @Tags entitlements
// @Produce json
// @Success 200 {object} service.EntitlementSummary
// @Router /entitlements [get]
func (h *EntitlementHandler) GetSummary(c *gin.Context) {
	ownerID, err := actingOwner(c)
	if err != nil {
		respondError(c, err)
		return
	}

	summary, err := h.service.GetEntitlementSummary(c.Request.Context(), ownerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// @Summary Check a feature limit
// @Description Reports whether one more unit of the feature is allowed for the owner
// @Tags entitlements
// @Produce json
// @Param key path string true "Feature key"
// @Success 200 {object} service.LimitCheckResult
// @Failure 400 {object} errors.ErrorResponse
// @Router /entitlements/{key}/limit [get]
func (h *EntitlementHandler) CheckLimit(c *gin.Context) {
	ownerID, err := actingOwner(c)
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.service.EnforceLimit(c.Request.Context(), ownerID, types.FeatureKey(c.Param("key")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// @Summary Create an entitlement
// @Description Operator endpoint adding a (plan tier, feature) entitlement row
// @Tags entitlements
// @Accept json
// @Produce json
// @Param request body CreateEntitlementRequest true "Entitlement"
// @Success 201 {object} entitlement.FeatureEntitlement
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/entitlements [post]
func (h *EntitlementHandler) Create(c *gin.Context) {
	var req CreateEntitlementRequest
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

	created, err := h.service.CreateEntitlement(c.Request.Context(), &entitlement.FeatureEntitlement{
		PlanTier:    types.ResolvedPlan(req.PlanTier),
		FeatureKey:  types.FeatureKey(req.FeatureKey),
		LimitValue:  req.LimitValue,
		IsEnabled:   req.IsEnabled,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// @Summary Update an entitlement
// @Description Operator partial update; setting unlimited clears the limit
// @Tags entitlements
// @Accept json
// @Produce json
// @Param id path string true "Entitlement ID"
// @Param request body UpdateEntitlementRequest true "Changes"
// @Success 200 {object} entitlement.FeatureEntitlement
// @Failure 404 {object} errors.ErrorResponse
// @Router /admin/entitlements/{id} [put]
func (h *EntitlementHandler) Update(c *gin.Context) {
	var req UpdateEntitlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, ierr.WithError(err).
			WithHint("Invalid request payload").
			Mark(ierr.ErrValidation))
		return
	}

	params := entitlement.UpdateParams{
		IsEnabled:   req.IsEnabled,
		Description: req.Description,
	}
	if req.Unlimited != nil && *req.Unlimited {
		params.LimitValue = types.NullValue[int64]()
	} else if req.LimitValue != nil {
		params.LimitValue = types.NewNullable(*req.LimitValue)
	}

	updated, err := h.service.UpdateEntitlement(c.Request.Context(), c.Param("id"), params)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// @Summary List all entitlements
// @Description Operator view of the full entitlement matrix
// @Tags entitlements
// @Produce json
// @Success 200 {array} entitlement.FeatureEntitlement
// @Router /admin/entitlements [get]
func (h *EntitlementHandler) List(c *gin.Context) {
	entitlements, err := h.service.ListEntitlements(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entitlements)
}
