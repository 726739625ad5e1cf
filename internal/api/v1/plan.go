package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/splitfair/splitfair/internal/domain/plancatalog"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/service"
	"github.com/splitfair/splitfair/internal/types"
	"github.com/splitfair/splitfair/internal/validator"
)

// PlanHandler serves the public plan catalog and the operator endpoints
// that manage it
type PlanHandler struct {
	service service.PlanService
	log     *logger.Logger
}

func NewPlanHandler(s service.PlanService, log *logger.Logger) *PlanHandler {
	return &PlanHandler{service: s, log: log}
}

// @Summary List purchasable plans
// @Description Returns enabled catalog entries ordered for display
// @Tags plans
// @Produce json
// @Success 200 {array} plancatalog.PlanCatalogEntry
// @Router /plans [get]
func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.service.ListEnabledPlans(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

// @Summary Create a catalog entry
// @Description Operator endpoint adding a purchasable plan
// @Tags plans
// @Accept json
// @Produce json
// @Param request body CreatePlanRequest true "Plan"
// @Success 201 {object} plancatalog.PlanCatalogEntry
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/plans [post]
func (h *PlanHandler) Create(c *gin.Context) {
	var req CreatePlanRequest
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

	created, err := h.service.CreatePlan(c.Request.Context(), &plancatalog.PlanCatalogEntry{
		PlanType:     types.PlanType(req.PlanType),
		Price:        req.Price,
		Currency:     req.Currency,
		Interval:     types.BillingInterval(req.Interval),
		TrialDays:    req.TrialDays,
		Enabled:      req.Enabled,
		DisplayOrder: req.DisplayOrder,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// @Summary Provision the remote billing plan
// @Description Operator endpoint ensuring a recurring plan exists at the provider
// @Tags plans
// @Produce json
// @Param plan_type path string true "Plan type"
// @Success 200 {object} map[string]string
// @Failure 400 {object} errors.ErrorResponse
// @Router /admin/plans/{plan_type}/remote [post]
func (h *PlanHandler) EnsureRemote(c *gin.Context) {
	remoteID, err := h.service.EnsureRemotePlan(c.Request.Context(), types.PlanType(c.Param("plan_type")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remote_plan_id": remoteID})
}
