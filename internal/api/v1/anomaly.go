package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/splitfair/splitfair/internal/domain/anomaly"
	ierr "github.com/splitfair/splitfair/internal/errors"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/types"
	"github.com/splitfair/splitfair/internal/validator"
)

// AnomalyHandler serves the operator view of reconciliation anomalies
type AnomalyHandler struct {
	repo anomaly.Repository
	log  *logger.Logger
}

func NewAnomalyHandler(repo anomaly.Repository, log *logger.Logger) *AnomalyHandler {
	return &AnomalyHandler{repo: repo, log: log}
}

// @Summary List open anomalies
// @Description Returns unresolved reconciliation anomalies, newest first
// @Tags anomalies
// @Produce json
// @Success 200 {array} anomaly.Anomaly
// @Router /admin/anomalies [get]
func (h *AnomalyHandler) ListOpen(c *gin.Context) {
	anomalies, err := h.repo.ListOpen(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, anomalies)
}

// @Summary Resolve an anomaly
// @Description Marks an anomaly as handled with a resolution note
// @Tags anomalies
// @Accept json
// @Produce json
// @Param id path string true "Anomaly ID"
// @Param request body ResolveAnomalyRequest true "Resolution"
// @Success 200 {object} anomaly.Anomaly
// @Failure 404 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /admin/anomalies/{id}/resolve [post]
func (h *AnomalyHandler) Resolve(c *gin.Context) {
	var req ResolveAnomalyRequest
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

	resolved, err := h.repo.MarkResolved(c.Request.Context(), c.Param("id"),
		types.GetUserID(c.Request.Context()), req.Resolution, time.Now().UTC())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}
