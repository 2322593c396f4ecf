package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-lms-api/internal/service"
	appErrors "github.com/noah-isme/campus-lms-api/pkg/errors"
	"github.com/noah-isme/campus-lms-api/pkg/response"
)

// StatusConfigHandler exposes the enrollment status vocabulary settings.
type StatusConfigHandler struct {
	statuses *service.StatusConfigService
}

// NewStatusConfigHandler constructs StatusConfigHandler.
func NewStatusConfigHandler(statuses *service.StatusConfigService) *StatusConfigHandler {
	return &StatusConfigHandler{statuses: statuses}
}

// Get godoc
// @Summary Read the enrollment status vocabulary
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings/enrollment-statuses [get]
func (h *StatusConfigHandler) Get(c *gin.Context) {
	cfg, err := h.statuses.Load(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}

// Update godoc
// @Summary Replace the enrollment status vocabulary
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body service.UpdateStatusConfigRequest true "Vocabulary payload"
// @Success 200 {object} response.Envelope
// @Router /settings/enrollment-statuses [put]
func (h *StatusConfigHandler) Update(c *gin.Context) {
	var req service.UpdateStatusConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	updatedBy := ""
	if claims := claimsFromContext(c); claims != nil {
		updatedBy = claims.UserID
	}
	cfg, err := h.statuses.Update(c.Request.Context(), req, updatedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cfg, nil)
}
