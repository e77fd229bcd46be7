package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/farhanpavel/cognit-api/internal/dto"
	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
	"github.com/farhanpavel/cognit-api/pkg/response"
)

// DonorResponseHandler exposes transitions addressed by donor record.
type DonorResponseHandler struct {
	service lifecycleService
}

// NewDonorResponseHandler constructs the handler.
func NewDonorResponseHandler(service lifecycleService) *DonorResponseHandler {
	return &DonorResponseHandler{service: service}
}

// Reached godoc
// @Summary Report arrival at the hospital
// @Tags DonorResponses
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /donor-responses/{id}/reached [post]
func (h *DonorResponseHandler) Reached(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view, err := h.service.DonorReached(c.Request.Context(), claims.Actor(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Confirm godoc
// @Summary Confirm or reject a donation
// @Tags DonorResponses
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.ConfirmDonationRequest true "Verdict"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /donor-responses/{id}/confirm [post]
func (h *DonorResponseHandler) Confirm(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ConfirmDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid confirmation payload"))
		return
	}
	result, err := h.service.Confirm(c.Request.Context(), claims.Actor(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Dismiss godoc
// @Summary Dismiss an accepted donor
// @Tags DonorResponses
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /donor-responses/{id}/dismiss [post]
func (h *DonorResponseHandler) Dismiss(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view, err := h.service.Dismiss(c.Request.Context(), claims.Actor(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}
