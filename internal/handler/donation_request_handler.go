package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/farhanpavel/cognit-api/internal/dto"
	"github.com/farhanpavel/cognit-api/internal/models"
	"github.com/farhanpavel/cognit-api/internal/service"
	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
	"github.com/farhanpavel/cognit-api/pkg/geo"
	"github.com/farhanpavel/cognit-api/pkg/response"
)

type lifecycleService interface {
	CreateRequest(ctx context.Context, actor models.Actor, req dto.CreateDonationRequest) (*dto.DonationRequestView, error)
	GetRequest(ctx context.Context, id string) (*dto.DonationRequestView, error)
	ListRequests(ctx context.Context, query dto.DonationRequestQuery) ([]dto.DonationRequestView, *models.Pagination, error)
	ListResponses(ctx context.Context, actor models.Actor, requestID string) ([]dto.DonorResponseView, error)
	Accept(ctx context.Context, actor models.Actor, requestID string, req dto.AcceptDonationRequest) (*dto.DonorResponseView, error)
	DonorReached(ctx context.Context, actor models.Actor, recordID string) (*dto.DonorResponseView, error)
	Confirm(ctx context.Context, actor models.Actor, recordID string, req dto.ConfirmDonationRequest) (*dto.ConfirmDonationResult, error)
	ConfirmDonor(ctx context.Context, actor models.Actor, requestID, donorID string, req dto.ConfirmDonationRequest) (*dto.ConfirmDonationResult, error)
	Dismiss(ctx context.Context, actor models.Actor, recordID string) (*dto.DonorResponseView, error)
	ExtendSession(ctx context.Context, actor models.Actor, requestID string, req dto.ExtendSessionRequest) (*dto.DonationRequestView, error)
	CloseSession(ctx context.Context, actor models.Actor, requestID string) (*dto.DonationRequestView, error)
}

type auditExporter interface {
	ExportAudit(ctx context.Context, actor models.Actor, requestID, format string) (*service.ExportResult, error)
}

// DonationRequestHandler exposes the request side of the donation lifecycle.
type DonationRequestHandler struct {
	service lifecycleService
	export  auditExporter
}

// NewDonationRequestHandler constructs the handler.
func NewDonationRequestHandler(service lifecycleService, export auditExporter) *DonationRequestHandler {
	return &DonationRequestHandler{service: service, export: export}
}

// Create godoc
// @Summary Create a blood donation request
// @Tags BloodRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreateDonationRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /blood-requests [post]
func (h *DonationRequestHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid donation request payload"))
		return
	}
	view, err := h.service.CreateRequest(c.Request.Context(), claims.Actor(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, view, nil)
}

// List godoc
// @Summary List blood donation requests
// @Tags BloodRequests
// @Produce json
// @Param mine query bool false "Only the caller's requests"
// @Param bloodGroup query string false "Blood group"
// @Param state query string false "Comma separated states"
// @Param lat query number false "Latitude for a nearby search"
// @Param lng query number false "Longitude for a nearby search"
// @Param radiusKm query number false "Search radius in km"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /blood-requests [get]
func (h *DonationRequestHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	query := dto.DonationRequestQuery{
		BloodGroupName: strings.TrimSpace(c.Query("bloodGroup")),
		Limit:          parseIntDefault(c.Query("limit"), 0),
		Offset:         parseIntDefault(c.Query("offset"), 0),
	}
	if mine, _ := strconv.ParseBool(c.Query("mine")); mine {
		query.PatientUserID = claims.UserID
	}
	if raw := c.Query("state"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if s := strings.ToUpper(strings.TrimSpace(part)); s != "" {
				query.States = append(query.States, models.RequestState(s))
			}
		}
	}
	if c.Query("lat") != "" || c.Query("lng") != "" {
		lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
		lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
		if latErr != nil || lngErr != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "lat and lng must both be numbers"))
			return
		}
		query.Near = &geo.Coordinate{Latitude: lat, Longitude: lng}
		if raw := c.Query("radiusKm"); raw != "" {
			radius, err := strconv.ParseFloat(raw, 64)
			if err != nil || radius <= 0 {
				response.Error(c, appErrors.Clone(appErrors.ErrValidation, "radiusKm must be a positive number"))
				return
			}
			query.RadiusKm = radius
		}
	}

	items, pagination, err := h.service.ListRequests(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a blood donation request
// @Tags BloodRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /blood-requests/{id} [get]
func (h *DonationRequestHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle service not configured"))
		return
	}
	view, err := h.service.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Extend godoc
// @Summary Extend the response session of a request
// @Tags BloodRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ExtendSessionRequest true "New session end"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /blood-requests/{id}/extend [post]
func (h *DonationRequestHandler) Extend(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ExtendSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid session extension payload"))
		return
	}
	view, err := h.service.ExtendSession(c.Request.Context(), claims.Actor(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Close godoc
// @Summary Close a request
// @Tags BloodRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /blood-requests/{id}/close [post]
func (h *DonationRequestHandler) Close(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view, err := h.service.CloseSession(c.Request.Context(), claims.Actor(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Accept godoc
// @Summary Accept a request as a donor
// @Tags BloodRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.AcceptDonationRequest true "Bags the donor can give"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /blood-requests/{id}/accept [post]
func (h *DonationRequestHandler) Accept(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.AcceptDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid acceptance payload"))
		return
	}
	view, err := h.service.Accept(c.Request.Context(), claims.Actor(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, view)
}

// Responses godoc
// @Summary List donor responses of a request
// @Tags BloodRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /blood-requests/{id}/responses [get]
func (h *DonationRequestHandler) Responses(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "lifecycle service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, err := h.service.ListResponses(c.Request.Context(), claims.Actor(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, &models.Pagination{Count: len(items)})
}

// ConfirmDonor godoc
// @Summary Confirm or reject a donor's donation
// @Tags BloodRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param donorId path string true "Donor user ID"
// @Param payload body dto.ConfirmDonationRequest true "Verdict"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /blood-requests/{id}/donors/{donorId}/confirm [post]
func (h *DonationRequestHandler) ConfirmDonor(c *gin.Context) {
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
	result, err := h.service.ConfirmDonor(c.Request.Context(), claims.Actor(), c.Param("id"), c.Param("donorId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, result)
}

// Audit godoc
// @Summary Download the audit trail of a request
// @Tags BloodRequests
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Request ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /blood-requests/{id}/audit [get]
func (h *DonationRequestHandler) Audit(c *gin.Context) {
	if h.export == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "audit export not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.export.ExportAudit(c.Request.Context(), claims.Actor(), c.Param("id"), c.DefaultQuery("format", service.ExportFormatCSV))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Body)
}
