package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pathxpert/server/internal/models"
	"github.com/pathxpert/server/internal/services"
	"github.com/pathxpert/server/pkg/response"
)

// ReportHandler exposes the incident report CRUD surface.
type ReportHandler struct {
	reports *services.ReportService
}

// NewReportHandler wires the report endpoints to the service.
func NewReportHandler(reports *services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

type createReportRequest struct {
	Type        string   `json:"type" validate:"required"`
	Injured     bool     `json:"injured"`
	Location    string   `json:"location" validate:"omitempty,max=255"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,longitude"`
	Description string   `json:"description" validate:"required,max=2000"`
	Anonymous   bool     `json:"anonymous"`
}

// Create stores a new report for the authenticated user.
func (h *ReportHandler) Create(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req createReportRequest
	if !bindAndValidate(c, &req) {
		return
	}

	report, err := h.reports.Create(c.Request.Context(), user, services.CreateReportInput{
		Type:        models.ReportType(strings.ToLower(req.Type)),
		Injured:     req.Injured,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Description: req.Description,
		Anonymous:   req.Anonymous,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, report)
}

// List returns the caller's reports; admins see everyone's.
func (h *ReportHandler) List(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	opts := services.ListReportsOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "limit", 20),
		Status:   models.ReportStatus(strings.ToLower(c.Query("status"))),
	}

	reports, total, err := h.reports.List(c.Request.Context(), user, opts)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, reports, &response.Meta{
		Page:    opts.Page,
		PerPage: opts.PageSize,
		Total:   total,
	})
}

// Get returns a single report for its owner or an admin.
func (h *ReportHandler) Get(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	report, err := h.reports.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}

type updateReportRequest struct {
	Type        *string  `json:"type"`
	Injured     *bool    `json:"injured"`
	Location    *string  `json:"location" validate:"omitempty,max=255"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,longitude"`
	Description *string  `json:"description" validate:"omitempty,max=2000"`
	Anonymous   *bool    `json:"anonymous"`
}

// Update applies owner edits to a report.
func (h *ReportHandler) Update(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req updateReportRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.UpdateReportInput{
		Injured:     req.Injured,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Description: req.Description,
		Anonymous:   req.Anonymous,
	}
	if req.Type != nil {
		reportType := models.ReportType(strings.ToLower(*req.Type))
		input.Type = &reportType
	}

	report, err := h.reports.Update(c.Request.Context(), user, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// UpdateStatus moves a report through its workflow. Admin only.
func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	report, err := h.reports.UpdateStatus(c.Request.Context(), user, c.Param("id"),
		models.ReportStatus(strings.ToLower(req.Status)))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, report)
}

// Delete removes a report for its owner or an admin.
func (h *ReportHandler) Delete(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.reports.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Report deleted"})
}

// Options lists the accepted report types and statuses.
func (h *ReportHandler) Options(c *gin.Context) {
	response.Success(c, http.StatusOK, h.reports.Options())
}
