package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pathxpert/server/internal/models"
	"github.com/pathxpert/server/internal/services"
	appErrors "github.com/pathxpert/server/pkg/errors"
	"github.com/pathxpert/server/pkg/response"
)

// TrafficHandler exposes density lookups and admin signal management.
type TrafficHandler struct {
	traffic *services.TrafficService
}

// NewTrafficHandler wires the traffic endpoints to the service.
func NewTrafficHandler(traffic *services.TrafficService) *TrafficHandler {
	return &TrafficHandler{traffic: traffic}
}

type nearbyRequest struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Nearby grades signal density around a point supplied in the request body.
func (h *TrafficHandler) Nearby(c *gin.Context) {
	var req nearbyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	density, err := h.traffic.Nearby(c.Request.Context(), req.Latitude, req.Longitude)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, density)
}

// NearbyQuery is the GET variant taking lat/lon query parameters.
func (h *TrafficHandler) NearbyQuery(c *gin.Context) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(c.Query("lat")), 64)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("lat query parameter is required"))
		return
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(c.Query("lon")), 64)
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("lon query parameter is required"))
		return
	}

	density, err := h.traffic.Nearby(c.Request.Context(), lat, lon)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, density)
}

type signalRequest struct {
	SignalName   string  `json:"signal_name" validate:"required,max=120"`
	TrafficLevel string  `json:"traffic_level" validate:"required"`
	Status       string  `json:"status" validate:"required"`
	Latitude     float64 `json:"latitude" validate:"latitude"`
	Longitude    float64 `json:"longitude" validate:"longitude"`
}

func (r signalRequest) toInput() services.SignalInput {
	return services.SignalInput{
		SignalName:   r.SignalName,
		TrafficLevel: models.TrafficLevel(strings.ToLower(r.TrafficLevel)),
		Status:       models.SignalStatus(strings.ToLower(r.Status)),
		Latitude:     r.Latitude,
		Longitude:    r.Longitude,
	}
}

// ListSignals returns the signal inventory. Admin only.
func (h *TrafficHandler) ListSignals(c *gin.Context) {
	signals, err := h.traffic.ListSignals(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, signals)
}

// CreateSignal registers a new signal. Admin only.
func (h *TrafficHandler) CreateSignal(c *gin.Context) {
	var req signalRequest
	if !bindAndValidate(c, &req) {
		return
	}

	signal, err := h.traffic.CreateSignal(c.Request.Context(), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, signal)
}

// UpdateSignal replaces a signal's attributes. Admin only.
func (h *TrafficHandler) UpdateSignal(c *gin.Context) {
	var req signalRequest
	if !bindAndValidate(c, &req) {
		return
	}

	signal, err := h.traffic.UpdateSignal(c.Request.Context(), c.Param("id"), req.toInput())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, signal)
}

// DeleteSignal removes a signal. Admin only.
func (h *TrafficHandler) DeleteSignal(c *gin.Context) {
	if err := h.traffic.DeleteSignal(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "Traffic signal deleted"})
}
