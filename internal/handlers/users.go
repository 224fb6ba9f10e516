package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pathxpert/server/internal/services"
	appErrors "github.com/pathxpert/server/pkg/errors"
	"github.com/pathxpert/server/pkg/response"
)

// UserHandler exposes profile, settings, history and the admin user listing.
type UserHandler struct {
	users   *services.UserService
	reports *services.ReportService
}

// NewUserHandler wires the user endpoints to their services.
func NewUserHandler(users *services.UserService, reports *services.ReportService) *UserHandler {
	return &UserHandler{users: users, reports: reports}
}

// Profile returns the authenticated user's profile.
func (h *UserHandler) Profile(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, user)
}

type updateProfileRequest struct {
	Username         *string `json:"username" validate:"omitempty,min=3,max=40"`
	DisplayName      *string `json:"display_name" validate:"omitempty,max=100"`
	Avatar           *string `json:"avatar" validate:"omitempty,max=500"`
	Mobile           *string `json:"mobile" validate:"omitempty,max=20"`
	EmergencyContact *string `json:"emergency_contact" validate:"omitempty,max=100"`
}

// UpdateProfile applies profile mutations for the authenticated user.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if !bindAndValidate(c, &req) {
		return
	}

	updated, err := h.users.UpdateProfile(c.Request.Context(), user.ID, services.UpdateProfileInput{
		Username:         req.Username,
		DisplayName:      req.DisplayName,
		Avatar:           req.Avatar,
		Mobile:           req.Mobile,
		EmergencyContact: req.EmergencyContact,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, updated)
}

// Settings returns the stored settings document.
func (h *UserHandler) Settings(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	settings := json.RawMessage(user.Settings)
	if len(settings) == 0 {
		settings = json.RawMessage("{}")
	}
	response.Success(c, http.StatusOK, gin.H{"settings": settings})
}

// UpdateSettings replaces the stored settings document.
func (h *UserHandler) UpdateSettings(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var raw json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return
	}

	updated, err := h.users.UpdateSettings(c.Request.Context(), user.ID, raw)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"settings": json.RawMessage(updated.Settings)})
}

// FavRoutes returns the user's saved favourite routes.
func (h *UserHandler) FavRoutes(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	routes := json.RawMessage(user.FavRoutes)
	if len(routes) == 0 {
		routes = json.RawMessage("[]")
	}
	response.Success(c, http.StatusOK, gin.H{"fav_routes": routes})
}

// UpdateFavRoutes replaces the user's saved favourite routes.
func (h *UserHandler) UpdateFavRoutes(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	var raw json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return
	}

	updated, err := h.users.UpdateFavRoutes(c.Request.Context(), user.ID, raw)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"fav_routes": json.RawMessage(updated.FavRoutes)})
}

// History returns the user's own report history.
func (h *UserHandler) History(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	history, err := h.reports.History(c.Request.Context(), user.ID, parseIntQuery(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, history)
}

// Stats returns the user's report statistics.
func (h *UserHandler) Stats(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	stats, err := h.reports.Stats(c.Request.Context(), user.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, stats)
}

// List returns a page of users. Admin only; enforced by route middleware.
func (h *UserHandler) List(c *gin.Context) {
	users, total, err := h.users.List(c.Request.Context(), services.ListUsersOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "limit", 20),
		Query:    c.Query("q"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, users, &response.Meta{
		Page:    parseIntQuery(c, "page", 1),
		PerPage: parseIntQuery(c, "limit", 20),
		Total:   total,
	})
}
