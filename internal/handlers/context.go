package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/pathxpert/server/internal/middleware"
	"github.com/pathxpert/server/internal/models"
	appErrors "github.com/pathxpert/server/pkg/errors"
	"github.com/pathxpert/server/pkg/response"
)

// requireUser pulls the authenticated user off the context. Routes using it
// must sit behind the auth middleware; a missing user means the route was
// wired wrong, and the client just sees a 401.
func requireUser(c *gin.Context) (*models.User, bool) {
	user := middleware.CurrentUser(c)
	if user == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return user, true
}
