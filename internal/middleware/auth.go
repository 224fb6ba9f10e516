package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/pathxpert/server/internal/auth"
	"github.com/pathxpert/server/internal/models"
	"github.com/pathxpert/server/pkg/errors"
	"github.com/pathxpert/server/pkg/response"
)

const (
	CtxUserKey     = "authUser"
	CtxUserIDKey   = "userID"
	CtxAuthModeKey = "authMode"
)

// Auth gates a route behind the dual-mode authenticator. On success the
// resolved user is attached to the request context; failures surface the
// authenticator's own taxonomy (missing token, invalid token, expired token).
func Auth(authn *iauth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		token := strings.TrimSpace(authz[7:])
		user, verification, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.FromError(err))
			c.Abort()
			return
		}

		c.Set(CtxUserKey, user)
		c.Set(CtxUserIDKey, user.ID)
		c.Set(CtxAuthModeKey, string(verification.Mode))

		c.Next()
	}
}

// RequireRole allows only the listed roles past. Must run after Auth.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		for _, role := range roles {
			if user.Role == role {
				c.Next()
				return
			}
		}

		response.Error(c, errors.ErrForbidden)
		c.Abort()
	}
}

// CurrentUser returns the authenticated user attached by Auth, or nil.
func CurrentUser(c *gin.Context) *models.User {
	value, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}
