package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/farhanpavel/cognit-api/internal/models"
	appErrors "github.com/farhanpavel/cognit-api/pkg/errors"
	"github.com/farhanpavel/cognit-api/pkg/response"
)

// RBAC enforces role-based access control for routes. Ownership of a
// request is checked by the lifecycle service, not here.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		allowedRoles[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := claimsValue.(*models.JWTClaims)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" cannot perform this action"))
		c.Abort()
	}
}

// RequireRoles is an alias of RBAC kept for route readability.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	return RBAC(roles...)
}
