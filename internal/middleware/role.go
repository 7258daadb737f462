package middleware

import (
	"net/http"
	"slices"

	"funding/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const RoleAdmin = "admin"

// RequireRole lets the request through when the token's role is one of roles.
// It must run after JWTAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		if role == "" {
			response.AbortError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Token carries no role")
			return
		}
		if !slices.Contains(roles, role) {
			response.AbortError(c, http.StatusForbidden, "FORBIDDEN", "Role "+role+" may not access this resource")
			return
		}
		c.Next()
	}
}

// AdminOnly guards operator routes: manual status overrides, refunds and analytics.
func AdminOnly() gin.HandlerFunc {
	return RequireRole(RoleAdmin)
}
