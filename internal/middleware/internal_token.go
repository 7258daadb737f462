package middleware

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// InternalTokenAuth protects internal endpoints using a static bearer token.
// allowedIPs is optional; when set, only those client IPs pass.
func InternalTokenAuth(expected string, allowedIPs []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ipAllowed(c.ClientIP(), allowedIPs) {
			logAuthFailure(c, http.StatusForbidden, "ip_not_allowed")
			writeInternalError(c, http.StatusForbidden, "AUTH_INVALID", "IP not allowed")
			return
		}

		if expected == "" {
			logAuthFailure(c, http.StatusInternalServerError, "token_not_configured")
			writeInternalError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal token is not configured")
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logAuthFailure(c, http.StatusUnauthorized, "missing_auth")
			writeInternalError(c, http.StatusUnauthorized, "AUTH_MISSING", "Authorization header is required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			logAuthFailure(c, http.StatusUnauthorized, "invalid_auth_format")
			writeInternalError(c, http.StatusUnauthorized, "AUTH_INVALID", "Authorization header must be 'Bearer <token>'")
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expected)) != 1 {
			logAuthFailure(c, http.StatusForbidden, "invalid_token")
			writeInternalError(c, http.StatusForbidden, "AUTH_INVALID", "Invalid internal token")
			return
		}

		c.Next()
	}
}

func writeInternalError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ipAllowed(clientIP string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, ip := range allowed {
		if strings.TrimSpace(ip) == clientIP {
			return true
		}
	}
	return false
}

func logAuthFailure(c *gin.Context, status int, reason string) {
	log.Printf("internal_auth status=%d path=%s request_id=%s reason=%s", status, c.Request.URL.Path, requestID(c), reason)
}
