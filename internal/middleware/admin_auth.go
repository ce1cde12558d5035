package middleware

import (
	"net/http"
	"strings"

	"payroll-backend/internal/handlers"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminAuthMiddleware guards admin routes with the admin JWT.
type AdminAuthMiddleware struct {
	logger    *logrus.Logger
	jwtSecret []byte
}

func NewAdminAuthMiddleware(logger *logrus.Logger, jwtSecret string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		logger:    logger,
		jwtSecret: []byte(jwtSecret),
	}
}

func (a *AdminAuthMiddleware) reject(c *gin.Context, status int, code, message, reason string) {
	a.logger.WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	}).Warn("Admin auth failed - " + reason)

	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// RequireAdminAuth requires a valid admin Bearer token
func (a *AdminAuthMiddleware) RequireAdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.reject(c, http.StatusUnauthorized, "MISSING_AUTH_HEADER", "Authentication required", "missing Authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.reject(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Invalid authorization format, need Bearer token", "invalid Authorization format")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			a.reject(c, http.StatusUnauthorized, "EMPTY_TOKEN", "Empty token", "empty token")
			return
		}

		claims, err := handlers.ValidateAdminJWTToken(a.jwtSecret, tokenString)
		if err != nil {
			a.reject(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token", "invalid token")
			return
		}
		if claims.Role != "admin" {
			a.reject(c, http.StatusForbidden, "INSUFFICIENT_PERMISSIONS", "Insufficient permissions", "insufficient permissions")
			return
		}

		c.Set("admin_username", claims.Username)
		c.Set("admin_role", claims.Role)
		c.Next()
	}
}
