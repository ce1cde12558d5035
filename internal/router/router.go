package router

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"payroll-backend/internal/config"
	"payroll-backend/internal/handlers"
	"payroll-backend/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Dependencies are the handlers and settings the router wires together.
type Dependencies struct {
	Batches     *handlers.BatchHandler
	Claims      *handlers.ClaimHandler
	AdminClaims *handlers.AdminClaimsHandler
	WebSocket   *handlers.WebSocketHandler
	AdminAuth   *handlers.AdminAuthHandler

	// DBPing backs /health; nil skips the database check.
	DBPing func(ctx context.Context) error

	CORS       config.CORSConfig
	AllowedIPs []string
	JWTSecret  string
}

// corsMiddleware CORS middleware. An empty origin list allows every origin.
func corsMiddleware(cfg config.CORSConfig) gin.HandlerFunc {
	allowAll := len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*")
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimSpace(o)] = true
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			if cfg.AllowCredentials {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		case origin != "":
			logrus.WithFields(logrus.Fields{
				"request_origin": origin,
				"path":           c.Request.URL.Path,
				"method":         c.Request.Method,
			}).Warn("🚫 CORS: Request blocked - Origin not in whitelist")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept")
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware(deps.CORS))

	logger := logrus.StandardLogger()
	if len(deps.AllowedIPs) > 0 {
		logger.WithField("count", len(deps.AllowedIPs)).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, deps.AllowedIPs)
	adminAuth := middleware.NewAdminAuthMiddleware(logger, deps.JWTSecret)

	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", handlers.HealthHandler(deps.DBPing))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	SetupPayrollRoutes(r, deps, localhostOnly, adminAuth)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"code":    "NOT_FOUND",
			"error":   "endpoint not found",
		})
	})
	return r
}
