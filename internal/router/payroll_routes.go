package router

import (
	"payroll-backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupPayrollRoutes registers the /api routes.
func SetupPayrollRoutes(r *gin.Engine, deps Dependencies, localhostOnly *middleware.LocalhostOnly, adminAuth *middleware.AdminAuthMiddleware) {
	api := r.Group("/api")

	// ============ Recipient ============
	api.POST("/claims", deps.Claims.InitiateClaim)
	api.GET("/claims/:id", deps.Claims.GetClaimStatus)
	if deps.WebSocket != nil {
		api.GET("/claims/:id/ws", deps.WebSocket.ClaimStatusStream)
	}
	api.GET("/roots/:root", deps.Batches.GetRoot)

	// ============ Admin (IP whitelist + JWT) ============
	admin := api.Group("/admin", localhostOnly.Restrict())
	admin.POST("/login", deps.AdminAuth.AdminLoginHandler)

	batches := admin.Group("/batches", adminAuth.RequireAdminAuth())
	batches.POST("", deps.Batches.CreateBatch)
	batches.GET("", deps.Batches.ListBatches)
	batches.GET("/:id", deps.Batches.GetBatch)

	if deps.AdminClaims != nil {
		claims := admin.Group("/claims", adminAuth.RequireAdminAuth())
		claims.GET("/pending", deps.AdminClaims.ListPending)
		claims.POST("/:id/reconcile", deps.AdminClaims.Reconcile)
	}
}
