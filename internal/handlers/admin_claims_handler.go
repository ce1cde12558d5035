package handlers

import (
	"net/http"

	"payroll-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AdminClaimsHandler lets operators inspect and retry claims stuck in submitted.
type AdminClaimsHandler struct {
	claims *services.ClaimService
}

func NewAdminClaimsHandler(claims *services.ClaimService) *AdminClaimsHandler {
	return &AdminClaimsHandler{claims: claims}
}

// ListPending handles GET /api/admin/claims/pending
func (h *AdminClaimsHandler) ListPending(c *gin.Context) {
	pending, err := h.claims.PendingClaims(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	inflight := make([]string, 0)
	for _, cl := range pending {
		if h.claims.InFlight(cl.ClaimID) {
			inflight = append(inflight, cl.ClaimID)
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"claims":   pending,
		"count":    len(pending),
		"inflight": inflight,
	})
}

// Reconcile handles POST /api/admin/claims/:id/reconcile. It drives the claim
// synchronously and reports the status it ended in.
func (h *AdminClaimsHandler) Reconcile(c *gin.Context) {
	claimID := c.Param("id")
	admin := c.GetString("admin_username")

	if err := h.claims.ReconcileClaim(c.Request.Context(), claimID); err != nil {
		if se, ok := services.AsServiceError(err); ok {
			respondError(c, se)
			return
		}
		// still unresolved; recovery keeps trying
		logrus.WithError(err).WithFields(logrus.Fields{"claim_id": claimID, "admin": admin}).Warn("Manual reconcile left claim unresolved")
	} else {
		logrus.WithFields(logrus.Fields{"claim_id": claimID, "admin": admin}).Info("🔁 Claim reconciled by operator")
	}

	view, err := h.claims.GetClaimStatus(c.Request.Context(), claimID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ClaimResponse{ClaimID: view.ClaimID, Status: view.Status})
}
