package handlers

import (
	"net/http"

	"payroll-backend/internal/models"
	"payroll-backend/internal/services"
	"payroll-backend/internal/types"

	"github.com/gin-gonic/gin"
)

// ClaimHandler serves the recipient facing claim endpoints.
type ClaimHandler struct {
	claims *services.ClaimService
}

func NewClaimHandler(claims *services.ClaimService) *ClaimHandler {
	return &ClaimHandler{claims: claims}
}

type ClaimResponse struct {
	ClaimID string             `json:"claim_id"`
	Status  models.ClaimStatus `json:"status"`
}

// InitiateClaim handles POST /api/claims. It answers 202 once the payout is with
// the relayer; settlement is reported through GET /api/claims/:id.
func (h *ClaimHandler) InitiateClaim(c *gin.Context) {
	var req types.InitiateClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "claim_token and recipient are required")
		return
	}

	claim, err := h.claims.InitiateClaim(c.Request.Context(), req.ClaimToken, req.Recipient)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, ClaimResponse{ClaimID: claim.ClaimID, Status: claim.Status})
}

// GetClaimStatus handles GET /api/claims/:id
func (h *ClaimHandler) GetClaimStatus(c *gin.Context) {
	view, err := h.claims.GetClaimStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ClaimResponse{ClaimID: view.ClaimID, Status: view.Status})
}
