package handlers

import (
	"net/http"
	"strconv"

	"payroll-backend/internal/models"
	"payroll-backend/internal/services"
	"payroll-backend/internal/types"

	"github.com/gin-gonic/gin"
)

// BatchHandler serves batch ingestion (admin) and root lookup (public).
type BatchHandler struct {
	batches *services.BatchService
}

func NewBatchHandler(batches *services.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// IssuedNoteResponse is returned once per note at creation. The claim token is not
// stored and cannot be retrieved again.
type IssuedNoteResponse struct {
	NoteID     string `json:"note_id"`
	Recipient  string `json:"recipient"`
	Amount     string `json:"amount"`
	LeafIndex  int64  `json:"leaf_index"`
	ClaimToken string `json:"claim_token"`
}

type CreateBatchResponse struct {
	Success bool                 `json:"success"`
	Batch   *models.Batch        `json:"batch"`
	Notes   []IssuedNoteResponse `json:"notes"`
}

// CreateBatch handles POST /api/admin/batches
func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var req types.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request body")
		return
	}

	in := services.CreateBatchInput{
		Employer:   req.Employer,
		FundingRef: req.FundingRef,
		Payments:   make([]services.PaymentInput, len(req.Payments)),
	}
	for i, p := range req.Payments {
		in.Payments[i] = services.PaymentInput{Recipient: p.Recipient, Amount: p.Amount}
	}

	res, err := h.batches.CreateBatch(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}

	notes := make([]IssuedNoteResponse, len(res.Notes))
	for i, n := range res.Notes {
		notes[i] = IssuedNoteResponse{
			NoteID:     n.Note.ID,
			Recipient:  n.Note.Recipient,
			Amount:     n.Note.Amount,
			LeafIndex:  n.Note.LeafIndex,
			ClaimToken: n.ClaimToken,
		}
	}
	c.JSON(http.StatusCreated, CreateBatchResponse{Success: true, Batch: res.Batch, Notes: notes})
}

// ListBatches handles GET /api/admin/batches?page=&size=
func (h *BatchHandler) ListBatches(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	batches, total, err := h.batches.ListBatches(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    batches,
		"total":   total,
		"page":    page,
	})
}

// GetBatch handles GET /api/admin/batches/:id
func (h *BatchHandler) GetBatch(c *gin.Context) {
	batch, err := h.batches.GetBatch(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	notes, err := h.batches.ListNotes(c.Request.Context(), batch.BatchID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"batch":   batch,
		"notes":   notes,
	})
}

// RootResponse is the public view of a registered root.
type RootResponse struct {
	Root       string `json:"root"`
	BatchID    string `json:"batch_id"`
	NoteCount  int    `json:"note_count"`
	LeafCount  int64  `json:"leaf_count"`
	RegisterTx string `json:"register_tx"`
}

// GetRoot handles GET /api/roots/:root
func (h *BatchHandler) GetRoot(c *gin.Context) {
	batch, err := h.batches.GetBatchByRoot(c.Request.Context(), c.Param("root"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, RootResponse{
		Root:       batch.Root,
		BatchID:    batch.BatchID,
		NoteCount:  batch.NoteCount,
		LeafCount:  batch.CumulativeLeafCount,
		RegisterTx: batch.RegisterTx,
	})
}
