package repository

import (
	"context"
	"time"

	"payroll-backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimRepository defines the interface for Claim data access.
// Every transition out of submitted is conditional on the row still being
// submitted under the same claim id; a lost race surfaces as ErrNotPending.
type ClaimRepository interface {
	// Upsert inserts a submitted claim, replacing the row for the same nullifier
	// hash only if that row has failed. Any other existing row yields ErrConflict.
	Upsert(ctx context.Context, claim *models.Claim) error
	GetByID(ctx context.Context, claimID string) (*models.Claim, error)
	GetByNullifierHash(ctx context.Context, nullifierHash string) (*models.Claim, error)
	// ListByStatus returns up to limit claims ordered by (created_at, claim_id),
	// starting after the cursor. The zero cursor starts at the beginning.
	ListByStatus(ctx context.Context, status models.ClaimStatus, after ClaimCursor, limit int) ([]*models.Claim, error)

	SetReserved(ctx context.Context, claimID, reserveTxHash string) error
	SetRelayerSubmitted(ctx context.Context, claimID string, at time.Time) error
	IncrementRecoveryAttempts(ctx context.Context, claimID string) error
	MarkConfirmed(ctx context.Context, claimID string, outcome models.ClaimOutcome) error
	MarkFailed(ctx context.Context, claimID string, outcome models.ClaimOutcome) error
}

// ClaimCursor is the position of the last claim of a page.
type ClaimCursor struct {
	CreatedAt time.Time
	ClaimID   string
}

// CursorOf returns the cursor just past c.
func CursorOf(c *models.Claim) ClaimCursor {
	return ClaimCursor{CreatedAt: c.CreatedAt, ClaimID: c.ClaimID}
}

func (c ClaimCursor) precedes(claim *models.Claim) bool {
	if c.CreatedAt.IsZero() && c.ClaimID == "" {
		return true
	}
	if !claim.CreatedAt.Equal(c.CreatedAt) {
		return claim.CreatedAt.After(c.CreatedAt)
	}
	return claim.ClaimID > c.ClaimID
}

type claimRepository struct {
	db *gorm.DB
}

// NewClaimRepository creates a new ClaimRepository instance
func NewClaimRepository(db *gorm.DB) ClaimRepository {
	return &claimRepository{db: db}
}

func (r *claimRepository) Upsert(ctx context.Context, claim *models.Claim) error {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "nullifier_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"claim_id", "note_id", "request_hash", "authorization_id", "recipient", "relayer",
			"fee", "payout_amount", "status", "reserve_tx_hash", "relayer_submitted_at",
			"relayer_tx_hash", "finalize_tx_hash", "cancel_tx_hash", "error",
			"recovery_attempts", "created_at", "updated_at",
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Eq{Column: clause.Column{Table: "claims", Name: "status"}, Value: models.ClaimStatusFailed},
		}},
	}).Create(claim)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *claimRepository) GetByID(ctx context.Context, claimID string) (*models.Claim, error) {
	var claim models.Claim
	if err := r.db.WithContext(ctx).Where("claim_id = ?", claimID).First(&claim).Error; err != nil {
		return nil, translate(err)
	}
	return &claim, nil
}

func (r *claimRepository) GetByNullifierHash(ctx context.Context, nullifierHash string) (*models.Claim, error) {
	var claim models.Claim
	if err := r.db.WithContext(ctx).Where("nullifier_hash = ?", nullifierHash).First(&claim).Error; err != nil {
		return nil, translate(err)
	}
	return &claim, nil
}

func (r *claimRepository) ListByStatus(ctx context.Context, status models.ClaimStatus, after ClaimCursor, limit int) ([]*models.Claim, error) {
	var claims []*models.Claim
	q := r.db.WithContext(ctx).Where("status = ?", status)
	if !after.CreatedAt.IsZero() || after.ClaimID != "" {
		q = q.Where("(created_at, claim_id) > (?, ?)", after.CreatedAt, after.ClaimID)
	}
	q = q.Order("created_at ASC").Order("claim_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&claims).Error; err != nil {
		return nil, translate(err)
	}
	return claims, nil
}

func (r *claimRepository) updatePending(ctx context.Context, claimID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := r.db.WithContext(ctx).
		Model(&models.Claim{}).
		Where("claim_id = ? AND status = ?", claimID, models.ClaimStatusSubmitted).
		Updates(updates)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}

func (r *claimRepository) SetReserved(ctx context.Context, claimID, reserveTxHash string) error {
	return r.updatePending(ctx, claimID, map[string]interface{}{"reserve_tx_hash": reserveTxHash})
}

func (r *claimRepository) SetRelayerSubmitted(ctx context.Context, claimID string, at time.Time) error {
	return r.updatePending(ctx, claimID, map[string]interface{}{"relayer_submitted_at": at})
}

func (r *claimRepository) IncrementRecoveryAttempts(ctx context.Context, claimID string) error {
	return r.updatePending(ctx, claimID, map[string]interface{}{
		"recovery_attempts": gorm.Expr("recovery_attempts + 1"),
	})
}

func (r *claimRepository) MarkConfirmed(ctx context.Context, claimID string, outcome models.ClaimOutcome) error {
	return r.updatePending(ctx, claimID, map[string]interface{}{
		"status":           models.ClaimStatusConfirmed,
		"relayer_tx_hash":  outcome.RelayerTxHash,
		"finalize_tx_hash": outcome.FinalizeTxHash,
	})
}

func (r *claimRepository) MarkFailed(ctx context.Context, claimID string, outcome models.ClaimOutcome) error {
	return r.updatePending(ctx, claimID, map[string]interface{}{
		"status":          models.ClaimStatusFailed,
		"relayer_tx_hash": outcome.RelayerTxHash,
		"cancel_tx_hash":  outcome.CancelTxHash,
		"error":           outcome.Error,
	})
}
