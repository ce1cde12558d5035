package repository

import (
	"context"
	"time"

	"payroll-backend/internal/models"

	"gorm.io/gorm"
)

// NoteRepository defines the interface for Note data access
type NoteRepository interface {
	CreateMany(ctx context.Context, notes []*models.Note) error
	GetByID(ctx context.Context, id string) (*models.Note, error)
	GetByClaimTokenID(ctx context.Context, claimTokenID string) (*models.Note, error)
	GetByNullifierHash(ctx context.Context, nullifierHash string) (*models.Note, error)
	ListByBatch(ctx context.Context, batchID string) ([]*models.Note, error)

	// Commitments returns every leaf of the tree ordered by leaf index.
	Commitments(ctx context.Context) ([]string, error)

	// MarkSpent flips spent exactly once. ErrNotPending if the note was already spent.
	MarkSpent(ctx context.Context, id string, at time.Time) error
}

type noteRepository struct {
	db *gorm.DB
}

// NewNoteRepository creates a new NoteRepository instance
func NewNoteRepository(db *gorm.DB) NoteRepository {
	return &noteRepository{db: db}
}

func (r *noteRepository) CreateMany(ctx context.Context, notes []*models.Note) error {
	if len(notes) == 0 {
		return nil
	}
	return translate(r.db.WithContext(ctx).CreateInBatches(notes, 500).Error)
}

func (r *noteRepository) getBy(ctx context.Context, column, value string) (*models.Note, error) {
	var note models.Note
	if err := r.db.WithContext(ctx).Where(column+" = ?", value).First(&note).Error; err != nil {
		return nil, translate(err)
	}
	return &note, nil
}

func (r *noteRepository) GetByID(ctx context.Context, id string) (*models.Note, error) {
	return r.getBy(ctx, "id", id)
}

func (r *noteRepository) GetByClaimTokenID(ctx context.Context, claimTokenID string) (*models.Note, error) {
	return r.getBy(ctx, "claim_token_id", claimTokenID)
}

func (r *noteRepository) GetByNullifierHash(ctx context.Context, nullifierHash string) (*models.Note, error) {
	return r.getBy(ctx, "nullifier_hash", nullifierHash)
}

func (r *noteRepository) ListByBatch(ctx context.Context, batchID string) ([]*models.Note, error) {
	var notes []*models.Note
	err := r.db.WithContext(ctx).
		Where("batch_id = ?", batchID).
		Order("leaf_index ASC").
		Find(&notes).Error
	return notes, err
}

func (r *noteRepository) Commitments(ctx context.Context) ([]string, error) {
	var leaves []string
	err := r.db.WithContext(ctx).
		Model(&models.Note{}).
		Order("leaf_index ASC").
		Pluck("commitment", &leaves).Error
	return leaves, err
}

func (r *noteRepository) MarkSpent(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.Note{}).
		Where("id = ? AND spent = ?", id, false).
		Updates(map[string]interface{}{"spent": true, "spent_at": at})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotPending
	}
	return nil
}
