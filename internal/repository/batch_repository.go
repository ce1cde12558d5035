package repository

import (
	"context"

	"payroll-backend/internal/models"

	"gorm.io/gorm"
)

// BatchRepository defines the interface for Batch data access
type BatchRepository interface {
	Create(ctx context.Context, batch *models.Batch) error
	GetByID(ctx context.Context, batchID string) (*models.Batch, error)
	GetByRoot(ctx context.Context, root string) (*models.Batch, error)
	List(ctx context.Context, page, pageSize int) ([]*models.Batch, int64, error)
}

type batchRepository struct {
	db *gorm.DB
}

// NewBatchRepository creates a new BatchRepository instance
func NewBatchRepository(db *gorm.DB) BatchRepository {
	return &batchRepository{db: db}
}

func (r *batchRepository) Create(ctx context.Context, batch *models.Batch) error {
	return translate(r.db.WithContext(ctx).Create(batch).Error)
}

func (r *batchRepository) GetByID(ctx context.Context, batchID string) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.WithContext(ctx).Where("batch_id = ?", batchID).First(&batch).Error; err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

func (r *batchRepository) GetByRoot(ctx context.Context, root string) (*models.Batch, error) {
	var batch models.Batch
	if err := r.db.WithContext(ctx).Where("root = ?", root).First(&batch).Error; err != nil {
		return nil, translate(err)
	}
	return &batch, nil
}

// List retrieves paginated batches, newest first
func (r *batchRepository) List(ctx context.Context, page, pageSize int) ([]*models.Batch, int64, error) {
	var batches []*models.Batch
	var total int64

	if err := r.db.WithContext(ctx).Model(&models.Batch{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := r.db.WithContext(ctx).
		Offset(offset).
		Limit(pageSize).
		Order("cumulative_leaf_count DESC").
		Find(&batches).Error

	return batches, total, err
}
