package repository

import (
	"context"

	"github.com/yukikurage/family-task-sync/internal/models"
	"gorm.io/gorm"
)

// GormOutboxRepository is a GORM implementation of OutboxRepository
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &GormOutboxRepository{db: db}
}

// Append stores op with the next sequence number inside a transaction
func (r *GormOutboxRepository) Append(ctx context.Context, op *models.PendingOperation) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int64
		if err := tx.Model(&models.PendingOperation{}).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&maxSeq).Error; err != nil {
			return err
		}
		op.Seq = maxSeq + 1
		return tx.Create(op).Error
	})
}

// ListByStatus lists operations with the given status in sequence order
func (r *GormOutboxRepository) ListByStatus(ctx context.Context, status models.OperationStatus) ([]models.PendingOperation, error) {
	var ops []models.PendingOperation
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("seq ASC").
		Find(&ops).Error; err != nil {
		return nil, err
	}
	return ops, nil
}

// FindByID finds an operation by ID
func (r *GormOutboxRepository) FindByID(ctx context.Context, id string) (*models.PendingOperation, error) {
	var op models.PendingOperation
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

// Update saves retry bookkeeping for an operation
func (r *GormOutboxRepository) Update(ctx context.Context, op *models.PendingOperation) error {
	return r.db.WithContext(ctx).Model(&models.PendingOperation{}).
		Where("id = ?", op.ID).
		Updates(map[string]interface{}{
			"retry":      op.Retry,
			"last_error": op.LastError,
			"status":     op.Status,
		}).Error
}

// Delete removes an operation
func (r *GormOutboxRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.PendingOperation{}).Error
}

// CountByStatus counts operations with the given status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context, status models.OperationStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PendingOperation{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// CountForDocument counts operations of any status that target a document
func (r *GormOutboxRepository) CountForDocument(ctx context.Context, collection, documentID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PendingOperation{}).
		Where("collection = ? AND document_id = ?", collection, documentID).
		Count(&count).Error
	return count, err
}
