package repository

import (
	"context"
	"time"

	"github.com/yukikurage/family-task-sync/internal/database"
	"github.com/yukikurage/family-task-sync/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormHistoryRepository is a GORM implementation of HistoryRepository
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewHistoryRepository creates a new HistoryRepository
func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &GormHistoryRepository{db: db}
}

// Append stores a history item. Re-appending the same id is a no-op.
func (r *GormHistoryRepository) Append(ctx context.Context, item *models.HistoryItem) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(item).Error
}

// List retrieves history items, newest first, with filtering and pagination
func (r *GormHistoryRepository) List(ctx context.Context, filter HistoryFilter) ([]models.HistoryItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.HistoryItem{})
	if filter.FamilyID != nil {
		query = query.Where("family_id = ?", *filter.FamilyID)
	}
	if filter.ActorID != nil {
		query = query.Where("actor_id = ?", *filter.ActorID)
	}
	if filter.TaskID != nil {
		query = query.Where("task_id = ?", *filter.TaskID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.HistoryItem
	if err := query.
		Scopes(database.NewestFirst("timestamp"), database.Paginate(filter.Page, filter.PageSize)).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// PruneOlderThan deletes items recorded before cutoff
func (r *GormHistoryRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.HistoryItem{})
	return result.RowsAffected, result.Error
}
