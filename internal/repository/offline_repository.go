package repository

import (
	"context"
	"errors"
	"time"

	"github.com/yukikurage/family-task-sync/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const syncStateID = 1

// GormOfflineRepository is a GORM implementation of OfflineRepository
type GormOfflineRepository struct {
	db *gorm.DB
}

// NewOfflineRepository creates a new OfflineRepository
func NewOfflineRepository(db *gorm.DB) OfflineRepository {
	return &GormOfflineRepository{db: db}
}

// SaveTask inserts or replaces the cached copy of a task
func (r *GormOfflineRepository) SaveTask(ctx context.Context, task models.Task, dirty bool) error {
	row := models.CachedTask{
		ID:         task.ID,
		CreatedBy:  task.CreatedBy,
		AssignedTo: task.AssignedTo,
		FamilyID:   task.FamilyID,
		Private:    task.Private,
		Data:       task,
		Dirty:      dirty,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// FindTask finds a cached task. The bool reports whether it has unconfirmed local changes.
func (r *GormOfflineRepository) FindTask(ctx context.Context, id string) (*models.Task, bool, error) {
	var row models.CachedTask
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, false, err
	}
	task := row.Data
	return &task, row.Dirty, nil
}

// DeleteTask removes a cached task
func (r *GormOfflineRepository) DeleteTask(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.CachedTask{}).Error
}

// ListVisibleTasks applies the same three segments as the live aggregator to the cache
func (r *GormOfflineRepository) ListVisibleTasks(ctx context.Context, session models.SessionContext) ([]models.Task, error) {
	var rows []models.CachedTask
	if err := visibleRows(r.db.WithContext(ctx).Model(&models.CachedTask{}), session).Find(&rows).Error; err != nil {
		return nil, err
	}

	tasks := make([]models.Task, 0, len(rows))
	for _, row := range rows {
		if row.Data.VisibleTo(session.UserID) {
			tasks = append(tasks, row.Data)
		}
	}
	models.SortByLastTouched(tasks)
	return tasks, nil
}

// RefreshTasks stores the remote copies of the session's visible tasks.
// Rows with unconfirmed local changes are left alone. Clean rows the session
// can see that are missing from tasks were deleted remotely and are dropped,
// unless they were cached at or after since; a zero since keeps them all.
func (r *GormOfflineRepository) RefreshTasks(ctx context.Context, session models.SessionContext, tasks []models.Task, since time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dirtyIDs []string
		if err := tx.Model(&models.CachedTask{}).Where("dirty = ?", true).Pluck("id", &dirtyIDs).Error; err != nil {
			return err
		}
		dirty := make(map[string]bool, len(dirtyIDs))
		for _, id := range dirtyIDs {
			dirty[id] = true
		}

		seen := make([]string, 0, len(tasks))
		for _, task := range tasks {
			seen = append(seen, task.ID)
			if dirty[task.ID] {
				continue
			}
			if err := (&GormOfflineRepository{db: tx}).SaveTask(ctx, task, false); err != nil {
				return err
			}
		}
		if since.IsZero() {
			return nil
		}

		stale := visibleRows(tx.Model(&models.CachedTask{}), session).
			Where("dirty = ? AND updated_at < ?", false, since)
		if len(seen) > 0 {
			stale = stale.Where("id NOT IN ?", seen)
		}
		var staleIDs []string
		if err := stale.Pluck("id", &staleIDs).Error; err != nil {
			return err
		}
		if len(staleIDs) == 0 {
			return nil
		}
		return tx.Where("id IN ?", staleIDs).Delete(&models.CachedTask{}).Error
	})
}

// visibleRows narrows a cached task query to the session's three segments.
func visibleRows(query *gorm.DB, session models.SessionContext) *gorm.DB {
	segments := query.Session(&gorm.Session{NewDB: true}).
		Where("created_by = ?", session.UserID).
		Or("private = ? AND assigned_to = ?", false, session.UserID)
	if session.HasFamily() {
		segments = segments.Or("private = ? AND family_id = ?", false, *session.FamilyID)
	}
	return query.Where(segments)
}

// ListDirtyTasks lists cached tasks with unconfirmed local changes
func (r *GormOfflineRepository) ListDirtyTasks(ctx context.Context) ([]models.Task, error) {
	var rows []models.CachedTask
	if err := r.db.WithContext(ctx).Where("dirty = ?", true).Find(&rows).Error; err != nil {
		return nil, err
	}
	tasks := make([]models.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.Data)
	}
	return tasks, nil
}

// MarkTaskSynced clears the dirty flag after the remote store confirmed a write
func (r *GormOfflineRepository) MarkTaskSynced(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.CachedTask{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"dirty": false, "synced_at": at}).Error
}

// SaveApproval inserts or replaces the cached copy of an approval request
func (r *GormOfflineRepository) SaveApproval(ctx context.Context, approval models.ApprovalRequest, dirty bool) error {
	row := models.CachedApproval{
		ID:       approval.ID,
		TaskID:   approval.TaskID,
		FamilyID: approval.FamilyID,
		Status:   approval.Status,
		Data:     approval,
		Dirty:    dirty,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

// FindApproval finds a cached approval request
func (r *GormOfflineRepository) FindApproval(ctx context.Context, id string) (*models.ApprovalRequest, bool, error) {
	var row models.CachedApproval
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, false, err
	}
	approval := row.Data
	return &approval, row.Dirty, nil
}

// ListApprovals lists cached approval requests matching the filter, oldest first
func (r *GormOfflineRepository) ListApprovals(ctx context.Context, filter ApprovalFilter) ([]models.ApprovalRequest, error) {
	query := r.db.WithContext(ctx).Model(&models.CachedApproval{})
	if filter.TaskID != nil {
		query = query.Where("task_id = ?", *filter.TaskID)
	}
	if filter.FamilyID != nil {
		query = query.Where("family_id = ?", *filter.FamilyID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.DirtyOnly {
		query = query.Where("dirty = ?", true)
	}

	var rows []models.CachedApproval
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	approvals := make([]models.ApprovalRequest, 0, len(rows))
	for _, row := range rows {
		approvals = append(approvals, row.Data)
	}
	sortApprovals(approvals)
	return approvals, nil
}

// MarkApprovalSynced clears the dirty flag of an approval request
func (r *GormOfflineRepository) MarkApprovalSynced(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&models.CachedApproval{}).
		Where("id = ?", id).
		Update("dirty", false).Error
}

// LastSync returns the epoch milliseconds of the last completed drain, 0 if none
func (r *GormOfflineRepository) LastSync(ctx context.Context) (int64, error) {
	var state models.SyncState
	err := r.db.WithContext(ctx).Where("id = ?", syncStateID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return state.LastSync, nil
}

// SetLastSync records the epoch milliseconds of a completed drain
func (r *GormOfflineRepository) SetLastSync(ctx context.Context, millis int64) error {
	return r.db.WithContext(ctx).Save(&models.SyncState{ID: syncStateID, LastSync: millis}).Error
}

// Snapshot returns the whole persisted local state
func (r *GormOfflineRepository) Snapshot(ctx context.Context) (models.OfflineData, error) {
	data := models.OfflineData{
		Tasks:   make(map[string]models.Task),
		History: make(map[string]models.HistoryItem),
	}
	db := r.db.WithContext(ctx)

	var tasks []models.CachedTask
	if err := db.Find(&tasks).Error; err != nil {
		return models.OfflineData{}, err
	}
	for _, row := range tasks {
		data.Tasks[row.ID] = row.Data
	}

	data.PendingOperations = []models.PendingOperation{}
	if err := db.Order("seq ASC").Find(&data.PendingOperations).Error; err != nil {
		return models.OfflineData{}, err
	}

	var history []models.HistoryItem
	if err := db.Find(&history).Error; err != nil {
		return models.OfflineData{}, err
	}
	for _, item := range history {
		data.History[item.ID] = item
	}

	lastSync, err := r.LastSync(ctx)
	if err != nil {
		return models.OfflineData{}, err
	}
	data.LastSync = lastSync
	return data, nil
}
