package repository

import (
	"context"
	"errors"
	"log"

	"github.com/yukikurage/family-task-sync/internal/constants"
	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/remote"
	"gorm.io/gorm"
)

// RoutedTaskRepository writes tasks through the Router and keeps the offline cache current
type RoutedTaskRepository struct {
	router  *Router
	offline OfflineRepository
}

// NewTaskRepository creates a new TaskRepository
func NewTaskRepository(router *Router, offline OfflineRepository) TaskRepository {
	return &RoutedTaskRepository{router: router, offline: offline}
}

// Save creates or replaces a task
func (r *RoutedTaskRepository) Save(ctx context.Context, task models.Task) error {
	return r.write(ctx, models.OperationCreate, task)
}

// Update replaces an existing task
func (r *RoutedTaskRepository) Update(ctx context.Context, task models.Task) error {
	return r.write(ctx, models.OperationUpdate, task)
}

func (r *RoutedTaskRepository) write(ctx context.Context, op models.OperationType, task models.Task) error {
	queued, err := r.router.Write(ctx, op, constants.CollectionTasks, task.ID, task, task.ToDocument())
	if err != nil {
		return err
	}
	if err := r.offline.SaveTask(ctx, task, queued); err != nil {
		log.Printf("Failed to cache task %s: %v", task.ID, err)
	}
	return nil
}

// Delete deletes a task
func (r *RoutedTaskRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.router.Write(ctx, models.OperationDelete, constants.CollectionTasks, id, nil, nil); err != nil {
		return err
	}
	if err := r.offline.DeleteTask(ctx, id); err != nil {
		log.Printf("Failed to remove cached task %s: %v", id, err)
	}
	return nil
}

// FindByID prefers unconfirmed local changes, then the remote copy, then the cache
func (r *RoutedTaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	cached, dirty, err := r.offline.FindTask(ctx, id)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Repository("failed to read task cache", err)
	}
	if cached != nil && dirty {
		return cached, nil
	}

	if r.router.Online() {
		q := remote.Query{Collection: constants.CollectionTasks, Limit: 1}.Where("id", id)
		docs, err := r.router.Store().Query(ctx, q)
		switch {
		case err == nil && len(docs) == 0:
			if cached != nil {
				if err := r.offline.DeleteTask(ctx, id); err != nil {
					log.Printf("Failed to remove cached task %s: %v", id, err)
				}
			}
			return nil, ErrNotFound
		case err == nil:
			task, err := models.DecodeTask(docs[0].ID, docs[0].Data)
			if err != nil {
				return nil, apperrors.Repository("failed to decode task", err)
			}
			if err := r.offline.SaveTask(ctx, task, false); err != nil {
				log.Printf("Failed to cache task %s: %v", id, err)
			}
			return &task, nil
		case !remote.IsUnavailable(err):
			return nil, apperrors.Repository("failed to load task", err)
		}
		log.Printf("Remote store unavailable, reading task %s from cache: %v", id, err)
	}

	if cached == nil {
		return nil, ErrNotFound
	}
	return cached, nil
}
