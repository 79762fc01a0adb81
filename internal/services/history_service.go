package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/yukikurage/family-task-sync/internal/constants"
	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/repository"
)

// HistoryService keeps the audit log. Items are stored locally first and then
// written to the remote store through the router.
type HistoryService struct {
	repo      repository.HistoryRepository
	router    *repository.Router
	retention time.Duration
	now       func() time.Time
}

func NewHistoryService(repo repository.HistoryRepository, router *repository.Router, retentionDays int) *HistoryService {
	if retentionDays <= 0 {
		retentionDays = constants.DefaultRetentionDays
	}
	return &HistoryService{
		repo:      repo,
		router:    router,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

// Record appends one item. Failures are logged and never reach the caller.
func (s *HistoryService) Record(ctx context.Context, action models.HistoryAction, actor models.SessionContext, task *models.Task, details map[string]any) {
	item := models.NewHistoryItem(uuid.NewString(), action, actor, task, details, s.now())
	if err := s.repo.Append(ctx, &item); err != nil {
		log.Printf("Failed to store history item %s (%s): %v", item.ID, action, err)
	}
	if s.router == nil {
		return
	}
	if _, err := s.router.Write(ctx, models.OperationCreate, constants.CollectionHistory, item.ID, item, item.ToDocument()); err != nil {
		log.Printf("Failed to publish history item %s (%s): %v", item.ID, action, err)
	}
}

// HistoryQuery narrows a history listing.
type HistoryQuery struct {
	TaskID   *string
	Page     int
	PageSize int
}

// HistoryPage is one page of history, newest first.
type HistoryPage struct {
	Items    []models.HistoryItem
	Total    int64
	Page     int
	PageSize int
}

// List returns the session's family history, or the user's own entries when
// the session has no family.
func (s *HistoryService) List(ctx context.Context, session models.SessionContext, query HistoryQuery) Result[HistoryPage] {
	filter := repository.HistoryFilter{TaskID: query.TaskID, Page: query.Page, PageSize: query.PageSize}
	if session.HasFamily() {
		filter.FamilyID = session.FamilyID
	} else {
		userID := session.UserID
		filter.ActorID = &userID
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return Fail[HistoryPage](apperrors.Repository("failed to list history", err))
	}
	return Success(HistoryPage{Items: items, Total: total, Page: query.Page, PageSize: query.PageSize})
}

// Prune drops local items older than the retention window and reports how many went.
func (s *HistoryService) Prune(ctx context.Context) Result[int64] {
	cutoff := s.now().Add(-s.retention)
	removed, err := s.repo.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return Fail[int64](apperrors.Repository("failed to prune history", err))
	}
	if removed > 0 {
		log.Printf("Pruned %d history items recorded before %s", removed, cutoff.Format(time.RFC3339))
	}
	return Success(removed)
}
