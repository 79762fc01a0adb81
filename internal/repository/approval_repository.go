package repository

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/yukikurage/family-task-sync/internal/constants"
	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/remote"
	"gorm.io/gorm"
)

// RoutedApprovalRepository writes approval requests through the Router and mirrors them locally
type RoutedApprovalRepository struct {
	router  *Router
	offline OfflineRepository
}

// NewApprovalRepository creates a new ApprovalRepository
func NewApprovalRepository(router *Router, offline OfflineRepository) ApprovalRepository {
	return &RoutedApprovalRepository{router: router, offline: offline}
}

// Save creates an approval request
func (r *RoutedApprovalRepository) Save(ctx context.Context, approval models.ApprovalRequest) error {
	return r.write(ctx, models.OperationCreate, approval)
}

// Update replaces an existing approval request
func (r *RoutedApprovalRepository) Update(ctx context.Context, approval models.ApprovalRequest) error {
	return r.write(ctx, models.OperationUpdate, approval)
}

func (r *RoutedApprovalRepository) write(ctx context.Context, op models.OperationType, approval models.ApprovalRequest) error {
	queued, err := r.router.Write(ctx, op, constants.CollectionApprovals, approval.ID, approval, approval.ToDocument())
	if err != nil {
		return err
	}
	if err := r.offline.SaveApproval(ctx, approval, queued); err != nil {
		log.Printf("Failed to cache approval request %s: %v", approval.ID, err)
	}
	return nil
}

// FindByID prefers unconfirmed local changes, then the remote copy, then the cache
func (r *RoutedApprovalRepository) FindByID(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	cached, dirty, err := r.offline.FindApproval(ctx, id)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.Repository("failed to read approval cache", err)
	}
	if cached != nil && dirty {
		return cached, nil
	}

	if r.router.Online() {
		q := remote.Query{Collection: constants.CollectionApprovals, Limit: 1}.Where("id", id)
		approvals, err := r.query(ctx, q)
		switch {
		case err == nil && len(approvals) == 0:
			return nil, ErrNotFound
		case err == nil:
			return &approvals[0], nil
		case !remote.IsUnavailable(err):
			return nil, apperrors.Repository("failed to load approval request", err)
		}
		log.Printf("Remote store unavailable, reading approval request %s from cache: %v", id, err)
	}

	if cached == nil {
		return nil, ErrNotFound
	}
	return cached, nil
}

// FindPendingByTask returns the pending request for a task, or nil if there is none
func (r *RoutedApprovalRepository) FindPendingByTask(ctx context.Context, taskID string) (*models.ApprovalRequest, error) {
	pending := models.ApprovalPending
	filter := ApprovalFilter{TaskID: &taskID, Status: &pending}
	q := remote.Query{Collection: constants.CollectionApprovals}.
		Where("taskId", taskID).
		Where("status", string(models.ApprovalPending))

	approvals, err := r.list(ctx, q, filter)
	if err != nil {
		return nil, err
	}
	if len(approvals) == 0 {
		return nil, nil
	}
	return &approvals[0], nil
}

// ListPendingByFamily lists pending requests of a family, oldest first
func (r *RoutedApprovalRepository) ListPendingByFamily(ctx context.Context, familyID string) ([]models.ApprovalRequest, error) {
	pending := models.ApprovalPending
	filter := ApprovalFilter{FamilyID: &familyID, Status: &pending}
	q := remote.Query{Collection: constants.CollectionApprovals}.
		Where("familyId", familyID).
		Where("status", string(models.ApprovalPending))
	return r.list(ctx, q, filter)
}

// list merges the remote result with local writes that have not reached the store yet.
// Without the store it answers from the cache alone.
func (r *RoutedApprovalRepository) list(ctx context.Context, q remote.Query, filter ApprovalFilter) ([]models.ApprovalRequest, error) {
	if r.router.Online() {
		remoteApprovals, err := r.query(ctx, q)
		if err == nil {
			dirtyFilter := filter
			dirtyFilter.DirtyOnly = true
			dirtyFilter.Status = nil
			local, err := r.offline.ListApprovals(ctx, dirtyFilter)
			if err != nil {
				return nil, apperrors.Repository("failed to read approval cache", err)
			}
			return withStatus(mergeApprovals(remoteApprovals, local), filter.Status), nil
		}
		if !remote.IsUnavailable(err) {
			return nil, apperrors.Repository("failed to query approval requests", err)
		}
		log.Printf("Remote store unavailable, listing approval requests from cache: %v", err)
	}

	approvals, err := r.offline.ListApprovals(ctx, filter)
	if err != nil {
		return nil, apperrors.Repository("failed to read approval cache", err)
	}
	return approvals, nil
}

func (r *RoutedApprovalRepository) query(ctx context.Context, q remote.Query) ([]models.ApprovalRequest, error) {
	docs, err := r.router.Store().Query(ctx, q)
	if err != nil {
		return nil, err
	}
	approvals := make([]models.ApprovalRequest, 0, len(docs))
	for _, doc := range docs {
		approval, err := models.DecodeApproval(doc.ID, doc.Data)
		if err != nil {
			log.Printf("Skipping undecodable approval request %s: %v", doc.ID, err)
			continue
		}
		r.cache(ctx, approval)
		approvals = append(approvals, approval)
	}
	return approvals, nil
}

// cache stores a confirmed remote copy unless a local change is still unsent.
func (r *RoutedApprovalRepository) cache(ctx context.Context, approval models.ApprovalRequest) {
	if _, dirty, err := r.offline.FindApproval(ctx, approval.ID); err == nil && dirty {
		return
	}
	if err := r.offline.SaveApproval(ctx, approval, false); err != nil {
		log.Printf("Failed to cache approval request %s: %v", approval.ID, err)
	}
}

// mergeApprovals overlays local unsent copies on the remote result, keyed by id.
func mergeApprovals(remoteApprovals, local []models.ApprovalRequest) []models.ApprovalRequest {
	byID := make(map[string]models.ApprovalRequest, len(remoteApprovals)+len(local))
	for _, a := range remoteApprovals {
		byID[a.ID] = a
	}
	for _, a := range local {
		byID[a.ID] = a
	}
	out := make([]models.ApprovalRequest, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	sortApprovals(out)
	return out
}

// withStatus drops requests whose merged state no longer matches status.
func withStatus(approvals []models.ApprovalRequest, status *models.ApprovalStatus) []models.ApprovalRequest {
	if status == nil {
		return approvals
	}
	out := approvals[:0]
	for _, a := range approvals {
		if a.Status == *status {
			out = append(out, a)
		}
	}
	return out
}

func sortApprovals(approvals []models.ApprovalRequest) {
	sort.Slice(approvals, func(i, j int) bool {
		if !approvals[i].CreatedAt.Equal(approvals[j].CreatedAt) {
			return approvals[i].CreatedAt.Before(approvals[j].CreatedAt)
		}
		return approvals[i].ID < approvals[j].ID
	})
}
