package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/repository"
)

var (
	ErrApprovalNotFound = apperrors.NotFound("approval request not found")
	ErrNotReviewer      = apperrors.NotAuthorized("only parents and admins of the family can review approval requests")
	ErrNotRequester     = apperrors.NotAuthorized("only the requester can cancel an approval request")
)

// ApprovalService runs the review workflow for tasks that need a parent's sign-off.
type ApprovalService struct {
	approvals repository.ApprovalRepository
	tasks     repository.TaskRepository
	families  repository.FamilyRepository
	history   *HistoryService
	notifier  Notifier
	locks     keyedMutex
	now       func() time.Time
}

func NewApprovalService(
	approvals repository.ApprovalRepository,
	tasks repository.TaskRepository,
	families repository.FamilyRepository,
	history *HistoryService,
	notifier Notifier,
) *ApprovalService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &ApprovalService{
		approvals: approvals,
		tasks:     tasks,
		families:  families,
		history:   history,
		notifier:  notifier,
		locks:     keyedMutex{locks: make(map[string]*keyedLock)},
		now:       time.Now,
	}
}

// RequestApproval opens a review for a completed task that is waiting for one.
func (s *ApprovalService) RequestApproval(ctx context.Context, session models.SessionContext, taskID string) Result[models.ApprovalRequest] {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return Fail[models.ApprovalRequest](taskLookupError(err))
	}
	if !canSee(*task, session) {
		return Fail[models.ApprovalRequest](ErrTaskNotFound)
	}
	if !task.IsPendingApproval() {
		if !task.RequiresApproval {
			return Fail[models.ApprovalRequest](apperrors.Domain(apperrors.ErrCodeApprovalNotRequired, "task does not require approval"))
		}
		return Fail[models.ApprovalRequest](apperrors.Domain(apperrors.ErrCodeTaskNotPendingApproval, "complete the task before requesting approval"))
	}

	approval, err := s.request(ctx, session, *task)
	if err != nil {
		return Fail[models.ApprovalRequest](err)
	}
	return Success(approval)
}

// request creates the pending request for task. Requests for one task are
// serialised so the pending check and the write cannot interleave.
func (s *ApprovalService) request(ctx context.Context, session models.SessionContext, task models.Task) (models.ApprovalRequest, error) {
	unlock := s.locks.Lock(task.ID)
	defer unlock()

	existing, err := s.approvals.FindPendingByTask(ctx, task.ID)
	if err != nil {
		return models.ApprovalRequest{}, apperrors.Repository("failed to look up pending approvals", err)
	}
	if existing != nil {
		return models.ApprovalRequest{}, apperrors.Domain(apperrors.ErrCodeApprovalAlreadyExists, "an approval request is already pending for this task")
	}

	approval, err := models.NewApprovalRequest(uuid.NewString(), task, session.UserID, session.DisplayName, s.now())
	if err != nil {
		return models.ApprovalRequest{}, err
	}
	if err := s.approvals.Save(ctx, approval); err != nil {
		return models.ApprovalRequest{}, err
	}

	s.history.Record(ctx, models.ActionApprovalRequested, session, &task, map[string]any{"approvalId": approval.ID})
	return approval, nil
}

// Approve signs off the request and the task. A repeating task gets its next
// occurrence at this point.
func (s *ApprovalService) Approve(ctx context.Context, session models.SessionContext, approvalID string, comment *string) Result[models.ApprovalRequest] {
	approval, reviewer, err := s.loadForReview(ctx, session, approvalID)
	if err != nil {
		return Fail[models.ApprovalRequest](err)
	}

	at := s.now()
	approved, err := approval.Approve(session.UserID, reviewer.DisplayName, comment, at)
	if err != nil {
		return Fail[models.ApprovalRequest](err)
	}
	task, err := s.tasks.FindByID(ctx, approval.TaskID)
	if err != nil {
		return Fail[models.ApprovalRequest](taskLookupError(err))
	}
	approvedTask, err := task.Approve(session.UserID, at)
	if err != nil {
		return Fail[models.ApprovalRequest](err)
	}

	if err := s.approvals.Update(ctx, approved); err != nil {
		return Fail[models.ApprovalRequest](err)
	}
	if err := s.tasks.Update(ctx, approvedTask); err != nil {
		return Fail[models.ApprovalRequest](err)
	}
	if next, ok := approvedTask.NextOccurrence(uuid.NewString(), at); ok {
		if err := s.tasks.Save(ctx, next); err != nil {
			log.Printf("Failed to create next occurrence of task %s: %v", approvedTask.ID, err)
		}
	}

	s.resolved(ctx, session, approved, &approvedTask, models.ActionApprovalApproved,
		"Task approved", fmt.Sprintf("%s approved %q", reviewer.DisplayName, approved.TaskTitle))
	return Success(approved)
}

// Reject closes the request and deletes the task it was about.
func (s *ApprovalService) Reject(ctx context.Context, session models.SessionContext, approvalID string, comment *string) Result[models.ApprovalRequest] {
	approval, reviewer, err := s.loadForReview(ctx, session, approvalID)
	if err != nil {
		return Fail[models.ApprovalRequest](err)
	}

	rejected, err := approval.Reject(session.UserID, reviewer.DisplayName, comment, s.now())
	if err != nil {
		return Fail[models.ApprovalRequest](err)
	}
	if err := s.approvals.Update(ctx, rejected); err != nil {
		return Fail[models.ApprovalRequest](err)
	}
	if err := s.tasks.Delete(ctx, rejected.TaskID); err != nil {
		return Fail[models.ApprovalRequest](err)
	}

	taskID := rejected.TaskID
	title := rejected.TaskTitle
	familyID := rejected.FamilyID
	deleted := &models.Task{ID: taskID, Title: title, FamilyID: &familyID}
	s.resolved(ctx, session, rejected, deleted, models.ActionApprovalRejected,
		"Task rejected", fmt.Sprintf("%s rejected %q", reviewer.DisplayName, rejected.TaskTitle))
	return Success(rejected)
}

// Cancel withdraws a pending request. Only the requester may do so; the task
// goes back to pending so it can be worked on again.
func (s *ApprovalService) Cancel(ctx context.Context, session models.SessionContext, approvalID string) Result[models.ApprovalRequest] {
	approval, err := s.approvals.FindByID(ctx, approvalID)
	if err != nil {
		return Fail[models.ApprovalRequest](approvalLookupError(err))
	}
	if approval.RequesterID != session.UserID {
		return Fail[models.ApprovalRequest](ErrNotRequester)
	}

	cancelled, err := s.cancel(ctx, session, *approval)
	if err != nil {
		return Fail[models.ApprovalRequest](err)
	}
	return Success(cancelled)
}

// cancelForTask withdraws whatever request is pending for taskID, if any.
func (s *ApprovalService) cancelForTask(ctx context.Context, session models.SessionContext, taskID string) error {
	approval, err := s.approvals.FindPendingByTask(ctx, taskID)
	if err != nil || approval == nil {
		return err
	}
	_, err = s.cancel(ctx, session, *approval)
	return err
}

func (s *ApprovalService) cancel(ctx context.Context, session models.SessionContext, approval models.ApprovalRequest) (models.ApprovalRequest, error) {
	cancelled, err := approval.Cancel(s.now())
	if err != nil {
		return models.ApprovalRequest{}, err
	}
	if err := s.approvals.Update(ctx, cancelled); err != nil {
		return models.ApprovalRequest{}, err
	}

	task, err := s.tasks.FindByID(ctx, cancelled.TaskID)
	switch {
	case err != nil:
		log.Printf("Failed to load task %s of cancelled approval %s: %v", cancelled.TaskID, cancelled.ID, err)
	case task.IsCompleted():
		reopened, err := task.Uncomplete(s.now())
		if err == nil {
			err = s.tasks.Update(ctx, reopened)
		}
		if err != nil {
			log.Printf("Failed to reopen task %s: %v", task.ID, err)
		}
	}

	s.history.Record(ctx, models.ActionApprovalCancelled, session, task, map[string]any{"approvalId": cancelled.ID})
	return cancelled, nil
}

// ListPending lists the open requests of the session's family, oldest first.
func (s *ApprovalService) ListPending(ctx context.Context, session models.SessionContext) Result[[]models.ApprovalRequest] {
	if !session.HasFamily() {
		return Success([]models.ApprovalRequest{})
	}
	approvals, err := s.approvals.ListPendingByFamily(ctx, *session.FamilyID)
	if err != nil {
		return Fail[[]models.ApprovalRequest](err)
	}
	return Success(approvals)
}

// loadForReview fetches the request and checks the reviewer's current membership.
func (s *ApprovalService) loadForReview(ctx context.Context, session models.SessionContext, approvalID string) (*models.ApprovalRequest, *models.FamilyMember, error) {
	approval, err := s.approvals.FindByID(ctx, approvalID)
	if err != nil {
		return nil, nil, approvalLookupError(err)
	}

	member, err := s.families.FindMember(approval.FamilyID, session.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotReviewer
		}
		return nil, nil, apperrors.Repository("failed to verify reviewer", err)
	}
	if !member.Role.IsElevated() {
		return nil, nil, ErrNotReviewer
	}
	return approval, member, nil
}

// resolved sends the requester their notification and records the decision.
// Both are best effort.
func (s *ApprovalService) resolved(ctx context.Context, session models.SessionContext, approval models.ApprovalRequest, task *models.Task, action models.HistoryAction, title, body string) {
	approvalID := approval.ID
	taskID := approval.TaskID
	notification := models.Notification{
		ID:            uuid.NewString(),
		RecipientID:   approval.RequesterID,
		Title:         title,
		Body:          body,
		TaskID:        &taskID,
		ApprovalID:    &approvalID,
		CreatedAt:     s.now(),
		SchemaVersion: models.NotificationSchemaVersion,
	}
	if err := s.notifier.Notify(ctx, notification); err != nil {
		log.Printf("Failed to notify %s about approval %s: %v", approval.RequesterID, approval.ID, err)
	}

	details := map[string]any{"approvalId": approval.ID, "requesterId": approval.RequesterID}
	if approval.Comment != nil {
		details["comment"] = *approval.Comment
	}
	s.history.Record(ctx, action, session, task, details)
}

func approvalLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrApprovalNotFound
	}
	return err
}

// keyedMutex hands out one lock per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	lock, ok := k.locks[key]
	if !ok {
		lock = &keyedLock{}
		k.locks[key] = lock
	}
	lock.refs++
	k.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()
		k.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
