package services

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yukikurage/family-task-sync/internal/aggregator"
	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/remote"
	"github.com/yukikurage/family-task-sync/internal/repository"
)

var (
	ErrTaskNotFound         = apperrors.NotFound("task not found")
	ErrTaskPermissionDenied = apperrors.NotAuthorized("user does not have permission to modify this task")
	ErrInvalidTaskAssignee  = apperrors.Validation("tasks can only be assigned to members of the task's family")
	ErrForeignFamily        = apperrors.Validation("tasks can only be shared with your own family")
)

// TaskService handles task use cases
type TaskService struct {
	tasks     repository.TaskRepository
	offline   repository.OfflineRepository
	router    *repository.Router
	families  repository.FamilyRepository
	approvals *ApprovalService
	history   *HistoryService
	now       func() time.Time
}

// NewTaskService creates a new TaskService
func NewTaskService(
	tasks repository.TaskRepository,
	offline repository.OfflineRepository,
	router *repository.Router,
	families repository.FamilyRepository,
	approvals *ApprovalService,
	history *HistoryService,
) *TaskService {
	return &TaskService{
		tasks:     tasks,
		offline:   offline,
		router:    router,
		families:  families,
		approvals: approvals,
		history:   history,
		now:       time.Now,
	}
}

// CreateTaskInput represents input for creating a task. Tasks belong to the
// session's family unless Private is set or the session has no family.
type CreateTaskInput struct {
	Title            string
	Description      *string
	Category         string
	Priority         models.Priority
	Date             time.Time
	Time             *string
	AssignedTo       *string
	Private          bool
	RequiresApproval bool
	Repeat           models.RepeatConfig
}

// SubtaskInput represents input for adding a subtask
type SubtaskInput struct {
	Title   string
	DueDate *time.Time
	DueTime *string
}

// List returns the session's merged task list. While the remote store is
// reachable it is the source, with unconfirmed local writes laid on top, and
// its result is kept in the offline cache; otherwise the cache answers.
func (s *TaskService) List(ctx context.Context, session models.SessionContext) Result[[]models.Task] {
	if s.router.Online() {
		started := time.Now()
		tasks, err := aggregator.Snapshot(ctx, s.router.Store(), session)
		if err == nil {
			if err := s.offline.RefreshTasks(ctx, session, tasks, started); err != nil {
				log.Printf("Failed to cache tasks for user %s: %v", session.UserID, err)
			}
			merged, err := s.withLocalChanges(ctx, session, tasks)
			if err != nil {
				return Fail[[]models.Task](apperrors.Repository("failed to read task cache", err))
			}
			return Success(merged)
		}
		if !remote.IsUnavailable(err) {
			return Fail[[]models.Task](apperrors.Repository("failed to list tasks", err))
		}
		log.Printf("Remote store unavailable, listing tasks from cache: %v", err)
	}

	tasks, err := s.offline.ListVisibleTasks(ctx, session)
	if err != nil {
		return Fail[[]models.Task](apperrors.Repository("failed to list cached tasks", err))
	}
	return Success(tasks)
}

func (s *TaskService) withLocalChanges(ctx context.Context, session models.SessionContext, tasks []models.Task) ([]models.Task, error) {
	dirty, err := s.offline.ListDirtyTasks(ctx)
	if err != nil {
		return nil, err
	}
	if len(dirty) == 0 {
		return tasks, nil
	}

	byID := make(map[string]models.Task, len(tasks)+len(dirty))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	for _, task := range dirty {
		if canSee(task, session) {
			byID[task.ID] = task
		}
	}
	merged := make([]models.Task, 0, len(byID))
	for _, task := range byID {
		merged = append(merged, task)
	}
	models.SortByLastTouched(merged)
	return merged, nil
}

// Stream follows the session's merged task list live. Every update is also
// written to the offline cache before it is passed on.
func (s *TaskService) Stream(ctx context.Context, session models.SessionContext) (<-chan []models.Task, error) {
	updates, err := aggregator.New(s.router.Store(), session).Stream(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan []models.Task)
	go func() {
		defer close(out)
		for tasks := range updates {
			// Removals are left to List: a live update can trail a local write.
			if err := s.offline.RefreshTasks(ctx, session, tasks, time.Time{}); err != nil {
				log.Printf("Failed to cache streamed tasks for user %s: %v", session.UserID, err)
			}
			select {
			case out <- tasks:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Get returns one task the session can see
func (s *TaskService) Get(ctx context.Context, session models.SessionContext, id string) Result[models.Task] {
	task, err := s.load(ctx, session, id)
	if err != nil {
		return Fail[models.Task](err)
	}
	return Success(*task)
}

// Create validates input and stores a new pending task
func (s *TaskService) Create(ctx context.Context, session models.SessionContext, input CreateTaskInput) Result[models.Task] {
	var familyID *string
	if !input.Private && session.HasFamily() {
		id := *session.FamilyID
		familyID = &id
	}
	if err := s.checkAssignee(session, familyID, input.AssignedTo); err != nil {
		return Fail[models.Task](err)
	}

	task, err := models.NewTask(uuid.NewString(), models.NewTaskInput{
		Title:            input.Title,
		Description:      input.Description,
		Category:         input.Category,
		Priority:         input.Priority,
		Date:             input.Date,
		Time:             input.Time,
		CreatedBy:        session.UserID,
		AssignedTo:       input.AssignedTo,
		FamilyID:         familyID,
		RequiresApproval: input.RequiresApproval,
		Repeat:           input.Repeat,
	}, s.now())
	if err != nil {
		return Fail[models.Task](err)
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		return Fail[models.Task](err)
	}
	s.history.Record(ctx, models.ActionTaskCreated, session, &task, nil)
	return Success(task)
}

// Update applies a patch. Only the creator may make a task private.
func (s *TaskService) Update(ctx context.Context, session models.SessionContext, id string, patch models.TaskPatch) Result[models.Task] {
	task, err := s.load(ctx, session, id)
	if err != nil {
		return Fail[models.Task](err)
	}
	if !canWork(*task, session) {
		return Fail[models.Task](ErrTaskPermissionDenied)
	}
	if patch.MakePrivate && task.CreatedBy != session.UserID {
		return Fail[models.Task](ErrTaskPermissionDenied)
	}
	if patch.FamilyID != nil && (!session.HasFamily() || *patch.FamilyID != *session.FamilyID) {
		return Fail[models.Task](ErrForeignFamily)
	}

	updated, err := task.Update(patch, s.now())
	if err != nil {
		return Fail[models.Task](err)
	}
	if !patch.ClearAssignee && patch.AssignedTo != nil {
		if err := s.checkAssignee(session, updated.FamilyID, updated.AssignedTo); err != nil {
			return Fail[models.Task](err)
		}
	}

	if err := s.tasks.Update(ctx, updated); err != nil {
		return Fail[models.Task](err)
	}
	s.history.Record(ctx, models.ActionTaskUpdated, session, &updated, nil)
	return Success(updated)
}

// Delete removes a task. The creator and the family's parents may delete.
func (s *TaskService) Delete(ctx context.Context, session models.SessionContext, id string) Result[models.Task] {
	task, err := s.load(ctx, session, id)
	if err != nil {
		return Fail[models.Task](err)
	}
	if !canManage(*task, session) {
		return Fail[models.Task](ErrTaskPermissionDenied)
	}

	if task.IsPendingApproval() {
		if err := s.approvals.cancelForTask(ctx, session, task.ID); err != nil {
			log.Printf("Failed to cancel approval for deleted task %s: %v", task.ID, err)
		}
	}
	if err := s.tasks.Delete(ctx, task.ID); err != nil {
		return Fail[models.Task](err)
	}
	s.history.Record(ctx, models.ActionTaskDeleted, session, task, nil)
	return Success(*task)
}

// Complete marks the task done. A task that needs approval gets its request
// opened here; any other repeating task spawns its next occurrence.
func (s *TaskService) Complete(ctx context.Context, session models.SessionContext, id string) Result[models.Task] {
	task, err := s.load(ctx, session, id)
	if err != nil {
		return Fail[models.Task](err)
	}

	if !canWork(*task, session) {
		return Fail[models.Task](ErrTaskPermissionDenied)
	}

	at := s.now()
	completed, err := task.Complete(session.UserID, at)
	if err != nil {
		return Fail[models.Task](err)
	}
	if err := s.tasks.Update(ctx, completed); err != nil {
		return Fail[models.Task](err)
	}
	s.history.Record(ctx, models.ActionTaskCompleted, session, &completed, nil)

	if completed.RequiresApproval {
		if _, err := s.approvals.request(ctx, session, completed); err != nil {
			log.Printf("Failed to open approval request for task %s: %v", completed.ID, err)
		}
		return Success(completed)
	}
	if next, ok := completed.NextOccurrence(uuid.NewString(), at); ok {
		if err := s.tasks.Save(ctx, next); err != nil {
			log.Printf("Failed to create next occurrence of task %s: %v", completed.ID, err)
		} else {
			s.history.Record(ctx, models.ActionTaskCreated, session, &next, map[string]any{"recurrenceOf": completed.ID})
		}
	}
	return Success(completed)
}

// Uncomplete reopens a completed task and withdraws its pending approval request.
func (s *TaskService) Uncomplete(ctx context.Context, session models.SessionContext, id string) Result[models.Task] {
	task, err := s.load(ctx, session, id)
	if err != nil {
		return Fail[models.Task](err)
	}

	if !canWork(*task, session) || (task.IsApproved() && !canReview(*task, session)) {
		return Fail[models.Task](ErrTaskPermissionDenied)
	}

	reopened, err := task.Uncomplete(s.now())
	if err != nil {
		return Fail[models.Task](err)
	}
	if err := s.tasks.Update(ctx, reopened); err != nil {
		return Fail[models.Task](err)
	}
	if task.IsPendingApproval() {
		if err := s.approvals.cancelForTask(ctx, session, task.ID); err != nil {
			log.Printf("Failed to cancel approval for reopened task %s: %v", task.ID, err)
		}
	}
	s.history.Record(ctx, models.ActionTaskUncompleted, session, &reopened, nil)
	return Success(reopened)
}

// Cancel retires a pending task. A cancelled task stays listed but can no
// longer be completed, edited or postponed.
func (s *TaskService) Cancel(ctx context.Context, session models.SessionContext, id string) Result[models.Task] {
	task, err := s.load(ctx, session, id)
	if err != nil {
		return Fail[models.Task](err)
	}
	if !canManage(*task, session) {
		return Fail[models.Task](ErrTaskPermissionDenied)
	}

	cancelled, err := task.Cancel(s.now())
	if err != nil {
		return Fail[models.Task](err)
	}
	if err := s.tasks.Update(ctx, cancelled); err != nil {
		return Fail[models.Task](err)
	}
	s.history.Record(ctx, models.ActionTaskCancelled, session, &cancelled, nil)
	return Success(cancelled)
}

// Postpone moves a task to a new date and records who did it.
func (s *TaskService) Postpone(ctx context.Context, session models.SessionContext, id string, date time.Time, clock *string) Result[models.Task] {
	task, err := s.load(ctx, session, id)
	if err != nil {
		return Fail[models.Task](err)
	}
	if !canWork(*task, session) {
		return Fail[models.Task](ErrTaskPermissionDenied)
	}

	postponed, err := task.Postpone(date, clock, s.now())
	if err != nil {
		return Fail[models.Task](err)
	}
	if err := s.tasks.Update(ctx, postponed); err != nil {
		return Fail[models.Task](err)
	}
	s.history.Record(ctx, models.ActionTaskPostponed, session, &postponed, map[string]any{
		"from":          task.Date.Format(time.DateOnly),
		"to":            postponed.Date.Format(time.DateOnly),
		"postponeCount": postponed.PostponeCount,
	})
	return Success(postponed)
}

func (s *TaskService) AddSubtask(ctx context.Context, session models.SessionContext, id string, input SubtaskInput) Result[models.Task] {
	return s.editSubtasks(ctx, session, id, "added", func(task models.Task, at time.Time) (models.Task, error) {
		return task.AddSubtask(uuid.NewString(), input.Title, input.DueDate, input.DueTime, at)
	})
}

func (s *TaskService) UpdateSubtask(ctx context.Context, session models.SessionContext, id, subtaskID string, patch models.SubtaskPatch) Result[models.Task] {
	return s.editSubtasks(ctx, session, id, "updated", func(task models.Task, at time.Time) (models.Task, error) {
		return task.UpdateSubtask(subtaskID, patch, at)
	})
}

func (s *TaskService) ToggleSubtask(ctx context.Context, session models.SessionContext, id, subtaskID string) Result[models.Task] {
	return s.editSubtasks(ctx, session, id, "toggled", func(task models.Task, at time.Time) (models.Task, error) {
		return task.ToggleSubtask(subtaskID, at)
	})
}

func (s *TaskService) RemoveSubtask(ctx context.Context, session models.SessionContext, id, subtaskID string) Result[models.Task] {
	return s.editSubtasks(ctx, session, id, "removed", func(task models.Task, at time.Time) (models.Task, error) {
		return task.RemoveSubtask(subtaskID, at)
	})
}

func (s *TaskService) ReorderSubtasks(ctx context.Context, session models.SessionContext, id string, subtaskIDs []string) Result[models.Task] {
	return s.editSubtasks(ctx, session, id, "reordered", func(task models.Task, at time.Time) (models.Task, error) {
		return task.ReorderSubtasks(subtaskIDs, at)
	})
}

func (s *TaskService) editSubtasks(ctx context.Context, session models.SessionContext, id, change string, edit func(models.Task, time.Time) (models.Task, error)) Result[models.Task] {
	task, err := s.load(ctx, session, id)
	if err != nil {
		return Fail[models.Task](err)
	}
	if !canWork(*task, session) {
		return Fail[models.Task](ErrTaskPermissionDenied)
	}

	updated, err := edit(*task, s.now())
	if err != nil {
		return Fail[models.Task](err)
	}
	if err := s.tasks.Update(ctx, updated); err != nil {
		return Fail[models.Task](err)
	}
	s.history.Record(ctx, models.ActionTaskUpdated, session, &updated, map[string]any{"subtasks": change})
	return Success(updated)
}

// load fetches a task and hides it from sessions that may not see it.
func (s *TaskService) load(ctx context.Context, session models.SessionContext, id string) (*models.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, taskLookupError(err)
	}
	if !canSee(*task, session) {
		return nil, ErrTaskNotFound
	}
	return task, nil
}

func (s *TaskService) checkAssignee(session models.SessionContext, familyID, assignee *string) error {
	if assignee == nil || *assignee == "" || *assignee == session.UserID {
		return nil
	}
	if familyID == nil {
		return ErrInvalidTaskAssignee
	}
	if _, err := s.families.FindMember(*familyID, *assignee); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidTaskAssignee
		}
		return apperrors.Repository("failed to verify assignee", err)
	}
	return nil
}

func taskLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrTaskNotFound
	}
	if apperrors.KindOf(err) == "" {
		return apperrors.Repository("failed to load task", err)
	}
	return err
}

func sameFamily(task models.Task, session models.SessionContext) bool {
	return session.InFamily(task.FamilyID)
}

func isAssignee(task models.Task, session models.SessionContext) bool {
	return task.AssignedTo != nil && *task.AssignedTo == session.UserID
}

func canSee(task models.Task, session models.SessionContext) bool {
	return task.ReadableBy(session)
}

// canWork allows the creator, the assignee and the family's parents to edit.
func canWork(task models.Task, session models.SessionContext) bool {
	return task.CreatedBy == session.UserID || isAssignee(task, session) || canManage(task, session)
}

// canReview is the family's parents: the only ones who may undo an approval.
func canReview(task models.Task, session models.SessionContext) bool {
	return sameFamily(task, session) && session.Role.IsElevated()
}

func canManage(task models.Task, session models.SessionContext) bool {
	return task.CreatedBy == session.UserID || (sameFamily(task, session) && session.Role.IsElevated())
}
