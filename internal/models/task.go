package models

import (
	"regexp"
	"sort"
	"strings"
	"time"

	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// ApprovalStatus is shared by tasks (pending/approved/rejected) and approval
// requests, which may additionally be cancelled.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

const (
	DefaultCategory = "general"
	MaxTitleLength  = 200
)

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Task is an immutable snapshot. Every transition returns a new value.
type Task struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      *string         `json:"description,omitempty"`
	Category         string          `json:"category"`
	Priority         Priority        `json:"priority"`
	Status           TaskStatus      `json:"status"`
	Date             time.Time       `json:"date"`
	Time             *string         `json:"time,omitempty"`
	CreatedBy        string          `json:"createdBy"`
	AssignedTo       *string         `json:"assignedTo,omitempty"`
	FamilyID         *string         `json:"familyId,omitempty"`
	Private          bool            `json:"private"`
	Subtasks         []Subtask       `json:"subtasks"`
	RequiresApproval bool            `json:"requiresApproval"`
	ApprovalStatus   *ApprovalStatus `json:"approvalStatus,omitempty"`
	ApprovedBy       *string         `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time      `json:"approvedAt,omitempty"`
	CompletedBy      *string         `json:"completedBy,omitempty"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	PostponeCount    int             `json:"postponeCount"`
	OriginalDate     *time.Time      `json:"originalDate,omitempty"`
	Repeat           RepeatConfig    `json:"repeat"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
	EditedAt         *time.Time      `json:"editedAt,omitempty"`
	SchemaVersion    int             `json:"schemaVersion"`
}

// NewTaskInput holds the user-supplied fields of a new task.
type NewTaskInput struct {
	Title            string
	Description      *string
	Category         string
	Priority         Priority
	Date             time.Time
	Time             *string
	CreatedBy        string
	AssignedTo       *string
	FamilyID         *string
	RequiresApproval bool
	Repeat           RepeatConfig
}

// NewTask validates input and builds a pending task. A nil FamilyID makes the task private.
func NewTask(id string, input NewTaskInput, at time.Time) (Task, error) {
	title := strings.TrimSpace(input.Title)
	if err := validateTitle(title); err != nil {
		return Task{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Task{}, apperrors.Validation("task id is required")
	}
	if strings.TrimSpace(input.CreatedBy) == "" {
		return Task{}, apperrors.Validation("task creator is required")
	}
	if input.Date.IsZero() {
		return Task{}, apperrors.Validation("task date is required")
	}
	if err := validateClock(input.Time); err != nil {
		return Task{}, err
	}

	priority := input.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.IsValid() {
		return Task{}, apperrors.Validation("invalid priority: " + string(priority))
	}

	category := strings.TrimSpace(input.Category)
	if category == "" {
		category = DefaultCategory
	}

	repeat := input.Repeat.Normalize()
	if err := repeat.Validate(); err != nil {
		return Task{}, err
	}

	familyID := nonEmpty(input.FamilyID)
	if input.RequiresApproval && familyID == nil {
		return Task{}, apperrors.Validation("a private task cannot require approval")
	}

	return Task{
		ID:               id,
		Title:            title,
		Description:      nonEmpty(input.Description),
		Category:         category,
		Priority:         priority,
		Status:           TaskStatusPending,
		Date:             input.Date,
		Time:             nonEmpty(input.Time),
		CreatedBy:        input.CreatedBy,
		AssignedTo:       nonEmpty(input.AssignedTo),
		FamilyID:         familyID,
		Private:          familyID == nil,
		Subtasks:         []Subtask{},
		RequiresApproval: input.RequiresApproval,
		Repeat:           repeat,
		CreatedAt:        at,
		UpdatedAt:        at,
		SchemaVersion:    TaskSchemaVersion,
	}, nil
}

func (t Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}

func (t Task) IsPendingApproval() bool {
	return t.ApprovalStatus != nil && *t.ApprovalStatus == ApprovalPending
}

func (t Task) IsApproved() bool {
	return t.ApprovalStatus != nil && *t.ApprovalStatus == ApprovalApproved
}

// CanEdit reports whether the task may still be edited.
func (t Task) CanEdit() bool {
	return !t.IsCompleted() && !t.IsPendingApproval() && t.Status != TaskStatusCancelled
}

// LastTouched is updatedAt, falling back to editedAt and then createdAt.
func (t Task) LastTouched() time.Time {
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	if t.EditedAt != nil && !t.EditedAt.IsZero() {
		return *t.EditedAt
	}
	return t.CreatedAt
}

// ReadableBy matches the aggregator's segments: own tasks, plus shared tasks
// assigned to the user or belonging to their family.
func (t Task) ReadableBy(session SessionContext) bool {
	if t.CreatedBy == session.UserID {
		return true
	}
	if t.Private {
		return false
	}
	return (t.AssignedTo != nil && *t.AssignedTo == session.UserID) || session.InFamily(t.FamilyID)
}

// VisibleTo applies the privacy rule: a private task is visible only to its creator.
func (t Task) VisibleTo(userID string) bool {
	return !t.Private || t.CreatedBy == userID
}

func (t Task) Complete(by string, at time.Time) (Task, error) {
	switch t.Status {
	case TaskStatusCompleted:
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskAlreadyCompleted, "task is already completed")
	case TaskStatusCancelled:
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskCancelled, "task is cancelled")
	}

	next := t.clone()
	next.Status = TaskStatusCompleted
	next.CompletedAt = &at
	next.CompletedBy = &by
	if next.RequiresApproval {
		pending := ApprovalPending
		next.ApprovalStatus = &pending
		next.ApprovedBy = nil
		next.ApprovedAt = nil
	}
	next.UpdatedAt = at
	return next, nil
}

func (t Task) Uncomplete(at time.Time) (Task, error) {
	if !t.IsCompleted() {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskNotCompleted, "task is not completed")
	}

	next := t.clone()
	next.Status = TaskStatusPending
	next.clearCompletion()
	next.UpdatedAt = at
	return next, nil
}

// Postpone moves the task to newDate. originalDate is captured only on the first postponement.
func (t Task) Postpone(newDate time.Time, newTime *string, at time.Time) (Task, error) {
	if t.IsCompleted() {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskAlreadyCompleted, "cannot postpone a completed task")
	}
	if t.Status == TaskStatusCancelled {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskCancelled, "cannot postpone a cancelled task")
	}
	if newDate.IsZero() {
		return Task{}, apperrors.Validation("new date is required")
	}
	if err := validateClock(newTime); err != nil {
		return Task{}, err
	}

	next := t.clone()
	if next.OriginalDate == nil {
		original := t.Date
		next.OriginalDate = &original
	}
	next.PostponeCount++
	next.Date = newDate
	if newTime != nil {
		next.Time = nonEmpty(newTime)
	}
	next.UpdatedAt = at
	return next, nil
}

func (t Task) Approve(by string, at time.Time) (Task, error) {
	if !t.RequiresApproval {
		return Task{}, apperrors.Domain(apperrors.ErrCodeApprovalNotRequired, "task does not require approval")
	}
	if !t.IsPendingApproval() {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskNotPendingApproval, "task is not pending approval")
	}

	next := t.clone()
	approved := ApprovalApproved
	next.ApprovalStatus = &approved
	next.ApprovedBy = &by
	next.ApprovedAt = &at
	next.UpdatedAt = at
	return next, nil
}

// Reject sends the task back to pending with its completion cleared.
func (t Task) Reject(by string, at time.Time) (Task, error) {
	if !t.RequiresApproval {
		return Task{}, apperrors.Domain(apperrors.ErrCodeApprovalNotRequired, "task does not require approval")
	}
	if !t.IsPendingApproval() {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskNotPendingApproval, "task is not pending approval")
	}

	next := t.clone()
	next.Status = TaskStatusPending
	next.clearCompletion()
	rejected := ApprovalRejected
	next.ApprovalStatus = &rejected
	next.ApprovedBy = &by
	next.ApprovedAt = &at
	next.UpdatedAt = at
	return next, nil
}

func (t Task) Cancel(at time.Time) (Task, error) {
	if t.Status != TaskStatusPending {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskAlreadyCompleted, "only pending tasks can be cancelled")
	}
	next := t.clone()
	next.Status = TaskStatusCancelled
	next.UpdatedAt = at
	return next, nil
}

// TaskPatch is the restricted field set accepted by Update. Nil fields are left untouched.
type TaskPatch struct {
	Title            *string
	Description      *string
	Category         *string
	Priority         *Priority
	Date             *time.Time
	Time             *string
	ClearTime        bool
	AssignedTo       *string
	ClearAssignee    bool
	FamilyID         *string
	MakePrivate      bool
	RequiresApproval *bool
	Repeat           *RepeatConfig
}

func (t Task) Update(patch TaskPatch, at time.Time) (Task, error) {
	if !t.CanEdit() {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskNotEditable, "task cannot be edited while completed or awaiting approval")
	}

	next := t.clone()
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if err := validateTitle(title); err != nil {
			return Task{}, err
		}
		next.Title = title
	}
	if patch.Description != nil {
		next.Description = nonEmpty(patch.Description)
	}
	if patch.Category != nil {
		category := strings.TrimSpace(*patch.Category)
		if category == "" {
			category = DefaultCategory
		}
		next.Category = category
	}
	if patch.Priority != nil {
		if !patch.Priority.IsValid() {
			return Task{}, apperrors.Validation("invalid priority: " + string(*patch.Priority))
		}
		next.Priority = *patch.Priority
	}
	if patch.Date != nil {
		if patch.Date.IsZero() {
			return Task{}, apperrors.Validation("task date is required")
		}
		next.Date = *patch.Date
	}
	if patch.ClearTime {
		next.Time = nil
	} else if patch.Time != nil {
		if err := validateClock(patch.Time); err != nil {
			return Task{}, err
		}
		next.Time = nonEmpty(patch.Time)
	}
	if patch.ClearAssignee {
		next.AssignedTo = nil
	} else if patch.AssignedTo != nil {
		next.AssignedTo = nonEmpty(patch.AssignedTo)
	}
	if patch.MakePrivate {
		next.FamilyID = nil
	} else if patch.FamilyID != nil {
		next.FamilyID = nonEmpty(patch.FamilyID)
	}
	next.Private = next.FamilyID == nil
	if patch.RequiresApproval != nil {
		next.RequiresApproval = *patch.RequiresApproval
	}
	if next.RequiresApproval && next.Private {
		return Task{}, apperrors.Validation("a private task cannot require approval")
	}
	if patch.Repeat != nil {
		repeat := patch.Repeat.Normalize()
		if err := repeat.Validate(); err != nil {
			return Task{}, err
		}
		next.Repeat = repeat
	}

	next.EditedAt = &at
	next.UpdatedAt = at
	return next, nil
}

// NextOccurrence builds the following instance of a repeating task. ok is false when the
// task does not repeat or the series has ended.
func (t Task) NextOccurrence(id string, at time.Time) (Task, bool) {
	nextDate, ok := t.Repeat.NextDate(t.Date)
	if !ok {
		return Task{}, false
	}

	subtasks := make([]Subtask, len(t.Subtasks))
	for i, s := range t.Subtasks {
		s.Completed = false
		subtasks[i] = s
	}

	return Task{
		ID:               id,
		Title:            t.Title,
		Description:      t.Description,
		Category:         t.Category,
		Priority:         t.Priority,
		Status:           TaskStatusPending,
		Date:             nextDate,
		Time:             t.Time,
		CreatedBy:        t.CreatedBy,
		AssignedTo:       t.AssignedTo,
		FamilyID:         t.FamilyID,
		Private:          t.Private,
		Subtasks:         subtasks,
		RequiresApproval: t.RequiresApproval,
		Repeat:           t.Repeat.clone(),
		CreatedAt:        at,
		UpdatedAt:        at,
		SchemaVersion:    TaskSchemaVersion,
	}, true
}

func (t *Task) clearCompletion() {
	t.CompletedAt = nil
	t.CompletedBy = nil
	t.ApprovalStatus = nil
	t.ApprovedBy = nil
	t.ApprovedAt = nil
}

func (t Task) clone() Task {
	next := t
	next.Subtasks = make([]Subtask, len(t.Subtasks))
	copy(next.Subtasks, t.Subtasks)
	next.Repeat = t.Repeat.clone()
	return next
}

func validateTitle(title string) error {
	if title == "" {
		return apperrors.Validation("title is required")
	}
	if len([]rune(title)) > MaxTitleLength {
		return apperrors.Validation("title is too long")
	}
	return nil
}

func validateClock(value *string) error {
	if value == nil || *value == "" {
		return nil
	}
	if !clockPattern.MatchString(*value) {
		return apperrors.Validation("time must use HH:MM format")
	}
	return nil
}

func nonEmpty(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// SortByLastTouched orders tasks most recently touched first, breaking ties by id.
func SortByLastTouched(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].LastTouched(), tasks[j].LastTouched()
		if !a.Equal(b) {
			return a.After(b)
		}
		return tasks[i].ID < tasks[j].ID
	})
}
