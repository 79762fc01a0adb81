package models

import (
	"strings"
	"time"

	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
)

type Subtask struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Completed bool       `json:"completed"`
	Order     int        `json:"order"`
	DueDate   *time.Time `json:"dueDate,omitempty"`
	DueTime   *string    `json:"dueTime,omitempty"`
}

// SubtaskPatch carries the optional fields accepted by UpdateSubtask.
type SubtaskPatch struct {
	Title     *string
	Completed *bool
	DueDate   *time.Time
	DueTime   *string
}

func (t Task) AddSubtask(id, title string, dueDate *time.Time, dueTime *string, at time.Time) (Task, error) {
	if !t.CanEdit() {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskNotEditable, "subtasks cannot be changed on this task")
	}
	title = strings.TrimSpace(title)
	if err := validateTitle(title); err != nil {
		return Task{}, err
	}
	if err := validateClock(dueTime); err != nil {
		return Task{}, err
	}

	next := t.clone()
	next.Subtasks = append(next.Subtasks, Subtask{
		ID:      id,
		Title:   title,
		Order:   len(next.Subtasks),
		DueDate: dueDate,
		DueTime: nonEmpty(dueTime),
	})
	next.UpdatedAt = at
	return next, nil
}

func (t Task) UpdateSubtask(id string, patch SubtaskPatch, at time.Time) (Task, error) {
	if !t.CanEdit() {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskNotEditable, "subtasks cannot be changed on this task")
	}
	next := t.clone()
	idx := next.subtaskIndex(id)
	if idx < 0 {
		return Task{}, apperrors.Domain(apperrors.ErrCodeSubtaskNotFound, "subtask not found")
	}

	sub := next.Subtasks[idx]
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if err := validateTitle(title); err != nil {
			return Task{}, err
		}
		sub.Title = title
	}
	if patch.Completed != nil {
		sub.Completed = *patch.Completed
	}
	if patch.DueDate != nil {
		sub.DueDate = patch.DueDate
	}
	if patch.DueTime != nil {
		if err := validateClock(patch.DueTime); err != nil {
			return Task{}, err
		}
		sub.DueTime = nonEmpty(patch.DueTime)
	}
	next.Subtasks[idx] = sub
	next.UpdatedAt = at
	return next, nil
}

// ToggleSubtask flips the completed flag of one subtask.
func (t Task) ToggleSubtask(id string, at time.Time) (Task, error) {
	idx := t.subtaskIndex(id)
	if idx < 0 {
		return Task{}, apperrors.Domain(apperrors.ErrCodeSubtaskNotFound, "subtask not found")
	}
	completed := !t.Subtasks[idx].Completed
	return t.UpdateSubtask(id, SubtaskPatch{Completed: &completed}, at)
}

func (t Task) CompleteSubtask(id string, at time.Time) (Task, error) {
	completed := true
	return t.UpdateSubtask(id, SubtaskPatch{Completed: &completed}, at)
}

func (t Task) RemoveSubtask(id string, at time.Time) (Task, error) {
	if !t.CanEdit() {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskNotEditable, "subtasks cannot be changed on this task")
	}
	idx := t.subtaskIndex(id)
	if idx < 0 {
		return Task{}, apperrors.Domain(apperrors.ErrCodeSubtaskNotFound, "subtask not found")
	}

	next := t.clone()
	next.Subtasks = append(next.Subtasks[:idx], next.Subtasks[idx+1:]...)
	renumber(next.Subtasks)
	next.UpdatedAt = at
	return next, nil
}

// ReorderSubtasks arranges subtasks in the order of ids, which must name every subtask exactly once.
func (t Task) ReorderSubtasks(ids []string, at time.Time) (Task, error) {
	if !t.CanEdit() {
		return Task{}, apperrors.Domain(apperrors.ErrCodeTaskNotEditable, "subtasks cannot be changed on this task")
	}
	if len(ids) != len(t.Subtasks) {
		return Task{}, apperrors.Validation("reorder must list every subtask exactly once")
	}

	byID := make(map[string]Subtask, len(t.Subtasks))
	for _, s := range t.Subtasks {
		byID[s.ID] = s
	}

	ordered := make([]Subtask, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return Task{}, apperrors.Validation("reorder must list every subtask exactly once")
		}
		delete(byID, id)
		ordered = append(ordered, s)
	}
	renumber(ordered)

	next := t.clone()
	next.Subtasks = ordered
	next.UpdatedAt = at
	return next, nil
}

func (t Task) subtaskIndex(id string) int {
	for i, s := range t.Subtasks {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func renumber(subtasks []Subtask) {
	for i := range subtasks {
		subtasks[i].Order = i
	}
}
