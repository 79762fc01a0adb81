package dto

import (
	"time"

	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
)

// UserDTO represents a user in API responses
type UserDTO struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
}

// RepeatDTO is the repeat rule as sent by clients. Dates are YYYY-MM-DD.
type RepeatDTO struct {
	Type       models.RepeatType `json:"type"`
	Interval   int               `json:"interval"`
	DaysOfWeek []int             `json:"daysOfWeek,omitempty"`
	EndDate    *string           `json:"endDate,omitempty"`
}

// CreateTaskRequest is the body of POST /api/tasks
type CreateTaskRequest struct {
	Title            string     `json:"title" binding:"required"`
	Description      *string    `json:"description"`
	Category         string     `json:"category"`
	Priority         string     `json:"priority"`
	Date             string     `json:"date" binding:"required"`
	Time             *string    `json:"time"`
	AssignedTo       *string    `json:"assignedTo"`
	Private          bool       `json:"private"`
	RequiresApproval bool       `json:"requiresApproval"`
	Repeat           *RepeatDTO `json:"repeat"`
}

// UpdateTaskRequest is the body of PATCH /api/tasks/:id. Omitted fields are left untouched.
type UpdateTaskRequest struct {
	Title            *string    `json:"title"`
	Description      *string    `json:"description"`
	Category         *string    `json:"category"`
	Priority         *string    `json:"priority"`
	Date             *string    `json:"date"`
	Time             *string    `json:"time"`
	ClearTime        bool       `json:"clearTime"`
	AssignedTo       *string    `json:"assignedTo"`
	ClearAssignee    bool       `json:"clearAssignee"`
	FamilyID         *string    `json:"familyId"`
	MakePrivate      bool       `json:"makePrivate"`
	RequiresApproval *bool      `json:"requiresApproval"`
	Repeat           *RepeatDTO `json:"repeat"`
}

// PostponeRequest is the body of POST /api/tasks/:id/postpone
type PostponeRequest struct {
	Date string  `json:"date" binding:"required"`
	Time *string `json:"time"`
}

// SubtaskRequest is the body of POST /api/tasks/:id/subtasks
type SubtaskRequest struct {
	Title   string  `json:"title" binding:"required"`
	DueDate *string `json:"dueDate"`
	DueTime *string `json:"dueTime"`
}

// UpdateSubtaskRequest is the body of PATCH /api/tasks/:id/subtasks/:subtask_id
type UpdateSubtaskRequest struct {
	Title     *string `json:"title"`
	Completed *bool   `json:"completed"`
	DueDate   *string `json:"dueDate"`
	DueTime   *string `json:"dueTime"`
}

// ReorderSubtasksRequest is the body of POST /api/tasks/:id/subtasks/reorder
type ReorderSubtasksRequest struct {
	SubtaskIDs []string `json:"subtaskIds" binding:"required"`
}

// TaskListResponse represents the merged task list of a session
type TaskListResponse struct {
	Tasks []models.Task `json:"tasks"`
	Count int           `json:"count"`
}

// Conversion functions

// ToUserDTO converts a User model to UserDTO
func ToUserDTO(user models.User) UserDTO {
	return UserDTO{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
	}
}

// ToTaskListResponse wraps tasks, never encoding a nil slice
func ToTaskListResponse(tasks []models.Task) TaskListResponse {
	if tasks == nil {
		tasks = []models.Task{}
	}
	return TaskListResponse{Tasks: tasks, Count: len(tasks)}
}

// ParseDate parses a YYYY-MM-DD calendar date as midnight UTC
func ParseDate(value string) (time.Time, error) {
	date, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, apperrors.Validation("dates must be formatted as YYYY-MM-DD")
	}
	return date, nil
}

func parseOptionalDate(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	date, err := ParseDate(*value)
	if err != nil {
		return nil, err
	}
	return &date, nil
}

// ToRepeatConfig converts the client rule to the model's
func (r *RepeatDTO) ToRepeatConfig() (models.RepeatConfig, error) {
	if r == nil {
		return models.RepeatConfig{}, nil
	}
	endDate, err := parseOptionalDate(r.EndDate)
	if err != nil {
		return models.RepeatConfig{}, err
	}
	config := models.RepeatConfig{Type: r.Type, Interval: r.Interval, EndDate: endDate}
	for _, d := range r.DaysOfWeek {
		config.DaysOfWeek = append(config.DaysOfWeek, time.Weekday(d))
	}
	return config, nil
}

// ToPatch converts the request to a TaskPatch
func (r UpdateTaskRequest) ToPatch() (models.TaskPatch, error) {
	patch := models.TaskPatch{
		Title:            r.Title,
		Description:      r.Description,
		Category:         r.Category,
		Time:             r.Time,
		ClearTime:        r.ClearTime,
		AssignedTo:       r.AssignedTo,
		ClearAssignee:    r.ClearAssignee,
		FamilyID:         r.FamilyID,
		MakePrivate:      r.MakePrivate,
		RequiresApproval: r.RequiresApproval,
	}
	if r.Priority != nil {
		priority := models.Priority(*r.Priority)
		patch.Priority = &priority
	}

	date, err := parseOptionalDate(r.Date)
	if err != nil {
		return models.TaskPatch{}, err
	}
	patch.Date = date

	if r.Repeat != nil {
		repeat, err := r.Repeat.ToRepeatConfig()
		if err != nil {
			return models.TaskPatch{}, err
		}
		patch.Repeat = &repeat
	}
	return patch, nil
}

// ToSubtaskPatch converts the request to a SubtaskPatch
func (r UpdateSubtaskRequest) ToSubtaskPatch() (models.SubtaskPatch, error) {
	dueDate, err := parseOptionalDate(r.DueDate)
	if err != nil {
		return models.SubtaskPatch{}, err
	}
	return models.SubtaskPatch{
		Title:     r.Title,
		Completed: r.Completed,
		DueDate:   dueDate,
		DueTime:   r.DueTime,
	}, nil
}

// ParsedDueDate parses the optional due date of a new subtask
func (r SubtaskRequest) ParsedDueDate() (*time.Time, error) {
	return parseOptionalDate(r.DueDate)
}
