package models

import "time"

type HistoryAction string

const (
	ActionTaskCreated       HistoryAction = "task_created"
	ActionTaskUpdated       HistoryAction = "task_updated"
	ActionTaskDeleted       HistoryAction = "task_deleted"
	ActionTaskCompleted     HistoryAction = "task_completed"
	ActionTaskUncompleted   HistoryAction = "task_uncompleted"
	ActionTaskPostponed     HistoryAction = "task_postponed"
	ActionTaskCancelled     HistoryAction = "task_cancelled"
	ActionApprovalRequested HistoryAction = "approval_requested"
	ActionApprovalApproved  HistoryAction = "approval_approved"
	ActionApprovalRejected  HistoryAction = "approval_rejected"
	ActionApprovalCancelled HistoryAction = "approval_cancelled"
)

// HistoryItem is an append-only audit record. It doubles as the local history row.
type HistoryItem struct {
	ID            string         `gorm:"primarykey;type:varchar(36)" json:"id"`
	Action        HistoryAction  `gorm:"type:varchar(40);not null;index" json:"action"`
	Timestamp     time.Time      `gorm:"not null;index" json:"timestamp"`
	ActorID       string         `gorm:"type:varchar(36);not null" json:"actorId"`
	ActorName     string         `gorm:"type:varchar(255)" json:"actorName"`
	TaskID        *string        `gorm:"type:varchar(36);index" json:"taskId,omitempty"`
	TaskTitle     *string        `gorm:"type:varchar(255)" json:"taskTitle,omitempty"`
	FamilyID      *string        `gorm:"type:varchar(36);index" json:"familyId,omitempty"`
	Details       map[string]any `gorm:"serializer:json" json:"details,omitempty"`
	SchemaVersion int            `json:"schemaVersion"`
}

// NewHistoryItem builds an item about task performed by actor.
func NewHistoryItem(id string, action HistoryAction, actor SessionContext, task *Task, details map[string]any, at time.Time) HistoryItem {
	item := HistoryItem{
		ID:            id,
		Action:        action,
		Timestamp:     at,
		ActorID:       actor.UserID,
		ActorName:     actor.DisplayName,
		Details:       details,
		SchemaVersion: HistorySchemaVersion,
	}
	if task != nil {
		taskID := task.ID
		title := task.Title
		item.TaskID = &taskID
		item.TaskTitle = &title
		item.FamilyID = task.FamilyID
	} else if actor.FamilyID != nil {
		familyID := *actor.FamilyID
		item.FamilyID = &familyID
	}
	return item
}
