package models

import (
	"encoding/json"
	"time"

	"github.com/yukikurage/family-task-sync/internal/constants"
)

type OperationType string

const (
	OperationCreate OperationType = "create"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

type OperationStatus string

const (
	OperationPending OperationStatus = "pending"
	OperationFailed  OperationStatus = "failed"
)

// PendingOperation is an outbox entry: a mutation not yet confirmed by the remote store.
// Payload is the JSON encoding of the typed entity, re-materialised at drain time.
type PendingOperation struct {
	ID         string          `gorm:"primarykey;type:varchar(36)" json:"id"`
	Seq        int64           `gorm:"not null;uniqueIndex" json:"seq"`
	Type       OperationType   `gorm:"type:varchar(10);not null" json:"type"`
	Collection string          `gorm:"type:varchar(64);not null;index:idx_pending_doc" json:"collection"`
	DocumentID string          `gorm:"type:varchar(64);not null;index:idx_pending_doc" json:"document_id"`
	Payload    string          `gorm:"type:text" json:"payload,omitempty"`
	EnqueuedAt time.Time       `gorm:"not null" json:"enqueued_at"`
	Retry      int             `gorm:"not null;default:0" json:"retry"`
	LastError  string          `gorm:"type:text" json:"last_error,omitempty"`
	Status     OperationStatus `gorm:"type:varchar(10);not null;index" json:"status"`
}

// DocKey identifies the remote document the operation targets.
func (p PendingOperation) DocKey() string {
	return p.Collection + "/" + p.DocumentID
}

// CachedTask is the local copy of a task, used for reads while offline.
type CachedTask struct {
	ID         string  `gorm:"primarykey;type:varchar(36)"`
	CreatedBy  string  `gorm:"type:varchar(36);not null"`
	AssignedTo *string `gorm:"type:varchar(36);index"`
	FamilyID   *string `gorm:"type:varchar(36)"`
	Private    bool    `gorm:"not null"`
	Data       Task    `gorm:"serializer:json"`
	Dirty      bool    `gorm:"not null;default:false"`
	SyncedAt   *time.Time
	UpdatedAt  time.Time
}

// CachedApproval is the local copy of an approval request.
type CachedApproval struct {
	ID        string          `gorm:"primarykey;type:varchar(36)"`
	TaskID    string          `gorm:"type:varchar(36);not null;index"`
	FamilyID  string          `gorm:"type:varchar(36);not null;index"`
	Status    ApprovalStatus  `gorm:"type:varchar(20);not null"`
	Data      ApprovalRequest `gorm:"serializer:json"`
	Dirty     bool            `gorm:"not null;default:false"`
	UpdatedAt time.Time
}

// SyncState is the single-row record of the last completed drain.
type SyncState struct {
	ID       uint  `gorm:"primarykey"`
	LastSync int64 `gorm:"not null;default:0"`
}

// OfflineData is the persisted local state as a single value.
type OfflineData struct {
	Tasks             map[string]Task        `json:"tasks"`
	PendingOperations []PendingOperation     `json:"pendingOperations"`
	LastSync          int64                  `json:"lastSync"`
	History           map[string]HistoryItem `json:"history"`
}

// ScopedTo keeps the parts of the local state the session may read. Queued
// deletes carry no payload and are kept only while their task is still cached
// and readable.
func (d OfflineData) ScopedTo(session SessionContext) OfflineData {
	scoped := OfflineData{
		Tasks:             make(map[string]Task),
		PendingOperations: []PendingOperation{},
		LastSync:          d.LastSync,
		History:           make(map[string]HistoryItem),
	}
	for id, task := range d.Tasks {
		if task.ReadableBy(session) {
			scoped.Tasks[id] = task
		}
	}
	for id, item := range d.History {
		if item.ActorID == session.UserID || session.InFamily(item.FamilyID) {
			scoped.History[id] = item
		}
	}
	for _, op := range d.PendingOperations {
		if op.readableBy(session, scoped.Tasks) {
			scoped.PendingOperations = append(scoped.PendingOperations, op)
		}
	}
	return scoped
}

// operationOwners holds the ownership fields shared by every queued payload.
type operationOwners struct {
	CreatedBy   string  `json:"createdBy"`
	AssignedTo  *string `json:"assignedTo"`
	FamilyID    *string `json:"familyId"`
	Private     bool    `json:"private"`
	ActorID     string  `json:"actorId"`
	RequesterID string  `json:"requesterId"`
	RecipientID string  `json:"recipientId"`
}

func (p PendingOperation) readableBy(session SessionContext, tasks map[string]Task) bool {
	if p.Payload == "" {
		_, ok := tasks[p.DocumentID]
		return ok
	}
	var owners operationOwners
	if err := json.Unmarshal([]byte(p.Payload), &owners); err != nil {
		return false
	}
	switch p.Collection {
	case constants.CollectionTasks:
		return Task{
			CreatedBy:  owners.CreatedBy,
			AssignedTo: owners.AssignedTo,
			FamilyID:   owners.FamilyID,
			Private:    owners.Private,
		}.ReadableBy(session)
	case constants.CollectionApprovals:
		return owners.RequesterID == session.UserID || session.InFamily(owners.FamilyID)
	case constants.CollectionHistory:
		return owners.ActorID == session.UserID || session.InFamily(owners.FamilyID)
	case constants.CollectionNotifications:
		return owners.RecipientID == session.UserID
	default:
		return false
	}
}
