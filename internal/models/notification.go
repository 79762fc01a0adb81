package models

import "time"

// Notification is the document handed to the push-scheduling collaborator.
type Notification struct {
	ID            string    `json:"id"`
	RecipientID   string    `json:"recipientId"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	TaskID        *string   `json:"taskId,omitempty"`
	ApprovalID    *string   `json:"approvalId,omitempty"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
	SchemaVersion int       `json:"schemaVersion"`
}
