package models

import (
	"strings"
	"time"

	apperrors "github.com/yukikurage/family-task-sync/internal/errors"
)

type ApprovalRequest struct {
	ID            string         `json:"id"`
	TaskID        string         `json:"taskId"`
	TaskTitle     string         `json:"taskTitle"`
	RequesterID   string         `json:"requesterId"`
	RequesterName string         `json:"requesterName"`
	FamilyID      string         `json:"familyId"`
	Status        ApprovalStatus `json:"status"`
	ReviewerID    *string        `json:"reviewerId,omitempty"`
	ReviewerName  *string        `json:"reviewerName,omitempty"`
	Comment       *string        `json:"comment,omitempty"`
	ReviewedAt    *time.Time     `json:"reviewedAt,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	SchemaVersion int            `json:"schemaVersion"`
}

// NewApprovalRequest opens a pending request for a completed task awaiting review.
func NewApprovalRequest(id string, task Task, requesterID, requesterName string, at time.Time) (ApprovalRequest, error) {
	if !task.RequiresApproval {
		return ApprovalRequest{}, apperrors.Domain(apperrors.ErrCodeApprovalNotRequired, "task does not require approval")
	}
	if task.FamilyID == nil {
		return ApprovalRequest{}, apperrors.Validation("approval requires a family task")
	}
	if strings.TrimSpace(requesterID) == "" {
		return ApprovalRequest{}, apperrors.Validation("requester is required")
	}

	return ApprovalRequest{
		ID:            id,
		TaskID:        task.ID,
		TaskTitle:     task.Title,
		RequesterID:   requesterID,
		RequesterName: requesterName,
		FamilyID:      *task.FamilyID,
		Status:        ApprovalPending,
		CreatedAt:     at,
		SchemaVersion: ApprovalSchemaVersion,
	}, nil
}

func (a ApprovalRequest) IsPending() bool {
	return a.Status == ApprovalPending
}

func (a ApprovalRequest) Approve(reviewerID, reviewerName string, comment *string, at time.Time) (ApprovalRequest, error) {
	return a.resolve(ApprovalApproved, reviewerID, reviewerName, comment, at)
}

func (a ApprovalRequest) Reject(reviewerID, reviewerName string, comment *string, at time.Time) (ApprovalRequest, error) {
	return a.resolve(ApprovalRejected, reviewerID, reviewerName, comment, at)
}

// Cancel withdraws a pending request. Only the requester may cancel; callers enforce that.
func (a ApprovalRequest) Cancel(at time.Time) (ApprovalRequest, error) {
	if !a.IsPending() {
		return ApprovalRequest{}, apperrors.Domain(apperrors.ErrCodeApprovalNotPending, "approval request is not pending")
	}
	next := a
	next.Status = ApprovalCancelled
	next.ReviewedAt = &at
	return next, nil
}

func (a ApprovalRequest) resolve(status ApprovalStatus, reviewerID, reviewerName string, comment *string, at time.Time) (ApprovalRequest, error) {
	if !a.IsPending() {
		return ApprovalRequest{}, apperrors.Domain(apperrors.ErrCodeApprovalNotPending, "approval request is not pending")
	}
	if reviewerID == a.RequesterID {
		return ApprovalRequest{}, apperrors.NotAuthorized("requesters cannot review their own request")
	}

	next := a
	next.Status = status
	next.ReviewerID = &reviewerID
	next.ReviewerName = &reviewerName
	next.Comment = nonEmpty(comment)
	next.ReviewedAt = &at
	return next, nil
}
