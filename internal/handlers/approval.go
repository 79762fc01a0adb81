package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/services"
)

type ApprovalHandler struct {
	approvals *services.ApprovalService
}

func NewApprovalHandler(approvals *services.ApprovalService) *ApprovalHandler {
	return &ApprovalHandler{approvals: approvals}
}

type reviewRequest struct {
	Comment *string `json:"comment"`
}

// ListPending returns the open approval requests of the session's family
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	result := h.approvals.ListPending(c.Request.Context(), session)
	if !result.IsSuccess {
		respondFailure(c, result)
		return
	}

	approvals := result.Value
	if approvals == nil {
		approvals = []models.ApprovalRequest{}
	}
	c.JSON(http.StatusOK, gin.H{
		"approvals": approvals,
		"count":     len(approvals),
	})
}

func (h *ApprovalHandler) Approve(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	req, ok := bindReview(c)
	if !ok {
		return
	}

	result := h.approvals.Approve(c.Request.Context(), session, c.Param("id"), req.Comment)
	respondResult(c, http.StatusOK, result)
}

// Reject closes the request; the task it was about is deleted
func (h *ApprovalHandler) Reject(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	req, ok := bindReview(c)
	if !ok {
		return
	}

	result := h.approvals.Reject(c.Request.Context(), session, c.Param("id"), req.Comment)
	respondResult(c, http.StatusOK, result)
}

func (h *ApprovalHandler) Cancel(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	result := h.approvals.Cancel(c.Request.Context(), session, c.Param("id"))
	respondResult(c, http.StatusOK, result)
}

// bindReview reads the optional review comment; an empty body is allowed.
func bindReview(c *gin.Context) (reviewRequest, bool) {
	var req reviewRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return req, false
	}
	return req, true
}
