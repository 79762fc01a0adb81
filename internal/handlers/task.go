package handlers

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/family-task-sync/internal/constants"
	"github.com/yukikurage/family-task-sync/internal/dto"
	apierrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/middleware"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/services"
)

type TaskHandler struct {
	tasks     *services.TaskService
	approvals *services.ApprovalService
	heartbeat time.Duration
}

func NewTaskHandler(tasks *services.TaskService, approvals *services.ApprovalService) *TaskHandler {
	return &TaskHandler{
		tasks:     tasks,
		approvals: approvals,
		heartbeat: constants.StreamHeartbeat,
	}
}

// ListTasks returns the merged task list of the session
func (h *TaskHandler) ListTasks(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	result := h.tasks.List(c.Request.Context(), session)
	if !result.IsSuccess {
		respondFailure(c, result)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskListResponse(result.Value))
}

// StreamTasks sends the merged task list as server-sent events, one "tasks"
// event per change, until the client goes away
func (h *TaskHandler) StreamTasks(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	updates, err := h.tasks.Stream(ctx, session)
	if err != nil {
		log.Printf("Failed to open task stream for user %s: %v", session.UserID, err)
		apierrors.ServiceUnavailable(c, "Task stream unavailable")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case tasks, open := <-updates:
			if !open {
				return
			}
			c.SSEvent("tasks", dto.ToTaskListResponse(tasks))
		case <-heartbeat.C:
			if _, err := io.WriteString(c.Writer, ": ping\n\n"); err != nil {
				return
			}
		}
		c.Writer.Flush()
	}
}

// GetTask returns a specific task by ID
// Task is already loaded by RequireTaskAccess middleware
func (h *TaskHandler) GetTask(c *gin.Context) {
	task, ok := middleware.GetTask(c)
	if !ok {
		apierrors.InternalError(c, "Task not found in context")
		return
	}

	c.JSON(http.StatusOK, task)
}

// CreateTask creates a new task
func (h *TaskHandler) CreateTask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	date, err := dto.ParseDate(req.Date)
	if err != nil {
		bindError(c, err)
		return
	}
	repeat, err := req.Repeat.ToRepeatConfig()
	if err != nil {
		bindError(c, err)
		return
	}

	result := h.tasks.Create(c.Request.Context(), session, services.CreateTaskInput{
		Title:            req.Title,
		Description:      req.Description,
		Category:         req.Category,
		Priority:         models.Priority(req.Priority),
		Date:             date,
		Time:             req.Time,
		AssignedTo:       req.AssignedTo,
		Private:          req.Private,
		RequiresApproval: req.RequiresApproval,
		Repeat:           repeat,
	})
	respondResult(c, http.StatusCreated, result)
}

// UpdateTask applies the fields present in the body
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	patch, err := req.ToPatch()
	if err != nil {
		bindError(c, err)
		return
	}

	result := h.tasks.Update(c.Request.Context(), session, c.Param("id"), patch)
	respondResult(c, http.StatusOK, result)
}

// DeleteTask deletes a task
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	result := h.tasks.Delete(c.Request.Context(), session, c.Param("id"))
	if !result.IsSuccess {
		respondFailure(c, result)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// CompleteTask marks a task done, or submits it for review when it requires approval
func (h *TaskHandler) CompleteTask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	result := h.tasks.Complete(c.Request.Context(), session, c.Param("id"))
	respondResult(c, http.StatusOK, result)
}

func (h *TaskHandler) UncompleteTask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	result := h.tasks.Uncomplete(c.Request.Context(), session, c.Param("id"))
	respondResult(c, http.StatusOK, result)
}

// CancelTask retires a pending task
func (h *TaskHandler) CancelTask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	result := h.tasks.Cancel(c.Request.Context(), session, c.Param("id"))
	respondResult(c, http.StatusOK, result)
}

// PostponeTask moves a task to a later date
func (h *TaskHandler) PostponeTask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	var req dto.PostponeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	date, err := dto.ParseDate(req.Date)
	if err != nil {
		bindError(c, err)
		return
	}

	result := h.tasks.Postpone(c.Request.Context(), session, c.Param("id"), date, req.Time)
	respondResult(c, http.StatusOK, result)
}

func (h *TaskHandler) AddSubtask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	var req dto.SubtaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	dueDate, err := req.ParsedDueDate()
	if err != nil {
		bindError(c, err)
		return
	}

	result := h.tasks.AddSubtask(c.Request.Context(), session, c.Param("id"), services.SubtaskInput{
		Title:   req.Title,
		DueDate: dueDate,
		DueTime: req.DueTime,
	})
	respondResult(c, http.StatusCreated, result)
}

func (h *TaskHandler) UpdateSubtask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	var req dto.UpdateSubtaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	patch, err := req.ToSubtaskPatch()
	if err != nil {
		bindError(c, err)
		return
	}

	result := h.tasks.UpdateSubtask(c.Request.Context(), session, c.Param("id"), c.Param("subtask_id"), patch)
	respondResult(c, http.StatusOK, result)
}

func (h *TaskHandler) ToggleSubtask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	result := h.tasks.ToggleSubtask(c.Request.Context(), session, c.Param("id"), c.Param("subtask_id"))
	respondResult(c, http.StatusOK, result)
}

func (h *TaskHandler) RemoveSubtask(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	result := h.tasks.RemoveSubtask(c.Request.Context(), session, c.Param("id"), c.Param("subtask_id"))
	respondResult(c, http.StatusOK, result)
}

// ReorderSubtasks sets the subtask order to the given id list
func (h *TaskHandler) ReorderSubtasks(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	var req dto.ReorderSubtasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	result := h.tasks.ReorderSubtasks(c.Request.Context(), session, c.Param("id"), req.SubtaskIDs)
	respondResult(c, http.StatusOK, result)
}

// RequestApproval opens an approval request for a completed task
func (h *TaskHandler) RequestApproval(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	result := h.approvals.RequestApproval(c.Request.Context(), session, c.Param("id"))
	respondResult(c, http.StatusCreated, result)
}
