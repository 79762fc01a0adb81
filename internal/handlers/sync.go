package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/outbox"
	"github.com/yukikurage/family-task-sync/internal/syncengine"
)

type SyncHandler struct {
	engine *syncengine.Engine
	outbox *outbox.Outbox
}

func NewSyncHandler(engine *syncengine.Engine, box *outbox.Outbox) *SyncHandler {
	return &SyncHandler{engine: engine, outbox: box}
}

// drainResponse summarises a drain for clients
type drainResponse struct {
	Applied   int                  `json:"applied"`
	Retried   int                  `json:"retried"`
	Exhausted []exhaustedOperation `json:"exhausted"`
	Skipped   int                  `json:"skipped"`
}

type exhaustedOperation struct {
	Operation models.PendingOperation `json:"operation"`
	Error     string                  `json:"error"`
}

func toDrainResponse(result outbox.DrainResult) drainResponse {
	resp := drainResponse{
		Applied:   len(result.Applied),
		Retried:   len(result.Retried),
		Exhausted: make([]exhaustedOperation, len(result.Exhausted)),
		Skipped:   result.Skipped,
	}
	for i, f := range result.Exhausted {
		resp.Exhausted[i] = exhaustedOperation{Operation: f.Operation, Error: f.Err.Error()}
	}
	return resp
}

// GetStatus reports connectivity and queue sizes
func (h *SyncHandler) GetStatus(c *gin.Context) {
	status, err := h.engine.Status(c.Request.Context())
	if err != nil {
		log.Printf("Failed to read sync status: %v", err)
		apierrors.InternalError(c, "Failed to read sync status")
		return
	}

	c.JSON(http.StatusOK, status)
}

// Trigger drains the outbox now
func (h *SyncHandler) Trigger(c *gin.Context) {
	result, err := h.engine.Trigger(c.Request.Context())
	if err != nil {
		respondSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, toDrainResponse(result))
}

// SetConnectivity records a connectivity change reported by the client.
// Coming back online drains the outbox before responding.
func (h *SyncHandler) SetConnectivity(c *gin.Context) {
	type ConnectivityRequest struct {
		Online *bool `json:"online" binding:"required"`
	}

	var req ConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	// The drain outlives a client that hangs up mid-request.
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.engine.SetOnline(ctx, *req.Online); err != nil {
		respondSyncError(c, err)
		return
	}

	status, err := h.engine.Status(ctx)
	if err != nil {
		log.Printf("Failed to read sync status: %v", err)
		apierrors.InternalError(c, "Failed to read sync status")
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetOfflineData exports the caller's share of the local cache and outbox
func (h *SyncHandler) GetOfflineData(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	data, err := h.engine.OfflineData(c.Request.Context(), session)
	if err != nil {
		respondSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, data)
}

// ListFailed returns the operations that ran out of retries
func (h *SyncHandler) ListFailed(c *gin.Context) {
	ops, err := h.outbox.Failed(c.Request.Context())
	if err != nil {
		respondSyncError(c, err)
		return
	}
	if ops == nil {
		ops = []models.PendingOperation{}
	}

	c.JSON(http.StatusOK, gin.H{
		"operations": ops,
		"count":      len(ops),
	})
}

// RetryFailed puts a failed operation back in the queue with fresh retries
func (h *SyncHandler) RetryFailed(c *gin.Context) {
	op, err := h.outbox.Requeue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, op)
}

// DiscardFailed drops a failed operation for good
func (h *SyncHandler) DiscardFailed(c *gin.Context) {
	op, err := h.outbox.Discard(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondSyncError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "Operation discarded",
		"operation": op,
	})
}

func respondSyncError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, syncengine.ErrOffline):
		apierrors.ServiceUnavailable(c, "Remote store is offline")
	case errors.Is(err, syncengine.ErrDraining):
		apierrors.Conflict(c, err.Error())
	case errors.Is(err, outbox.ErrOperationNotFound):
		apierrors.NotFoundResponse(c, err.Error())
	case errors.Is(err, outbox.ErrNotFailed):
		apierrors.Conflict(c, err.Error())
	default:
		log.Printf("Sync request failed: %v", err)
		apierrors.InternalError(c, "Internal server error")
	}
}
