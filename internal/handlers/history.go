package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/services"
	"github.com/yukikurage/family-task-sync/internal/utils"
)

type HistoryHandler struct {
	history *services.HistoryService
}

func NewHistoryHandler(history *services.HistoryService) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// ListHistory returns one page of the audit log, newest first. It can be
// narrowed to one task with task_id.
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	params := utils.GetPaginationParams(c)
	query := services.HistoryQuery{Page: params.Page, PageSize: params.Limit}
	if taskID := c.Query("task_id"); taskID != "" {
		query.TaskID = &taskID
	}

	result := h.history.List(c.Request.Context(), session, query)
	if !result.IsSuccess {
		respondFailure(c, result)
		return
	}

	items := result.Value.Items
	if items == nil {
		items = []models.HistoryItem{}
	}
	c.JSON(http.StatusOK, gin.H{
		"history":    items,
		"pagination": params.Response(result.Value.Total),
	})
}

// PruneHistory drops items older than the retention window
func (h *HistoryHandler) PruneHistory(c *gin.Context) {
	result := h.history.Prune(c.Request.Context())
	if !result.IsSuccess {
		respondFailure(c, result)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"removed": result.Value,
	})
}
