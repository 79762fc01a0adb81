package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/family-task-sync/internal/constants"
	apierrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/services"
)

// RequireTaskAccess checks if the session may see the task named by :id.
// Tasks the user may not see are reported as missing.
func RequireTaskAccess(tasks *services.TaskService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		result := tasks.Get(c.Request.Context(), session, c.Param("id"))
		if !result.IsSuccess {
			apierrors.RespondWithCode(c, result.Kind, result.ErrorCode, result.Error)
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyTask, result.Value)
		c.Next()
	}
}

// GetTask retrieves the task loaded by RequireTaskAccess
func GetTask(c *gin.Context) (models.Task, bool) {
	value, exists := c.Get(constants.ContextKeyTask)
	if !exists {
		return models.Task{}, false
	}
	task, ok := value.(models.Task)
	return task, ok
}
