package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/middleware"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/services"
)

// requireSession returns the request's SessionContext, answering 401 when
// the session middleware did not run.
func requireSession(c *gin.Context) (models.SessionContext, bool) {
	session, ok := middleware.GetSession(c)
	if !ok {
		apierrors.Unauthorized(c, "Not authenticated")
		return models.SessionContext{}, false
	}
	return session, true
}

// respondResult writes a use case result: the value with status on success,
// the error code and a status derived from its kind otherwise.
func respondResult[T any](c *gin.Context, status int, result services.Result[T]) {
	if !result.IsSuccess {
		respondFailure(c, result)
		return
	}
	c.JSON(status, result.Value)
}

func respondFailure[T any](c *gin.Context, result services.Result[T]) {
	apierrors.RespondWithCode(c, result.Kind, result.ErrorCode, result.Error)
}

// bindError answers 400 for malformed bodies and for conversion errors.
func bindError(c *gin.Context, err error) {
	if apierrors.KindOf(err) == apierrors.KindValidation {
		apierrors.RespondWithError(c, http.StatusBadRequest, apierrors.NewAPIError(apierrors.ErrCodeValidation, err.Error()))
		return
	}
	apierrors.BadRequest(c, "Invalid request body")
}
