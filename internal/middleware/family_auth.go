package middleware

import (
	"errors"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/family-task-sync/internal/constants"
	apierrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/services"
)

// RequireSession resolves the SessionContext of the authenticated user. The
// acting family comes from the X-Family-ID header or the family_id query
// parameter; without either, a user with exactly one family acts in it.
func RequireSession(families *services.FamilyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		familyID := c.GetHeader(constants.HeaderFamilyID)
		if familyID == "" {
			familyID = c.Query(constants.QueryFamilyID)
		}
		resolveSession(c, families, familyID)
	}
}

// RequireFamilyAccess checks that the user belongs to the family named by the
// :id route parameter and acts within it.
func RequireFamilyAccess(families *services.FamilyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		resolveSession(c, families, c.Param("id"))
	}
}

func resolveSession(c *gin.Context, families *services.FamilyService, familyID string) {
	userID, exists := GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		c.Abort()
		return
	}

	session, err := families.Session(userID, familyID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNotFamilyMember):
			// Return 404 instead of 403 to avoid leaking family existence
			apierrors.NotFoundResponse(c, "Family not found")
		case errors.Is(err, services.ErrUserNotFound):
			apierrors.Unauthorized(c, "")
		default:
			log.Printf("Failed to resolve session for user %s: %v", userID, err)
			apierrors.InternalError(c, "Failed to resolve session")
		}
		c.Abort()
		return
	}

	c.Set(constants.ContextKeySession, session)
	c.Next()
}

// RequireFamilyAdmin checks if the user is an admin of the family resolved
// by RequireFamilyAccess
func RequireFamilyAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := GetSession(c)
		if !ok || !session.HasFamily() {
			apierrors.Forbidden(c, "Family access required")
			c.Abort()
			return
		}

		if session.Role != models.RoleAdmin {
			apierrors.Forbidden(c, "Only family admins can perform this action")
			c.Abort()
			return
		}

		c.Next()
	}
}

// GetSession retrieves the SessionContext stored by RequireSession or RequireFamilyAccess
func GetSession(c *gin.Context) (models.SessionContext, bool) {
	value, exists := c.Get(constants.ContextKeySession)
	if !exists {
		return models.SessionContext{}, false
	}
	session, ok := value.(models.SessionContext)
	return session, ok
}
