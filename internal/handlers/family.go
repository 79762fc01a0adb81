package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/family-task-sync/internal/dto"
	apierrors "github.com/yukikurage/family-task-sync/internal/errors"
	"github.com/yukikurage/family-task-sync/internal/middleware"
	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/services"
)

type FamilyHandler struct {
	families *services.FamilyService
}

func NewFamilyHandler(families *services.FamilyService) *FamilyHandler {
	return &FamilyHandler{families: families}
}

// CreateFamily creates a new family with the caller as admin
func (h *FamilyHandler) CreateFamily(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type CreateFamilyRequest struct {
		Name        string `json:"name" binding:"required"`
		DisplayName string `json:"display_name"`
	}

	var req CreateFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	family, err := h.families.CreateFamily(services.CreateFamilyInput{
		Name:        req.Name,
		AdminID:     userID,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		respondFamilyError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToFamilyDTO(*family, true))
}

// ListFamilies returns all families the user is a member of
func (h *FamilyHandler) ListFamilies(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	memberships, err := h.families.ListFamiliesForUser(userID)
	if err != nil {
		respondFamilyError(c, err)
		return
	}

	families := make([]dto.FamilyWithRoleDTO, len(memberships))
	for i, m := range memberships {
		families[i] = dto.ToFamilyWithRoleDTO(m)
	}

	c.JSON(http.StatusOK, gin.H{
		"families": families,
	})
}

// JoinFamily allows a user to join via invite code
func (h *FamilyHandler) JoinFamily(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type JoinRequest struct {
		InviteCode  string            `json:"invite_code" binding:"required"`
		DisplayName string            `json:"display_name"`
		Role        models.FamilyRole `json:"role"`
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	family, err := h.families.JoinFamilyByInvite(services.JoinFamilyInput{
		UserID:      userID,
		DisplayName: req.DisplayName,
		InviteCode:  req.InviteCode,
		Role:        req.Role,
	})
	if err != nil {
		respondFamilyError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully joined family",
		"family":  dto.ToFamilyDTO(*family, false),
	})
}

// GetFamily returns family details with its members
func (h *FamilyHandler) GetFamily(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	family, members, err := h.families.GetFamilyWithMembers(*session.FamilyID)
	if err != nil {
		respondFamilyError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToFamilyDetailDTO(*family, members, session.Role))
}

// ListMembers returns the members of a family
func (h *FamilyHandler) ListMembers(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	_, members, err := h.families.GetFamilyWithMembers(*session.FamilyID)
	if err != nil {
		respondFamilyError(c, err)
		return
	}

	memberDTOs := make([]dto.FamilyMemberDTO, len(members))
	for i, m := range members {
		memberDTOs[i] = dto.ToFamilyMemberDTO(m)
	}

	c.JSON(http.StatusOK, gin.H{
		"members": memberDTOs,
	})
}

// UpdateFamily updates the family name
func (h *FamilyHandler) UpdateFamily(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	type UpdateFamilyRequest struct {
		Name string `json:"name" binding:"required"`
	}

	var req UpdateFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	family, err := h.families.UpdateFamilyName(*session.FamilyID, req.Name)
	if err != nil {
		respondFamilyError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToFamilyDTO(*family, true))
}

// RegenerateInviteCode generates a new invite code for the family
func (h *FamilyHandler) RegenerateInviteCode(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	family, err := h.families.RegenerateInviteCode(*session.FamilyID)
	if err != nil {
		respondFamilyError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToFamilyDTO(*family, true))
}

// UpdateMemberRole changes the role of another member
func (h *FamilyHandler) UpdateMemberRole(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	type UpdateRoleRequest struct {
		Role models.FamilyRole `json:"role" binding:"required"`
	}

	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	member, err := h.families.UpdateMemberRole(*session.FamilyID, session.UserID, c.Param("user_id"), req.Role)
	if err != nil {
		respondFamilyError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToFamilyMemberDTO(*member))
}

// RemoveMember removes a member from the family
func (h *FamilyHandler) RemoveMember(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}

	if err := h.families.RemoveMember(*session.FamilyID, session.UserID, c.Param("user_id")); err != nil {
		respondFamilyError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Member removed successfully",
	})
}

func respondFamilyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidFamilyName),
		errors.Is(err, services.ErrInvalidRole),
		errors.Is(err, services.ErrCannotRemoveYourself),
		errors.Is(err, services.ErrCannotChangeOwnRole):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrInvalidInviteCode):
		apierrors.NotFoundResponse(c, "Invalid invite code")
	case errors.Is(err, services.ErrFamilyNotFound),
		errors.Is(err, services.ErrNotFamilyMember):
		apierrors.NotFoundResponse(c, "Family not found")
	case errors.Is(err, services.ErrFamilyMemberNotFound),
		errors.Is(err, services.ErrUserNotFound):
		apierrors.NotFoundResponse(c, err.Error())
	case errors.Is(err, services.ErrAlreadyFamilyMember):
		apierrors.Conflict(c, err.Error())
	case errors.Is(err, services.ErrNotFamilyAdmin):
		apierrors.Forbidden(c, err.Error())
	default:
		log.Printf("Family request failed: %v", err)
		apierrors.InternalError(c, "Internal server error")
	}
}
