package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yukikurage/family-task-sync/internal/models"
	"github.com/yukikurage/family-task-sync/internal/repository"
	"github.com/yukikurage/family-task-sync/internal/utils"
)

var (
	ErrFamilyNotFound             = errors.New("family not found")
	ErrInvalidFamilyName          = errors.New("family name cannot be empty")
	ErrInviteCodeGenerationFailed = errors.New("failed to generate invite code")
	ErrInvalidInviteCode          = errors.New("invalid invite code")
	ErrAlreadyFamilyMember        = errors.New("user is already a member of this family")
	ErrNotFamilyMember            = errors.New("user is not a member of the family")
	ErrNotFamilyAdmin             = errors.New("only family admins can perform this action")
	ErrCannotRemoveYourself       = errors.New("cannot remove yourself from the family")
	ErrCannotChangeOwnRole        = errors.New("cannot change your own role")
	ErrFamilyMemberNotFound       = errors.New("family member not found")
	ErrInvalidRole                = errors.New("invalid family role")
)

// FamilyService provides business logic for family membership.
type FamilyService struct {
	familyRepo repository.FamilyRepository
	userRepo   repository.UserRepository
}

// NewFamilyService creates a new FamilyService.
func NewFamilyService(familyRepo repository.FamilyRepository, userRepo repository.UserRepository) *FamilyService {
	return &FamilyService{
		familyRepo: familyRepo,
		userRepo:   userRepo,
	}
}

// CreateFamilyInput represents parameters to create a new family.
type CreateFamilyInput struct {
	Name        string
	AdminID     string
	DisplayName string
}

// CreateFamily creates a new family with the caller as its admin.
func (s *FamilyService) CreateFamily(input CreateFamilyInput) (*models.Family, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrInvalidFamilyName
	}

	inviteCode, err := utils.GenerateInviteCode()
	if err != nil {
		return nil, ErrInviteCodeGenerationFailed
	}

	family := &models.Family{
		ID:         uuid.NewString(),
		Name:       name,
		InviteCode: inviteCode,
	}
	displayName, err := s.memberName(input.AdminID, input.DisplayName)
	if err != nil {
		return nil, err
	}
	member := &models.FamilyMember{
		UserID:      input.AdminID,
		DisplayName: displayName,
		Role:        models.RoleAdmin,
		JoinedAt:    time.Now(),
	}

	if err := s.familyRepo.CreateWithAdmin(family, member); err != nil {
		return nil, fmt.Errorf("failed to create family: %w", err)
	}
	return family, nil
}

// ListFamiliesForUser returns the memberships of a user, families preloaded.
func (s *FamilyService) ListFamiliesForUser(userID string) ([]models.FamilyMember, error) {
	memberships, err := s.familyRepo.ListMembersByUserID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list families: %w", err)
	}
	return memberships, nil
}

// GetFamilyWithMembers returns a family and all of its members.
func (s *FamilyService) GetFamilyWithMembers(familyID string) (*models.Family, []models.FamilyMember, error) {
	family, err := s.findFamily(familyID)
	if err != nil {
		return nil, nil, err
	}

	members, err := s.familyRepo.ListMembers(familyID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list family members: %w", err)
	}
	return family, members, nil
}

// UpdateFamilyName renames a family.
func (s *FamilyService) UpdateFamilyName(familyID, name string) (*models.Family, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidFamilyName
	}

	family, err := s.findFamily(familyID)
	if err != nil {
		return nil, err
	}

	family.Name = name
	if err := s.familyRepo.Update(family); err != nil {
		return nil, fmt.Errorf("failed to update family: %w", err)
	}
	return family, nil
}

// JoinFamilyInput represents parameters to join a family by invite.
type JoinFamilyInput struct {
	UserID      string
	DisplayName string
	InviteCode  string
	Role        models.FamilyRole
}

// JoinFamilyByInvite adds a user to a family. New members join as children
// unless they ask to be a parent; admins are only made by promotion.
func (s *FamilyService) JoinFamilyByInvite(input JoinFamilyInput) (*models.Family, error) {
	role := input.Role
	if role == "" {
		role = models.RoleChild
	}
	if !role.IsValid() || role == models.RoleAdmin {
		return nil, ErrInvalidRole
	}

	family, err := s.familyRepo.FindByInviteCode(utils.NormalizeInviteCode(input.InviteCode))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidInviteCode
		}
		return nil, fmt.Errorf("failed to find family by invite code: %w", err)
	}

	if _, err := s.familyRepo.FindMember(family.ID, input.UserID); err == nil {
		return nil, ErrAlreadyFamilyMember
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to verify membership: %w", err)
	}

	displayName, err := s.memberName(input.UserID, input.DisplayName)
	if err != nil {
		return nil, err
	}
	member := &models.FamilyMember{
		FamilyID:    family.ID,
		UserID:      input.UserID,
		DisplayName: displayName,
		Role:        role,
		JoinedAt:    time.Now(),
	}
	if err := s.familyRepo.AddMember(member); err != nil {
		return nil, fmt.Errorf("failed to add member to family: %w", err)
	}
	return family, nil
}

// RegenerateInviteCode generates a new invite code for the family.
func (s *FamilyService) RegenerateInviteCode(familyID string) (*models.Family, error) {
	family, err := s.findFamily(familyID)
	if err != nil {
		return nil, err
	}

	code, err := utils.GenerateInviteCode()
	if err != nil {
		return nil, ErrInviteCodeGenerationFailed
	}

	family.InviteCode = code
	if err := s.familyRepo.Update(family); err != nil {
		return nil, fmt.Errorf("failed to update invite code: %w", err)
	}
	return family, nil
}

// UpdateMemberRole lets an admin change another member's role.
func (s *FamilyService) UpdateMemberRole(familyID, actorID, targetID string, role models.FamilyRole) (*models.FamilyMember, error) {
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}
	if actorID == targetID {
		return nil, ErrCannotChangeOwnRole
	}
	if err := s.requireAdmin(familyID, actorID); err != nil {
		return nil, err
	}

	if err := s.familyRepo.UpdateMemberRole(familyID, targetID, role); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFamilyMemberNotFound
		}
		return nil, fmt.Errorf("failed to update member role: %w", err)
	}

	member, err := s.familyRepo.FindMember(familyID, targetID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload family member: %w", err)
	}
	return member, nil
}

// RemoveMember removes a member from the family.
func (s *FamilyService) RemoveMember(familyID, actorID, targetID string) error {
	if targetID == actorID {
		return ErrCannotRemoveYourself
	}
	if err := s.requireAdmin(familyID, actorID); err != nil {
		return err
	}

	if _, err := s.familyRepo.FindMember(familyID, targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrFamilyMemberNotFound
		}
		return fmt.Errorf("failed to find family member: %w", err)
	}

	if err := s.familyRepo.RemoveMember(familyID, targetID); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// Session builds the SessionContext for a user acting within familyID. An
// empty familyID selects the user's only family, or none when there are
// zero or several.
func (s *FamilyService) Session(userID, familyID string) (models.SessionContext, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.SessionContext{}, ErrUserNotFound
		}
		return models.SessionContext{}, fmt.Errorf("failed to find user: %w", err)
	}
	session := models.SessionContext{UserID: user.ID, DisplayName: user.DisplayName}

	var member *models.FamilyMember
	if familyID != "" {
		member, err = s.familyRepo.FindMember(familyID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.SessionContext{}, ErrNotFamilyMember
			}
			return models.SessionContext{}, fmt.Errorf("failed to verify membership: %w", err)
		}
	} else {
		memberships, err := s.familyRepo.ListMembersByUserID(userID)
		if err != nil {
			return models.SessionContext{}, fmt.Errorf("failed to list families: %w", err)
		}
		if len(memberships) == 1 {
			member = &memberships[0]
		}
	}

	if member != nil {
		id := member.FamilyID
		session.FamilyID = &id
		session.Role = member.Role
		if member.DisplayName != "" {
			session.DisplayName = member.DisplayName
		}
	}
	return session, nil
}

// memberName falls back to the account's display name, then its username.
func (s *FamilyService) memberName(userID, given string) (string, error) {
	if name := strings.TrimSpace(given); name != "" {
		return name, nil
	}
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("failed to find user: %w", err)
	}
	if user.DisplayName != "" {
		return user.DisplayName, nil
	}
	return user.Username, nil
}

func (s *FamilyService) requireAdmin(familyID, userID string) error {
	member, err := s.familyRepo.FindMember(familyID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFamilyMember
		}
		return fmt.Errorf("failed to verify membership: %w", err)
	}
	if member.Role != models.RoleAdmin {
		return ErrNotFamilyAdmin
	}
	return nil
}

func (s *FamilyService) findFamily(familyID string) (*models.Family, error) {
	family, err := s.familyRepo.FindByID(familyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFamilyNotFound
		}
		return nil, fmt.Errorf("failed to find family: %w", err)
	}
	return family, nil
}
