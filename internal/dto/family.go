package dto

import (
	"time"

	"github.com/yukikurage/family-task-sync/internal/models"
)

// FamilyDTO represents a family in API responses
type FamilyDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	InviteCode string `json:"invite_code,omitempty"`
}

// FamilyWithRoleDTO represents a family with the user's role
type FamilyWithRoleDTO struct {
	FamilyDTO
	Role models.FamilyRole `json:"role"`
}

// FamilyMemberDTO represents a member in a family
type FamilyMemberDTO struct {
	UserID      string            `json:"user_id"`
	DisplayName string            `json:"display_name"`
	Role        models.FamilyRole `json:"role"`
	JoinedAt    time.Time         `json:"joined_at"`
}

// FamilyDetailDTO represents detailed family information
type FamilyDetailDTO struct {
	FamilyDTO
	Members  []FamilyMemberDTO `json:"members"`
	YourRole models.FamilyRole `json:"your_role"`
}

// ToFamilyDTO converts a Family model to FamilyDTO. The invite code is only
// shown to members who may hand it out.
func ToFamilyDTO(family models.Family, includeInviteCode bool) FamilyDTO {
	dto := FamilyDTO{
		ID:   family.ID,
		Name: family.Name,
	}
	if includeInviteCode {
		dto.InviteCode = family.InviteCode
	}
	return dto
}

// ToFamilyWithRoleDTO converts a membership to DTO with role
func ToFamilyWithRoleDTO(member models.FamilyMember) FamilyWithRoleDTO {
	return FamilyWithRoleDTO{
		FamilyDTO: ToFamilyDTO(member.Family, member.Role.IsElevated()),
		Role:      member.Role,
	}
}

// ToFamilyMemberDTO converts a member to DTO
func ToFamilyMemberDTO(member models.FamilyMember) FamilyMemberDTO {
	return FamilyMemberDTO{
		UserID:      member.UserID,
		DisplayName: member.DisplayName,
		Role:        member.Role,
		JoinedAt:    member.JoinedAt,
	}
}

// ToFamilyDetailDTO converts a family with members to detailed DTO
func ToFamilyDetailDTO(family models.Family, members []models.FamilyMember, yourRole models.FamilyRole) FamilyDetailDTO {
	memberDTOs := make([]FamilyMemberDTO, len(members))
	for i, member := range members {
		memberDTOs[i] = ToFamilyMemberDTO(member)
	}

	return FamilyDetailDTO{
		FamilyDTO: ToFamilyDTO(family, yourRole.IsElevated()),
		Members:   memberDTOs,
		YourRole:  yourRole,
	}
}
