package models

import (
	"time"

	"gorm.io/gorm"
)

type Family struct {
	ID         string         `gorm:"primarykey;type:varchar(36)" json:"id"`
	Name       string         `gorm:"type:varchar(255);not null" json:"name"`
	InviteCode string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"invite_code"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	// Relations
	Members []FamilyMember `gorm:"foreignKey:FamilyID" json:"members,omitempty"`
}

type FamilyRole string

const (
	RoleAdmin  FamilyRole = "admin"
	RoleParent FamilyRole = "parent"
	RoleChild  FamilyRole = "child"
)

func (r FamilyRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleParent, RoleChild:
		return true
	default:
		return false
	}
}

// IsElevated reports whether the role may review approval requests.
func (r FamilyRole) IsElevated() bool {
	return r == RoleAdmin || r == RoleParent
}

type FamilyMember struct {
	FamilyID    string     `gorm:"primarykey;type:varchar(36)" json:"family_id"`
	UserID      string     `gorm:"primarykey;type:varchar(36)" json:"user_id"`
	DisplayName string     `gorm:"type:varchar(255);not null" json:"display_name"`
	Role        FamilyRole `gorm:"type:varchar(20);not null" json:"role"`
	JoinedAt    time.Time  `json:"joined_at"`

	// Relations
	Family Family `gorm:"foreignKey:FamilyID" json:"-"`
	User   User   `gorm:"foreignKey:UserID" json:"-"`
}
