package repository

import (
	"github.com/yukikurage/family-task-sync/internal/models"
	"gorm.io/gorm"
)

// GormFamilyRepository is a GORM implementation of FamilyRepository
type GormFamilyRepository struct {
	db *gorm.DB
}

// NewFamilyRepository creates a new FamilyRepository
func NewFamilyRepository(db *gorm.DB) FamilyRepository {
	return &GormFamilyRepository{db: db}
}

// Create creates a new family
func (r *GormFamilyRepository) Create(family *models.Family) error {
	return r.db.Create(family).Error
}

// CreateWithAdmin creates a family and its first admin atomically
func (r *GormFamilyRepository) CreateWithAdmin(family *models.Family, member *models.FamilyMember) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(family).Error; err != nil {
			return err
		}
		member.FamilyID = family.ID
		return tx.Create(member).Error
	})
}

// FindByID finds a family by ID
func (r *GormFamilyRepository) FindByID(id string) (*models.Family, error) {
	var family models.Family
	if err := r.db.Where("id = ?", id).First(&family).Error; err != nil {
		return nil, err
	}
	return &family, nil
}

// FindByInviteCode finds a family by invite code
func (r *GormFamilyRepository) FindByInviteCode(code string) (*models.Family, error) {
	var family models.Family
	if err := r.db.Where("invite_code = ?", code).First(&family).Error; err != nil {
		return nil, err
	}
	return &family, nil
}

// Update updates a family
func (r *GormFamilyRepository) Update(family *models.Family) error {
	return r.db.Save(family).Error
}

// AddMember adds a member to a family
func (r *GormFamilyRepository) AddMember(member *models.FamilyMember) error {
	return r.db.Create(member).Error
}

// RemoveMember removes a member from a family
func (r *GormFamilyRepository) RemoveMember(familyID, userID string) error {
	return r.db.Where("family_id = ? AND user_id = ?", familyID, userID).
		Delete(&models.FamilyMember{}).Error
}

// FindMember finds a specific family member
func (r *GormFamilyRepository) FindMember(familyID, userID string) (*models.FamilyMember, error) {
	var member models.FamilyMember
	if err := r.db.Where("family_id = ? AND user_id = ?", familyID, userID).
		First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

// UpdateMemberRole changes a member's role
func (r *GormFamilyRepository) UpdateMemberRole(familyID, userID string, role models.FamilyRole) error {
	result := r.db.Model(&models.FamilyMember{}).
		Where("family_id = ? AND user_id = ?", familyID, userID).
		Update("role", role)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListMembersByUserID lists all families a user is a member of
func (r *GormFamilyRepository) ListMembersByUserID(userID string) ([]models.FamilyMember, error) {
	var memberships []models.FamilyMember
	if err := r.db.Preload("Family").
		Where("user_id = ?", userID).
		Order("joined_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, err
	}
	return memberships, nil
}

// ListMembers lists all members of a family
func (r *GormFamilyRepository) ListMembers(familyID string) ([]models.FamilyMember, error) {
	var members []models.FamilyMember
	if err := r.db.Where("family_id = ?", familyID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}
