package repository

import (
	"strings"

	"github.com/yukikurage/family-task-sync/internal/models"
	"gorm.io/gorm"
)

// GormUserRepository keeps the local accounts of the node
type GormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *GormUserRepository) FindByID(id string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsername ignores case, so "Mom" and "mom" are one account.
func (r *GormUserRepository) FindByUsername(username string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("LOWER(username) = ?", strings.ToLower(username)).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateDisplayName renames the account. Family memberships keep the
// name chosen when joining.
func (r *GormUserRepository) UpdateDisplayName(id, displayName string) error {
	result := r.db.Model(&models.User{}).Where("id = ?", id).Update("display_name", displayName)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
