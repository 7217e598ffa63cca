package repository

import (
	"context"

	"libraryhub/internal/model"

	"gorm.io/gorm"
)

type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*model.Role, error)
	FindOrCreate(ctx context.Context, name, description string) (*model.Role, error)
	AssignToUser(ctx context.Context, userID uint, roleNames ...string) error
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindOrCreate(ctx context.Context, name, description string) (*model.Role, error) {
	role := model.Role{Name: name}
	if err := GetDB(ctx, r.db).Where(model.Role{Name: name}).
		Attrs(model.Role{Description: description}).
		FirstOrCreate(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) AssignToUser(ctx context.Context, userID uint, roleNames ...string) error {
	var roles []model.Role
	if err := GetDB(ctx, r.db).Where("name IN ?", roleNames).Find(&roles).Error; err != nil {
		return err
	}
	user := model.User{ID: userID}
	return GetDB(ctx, r.db).Model(&user).Association("Roles").Append(roles)
}
