package repository

import (
	"context"

	"libraryhub/internal/model"

	"gorm.io/gorm"
)

// CatalogRepository covers the reference tables whose size shows on the dashboard.
type CatalogRepository interface {
	CreateCategory(ctx context.Context, c *model.Category) error
	DeleteCategory(ctx context.Context, id uint) (bool, error)
	CreateCampus(ctx context.Context, c *model.Campus) error
	DeleteCampus(ctx context.Context, id uint) (bool, error)
}

type catalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) CreateCategory(ctx context.Context, c *model.Category) error {
	if err := GetDB(ctx, r.db).Create(c).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *catalogRepository) DeleteCategory(ctx context.Context, id uint) (bool, error) {
	res := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Category{})
	return res.RowsAffected == 1, res.Error
}

func (r *catalogRepository) CreateCampus(ctx context.Context, c *model.Campus) error {
	if err := GetDB(ctx, r.db).Create(c).Error; err != nil {
		if IsUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *catalogRepository) DeleteCampus(ctx context.Context, id uint) (bool, error) {
	res := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Campus{})
	return res.RowsAffected == 1, res.Error
}
