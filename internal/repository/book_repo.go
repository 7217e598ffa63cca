package repository

import (
	"context"

	"libraryhub/internal/model"

	"gorm.io/gorm"
)

type BookRepository interface {
	Create(ctx context.Context, book *model.Book) error
	FindByID(ctx context.Context, id uint) (*model.Book, error)
	Update(ctx context.Context, id uint, fields map[string]interface{}) error
	SoftDelete(ctx context.Context, id uint) (bool, error)
	// CompareAndSetAvailability flips is_available only when it currently equals expected
	// and the book has not been deleted.
	CompareAndSetAvailability(ctx context.Context, id uint, expected, next bool) (bool, error)
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(ctx context.Context, book *model.Book) error {
	return GetDB(ctx, r.db).Create(book).Error
}

func (r *bookRepository) FindByID(ctx context.Context, id uint) (*model.Book, error) {
	var book model.Book
	if err := GetDB(ctx, r.db).First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) Update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.Book{}).Where("id = ?", id).Updates(fields).Error
}

func (r *bookRepository) SoftDelete(ctx context.Context, id uint) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Book{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"is_deleted": true, "is_available": false})
	return res.RowsAffected == 1, res.Error
}

func (r *bookRepository) CompareAndSetAvailability(ctx context.Context, id uint, expected, next bool) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Book{}).
		Where("id = ? AND is_available = ? AND is_deleted = ?", id, expected, false).
		Update("is_available", next)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
