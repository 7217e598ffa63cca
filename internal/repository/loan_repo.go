package repository

import (
	"context"

	"libraryhub/internal/model"

	"gorm.io/gorm"
)

type LoanFilter struct {
	Status   string
	UserID   *uint
	CampusID *uint
	Scoped   bool
	Page     int
	Limit    int
}

type LoanRepository interface {
	Create(ctx context.Context, loan *model.Loan) error
	FindByID(ctx context.Context, id uint) (*model.Loan, error)
	// CompareAndSetStatus writes fields only while the loan is still in expected status.
	CompareAndSetStatus(ctx context.Context, id uint, expected string, fields map[string]interface{}) (bool, error)
	List(ctx context.Context, f LoanFilter) ([]model.Loan, int64, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
	// HasProcessing reports whether the book is currently lent out.
	HasProcessing(ctx context.Context, bookID uint) (bool, error)
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(ctx context.Context, loan *model.Loan) error {
	return GetDB(ctx, r.db).Create(loan).Error
}

func (r *loanRepository) FindByID(ctx context.Context, id uint) (*model.Loan, error) {
	var loan model.Loan
	if err := GetDB(ctx, r.db).Preload("Book").Preload("User").First(&loan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) CompareAndSetStatus(ctx context.Context, id uint, expected string, fields map[string]interface{}) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Loan{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *loanRepository) List(ctx context.Context, f LoanFilter) ([]model.Loan, int64, error) {
	var loans []model.Loan
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
		if f.UserID != nil {
			q = q.Where("user_id = ?", *f.UserID)
		}
		switch {
		case f.Scoped && f.CampusID != nil:
			q = q.Where("(campus_id = ? OR campus_id IS NULL)", *f.CampusID)
		case f.Scoped:
			q = q.Where("campus_id IS NULL")
		case f.CampusID != nil:
			q = q.Where("campus_id = ?", *f.CampusID)
		}
		return q
	}

	if err := db.Model(&model.Loan{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	if err := db.Scopes(scope).Preload("Book").Preload("User").
		Order("created_at DESC").Offset(offset).Limit(f.Limit).
		Find(&loans).Error; err != nil {
		return nil, 0, err
	}
	return loans, total, nil
}

func (r *loanRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Loan{}).Where("status = ?", status).Count(&n).Error
	return n, err
}

func (r *loanRepository) HasProcessing(ctx context.Context, bookID uint) (bool, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.Loan{}).
		Where("book_id = ? AND status = ?", bookID, model.LoanProcessing).
		Count(&n).Error
	return n > 0, err
}
