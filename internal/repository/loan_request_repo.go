package repository

import (
	"context"
	"fmt"

	"libraryhub/internal/model"

	"gorm.io/gorm"
)

// LoanRequestFilter narrows List. Zero values mean "any".
type LoanRequestFilter struct {
	Status      string
	RequesterID *uint
	BookID      *uint
	CampusID    *uint

	// Scoped restricts to CampusID plus campus-less rows; nil CampusID leaves only the latter.
	Scoped bool
	Page   int
	Limit  int
}

type LoanRequestRepository interface {
	// Insert returns ErrConflict when the pending guard rejects the row.
	Insert(ctx context.Context, req *model.LoanRequest) error
	// CompareAndSetStatus applies t only if the row is still in expected status.
	// It reports false when another writer got there first.
	CompareAndSetStatus(ctx context.Context, id uint, expected string, t model.LoanRequestTransition) (bool, error)
	FindPendingBy(ctx context.Context, bookID, requesterID uint) (*model.LoanRequest, error)
	FindByID(ctx context.Context, id uint) (*model.LoanRequest, error)
	FindByIDWithRelations(ctx context.Context, id uint) (*model.LoanRequest, error)
	List(ctx context.Context, f LoanRequestFilter) ([]model.LoanRequest, int64, error)
	CountPending(ctx context.Context) (int64, error)
}

type loanRequestRepository struct {
	db *gorm.DB
}

func NewLoanRequestRepository(db *gorm.DB) LoanRequestRepository {
	return &loanRequestRepository{db: db}
}

func (r *loanRequestRepository) Insert(ctx context.Context, req *model.LoanRequest) error {
	if err := GetDB(ctx, r.db).Create(req).Error; err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: pending request for book %d by user %d", ErrConflict, req.BookID, req.RequesterID)
		}
		return err
	}
	return nil
}

func (r *loanRequestRepository) CompareAndSetStatus(ctx context.Context, id uint, expected string, t model.LoanRequestTransition) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.LoanRequest{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]interface{}{
			"status":      t.Status,
			"approver_id": t.ApproverID,
			"decided_at":  t.DecidedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *loanRequestRepository) FindPendingBy(ctx context.Context, bookID, requesterID uint) (*model.LoanRequest, error) {
	var req model.LoanRequest
	if err := GetDB(ctx, r.db).
		Where("book_id = ? AND requester_id = ? AND status = ?", bookID, requesterID, model.LoanRequestPending).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *loanRequestRepository) FindByID(ctx context.Context, id uint) (*model.LoanRequest, error) {
	var req model.LoanRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *loanRequestRepository) FindByIDWithRelations(ctx context.Context, id uint) (*model.LoanRequest, error) {
	var req model.LoanRequest
	if err := GetDB(ctx, r.db).
		Preload("Book").Preload("Requester").Preload("Approver").
		First(&req, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *loanRequestRepository) List(ctx context.Context, f LoanRequestFilter) ([]model.LoanRequest, int64, error) {
	var requests []model.LoanRequest
	var total int64

	db := GetDB(ctx, r.db)
	scope := func(q *gorm.DB) *gorm.DB {
		if f.Status != "" {
			q = q.Where("status = ?", f.Status)
		}
		if f.RequesterID != nil {
			q = q.Where("requester_id = ?", *f.RequesterID)
		}
		if f.BookID != nil {
			q = q.Where("book_id = ?", *f.BookID)
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

	if err := db.Model(&model.LoanRequest{}).Scopes(scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	if err := db.Scopes(scope).
		Preload("Book").Preload("Requester").Preload("Approver").
		Order("created_at DESC").Order("id DESC").
		Offset(offset).Limit(f.Limit).
		Find(&requests).Error; err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *loanRequestRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.LoanRequest{}).Where("status = ?", model.LoanRequestPending).Count(&n).Error
	return n, err
}
