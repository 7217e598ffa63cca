package repository

import (
	"context"
	"fmt"

	"libraryhub/internal/model"

	"gorm.io/gorm"
)

type DashboardRepository interface {
	Summary(ctx context.Context) (*model.DashboardSummary, error)
}

type dashboardRepository struct {
	db *gorm.DB
}

func NewDashboardRepository(db *gorm.DB) DashboardRepository {
	return &dashboardRepository{db: db}
}

func (r *dashboardRepository) Summary(ctx context.Context) (*model.DashboardSummary, error) {
	var s model.DashboardSummary
	db := GetDB(ctx, r.db)

	counts := []struct {
		name  string
		query *gorm.DB
		dest  *int64
	}{
		{"books", db.Model(&model.Book{}).Where("is_deleted = ?", false), &s.Books},
		{"available books", db.Model(&model.Book{}).Where("is_deleted = ? AND is_available = ?", false, true), &s.AvailableBooks},
		{"users", db.Model(&model.User{}), &s.Users},
		{"active users", db.Model(&model.User{}).Where("is_active = ?", true), &s.ActiveUsers},
		{"categories", db.Model(&model.Category{}), &s.Categories},
		{"campuses", db.Model(&model.Campus{}), &s.Campuses},
		{"pending requests", db.Model(&model.LoanRequest{}).Where("status = ?", model.LoanRequestPending), &s.PendingRequests},
		{"processing loans", db.Model(&model.Loan{}).Where("status = ?", model.LoanProcessing), &s.ProcessingLoans},
	}

	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.name, err)
		}
	}
	return &s, nil
}
