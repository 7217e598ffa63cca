package service

import (
	"context"

	"libraryhub/internal/model"
	"libraryhub/internal/repository"
)

type DashboardService interface {
	Summary(ctx context.Context) (*model.DashboardSummary, error)
}

type dashboardService struct {
	repo repository.DashboardRepository
}

func NewDashboardService(repo repository.DashboardRepository) DashboardService {
	return &dashboardService{repo: repo}
}

// Summary counts are read fresh on every call; the refresh signal carries no numbers.
func (s *dashboardService) Summary(ctx context.Context) (*model.DashboardSummary, error) {
	ctx, span := tracer.Start(ctx, "dashboard.summary")
	summary, err := s.repo.Summary(ctx)
	endSpan(span, err)
	return summary, err
}
