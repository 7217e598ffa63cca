package service

import (
	"context"
	"fmt"

	"libraryhub/internal/dashboard"
	"libraryhub/internal/model"
	"libraryhub/internal/repository"
)

type SetActiveDTO struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

type UserService interface {
	SetActive(ctx context.Context, id uint, active bool) (*model.User, error)
}

type userService struct {
	repos     repository.Repositories
	dashboard *dashboard.Aggregator
}

func NewUserService(repos repository.Repositories, agg *dashboard.Aggregator) UserService {
	return &userService{repos: repos, dashboard: agg}
}

// SetActive toggles the account flag. Setting the current value is a no-op and emits nothing.
func (s *userService) SetActive(ctx context.Context, id uint, active bool) (*model.User, error) {
	changed, err := s.repos.Users.SetActive(ctx, id, active)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	user, err := s.repos.Users.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if changed {
		s.dashboard.Observe(ctx, dashboard.Mutation{Entity: dashboard.EntityUser, Action: dashboard.ActionUpdated, Changed: []string{"is_active"}})
	}
	return user, nil
}
