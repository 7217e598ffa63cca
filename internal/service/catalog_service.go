package service

import (
	"context"
	"errors"
	"fmt"

	"libraryhub/internal/dashboard"
	"libraryhub/internal/model"
	"libraryhub/internal/repository"
)

type CreateNamedDTO struct {
	Name string `json:"name" binding:"required,max=255"`
}

type CatalogService interface {
	CreateCategory(ctx context.Context, name string) (*model.Category, error)
	DeleteCategory(ctx context.Context, id uint) error
	CreateCampus(ctx context.Context, name string) (*model.Campus, error)
	DeleteCampus(ctx context.Context, id uint) error
}

type catalogService struct {
	repos     repository.Repositories
	dashboard *dashboard.Aggregator
}

func NewCatalogService(repos repository.Repositories, agg *dashboard.Aggregator) CatalogService {
	return &catalogService{repos: repos, dashboard: agg}
}

func (s *catalogService) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	c := &model.Category{Name: name}
	if err := s.repos.Catalog.CreateCategory(ctx, c); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	s.dashboard.Observe(ctx, dashboard.Mutation{Entity: dashboard.EntityCategory, Action: dashboard.ActionCreated})
	return c, nil
}

func (s *catalogService) DeleteCategory(ctx context.Context, id uint) error {
	deleted, err := s.repos.Catalog.DeleteCategory(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	s.dashboard.Observe(ctx, dashboard.Mutation{Entity: dashboard.EntityCategory, Action: dashboard.ActionDeleted})
	return nil
}

func (s *catalogService) CreateCampus(ctx context.Context, name string) (*model.Campus, error) {
	c := &model.Campus{Name: name}
	if err := s.repos.Catalog.CreateCampus(ctx, c); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create campus: %w", err)
	}
	s.dashboard.Observe(ctx, dashboard.Mutation{Entity: dashboard.EntityCampus, Action: dashboard.ActionCreated})
	return c, nil
}

func (s *catalogService) DeleteCampus(ctx context.Context, id uint) error {
	deleted, err := s.repos.Catalog.DeleteCampus(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete campus: %w", err)
	}
	if !deleted {
		return ErrNotFound
	}
	s.dashboard.Observe(ctx, dashboard.Mutation{Entity: dashboard.EntityCampus, Action: dashboard.ActionDeleted})
	return nil
}
