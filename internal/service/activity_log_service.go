package service

import (
	"context"
	"fmt"

	"libraryhub/internal/events"
	"libraryhub/internal/repository"
	"libraryhub/pkg/pagination"
)

type ActivityLogResponse struct {
	ID          uint    `json:"id"`
	CauserID    *uint   `json:"causer_id"`
	CauserName  *string `json:"causer_name"`
	Action      string  `json:"action"`
	SubjectType string  `json:"subject_type"`
	SubjectID   uint    `json:"subject_id"`
	Properties  string  `json:"properties"`
	CreatedAt   string  `json:"created_at"`
}

type ActivityLogService interface {
	List(ctx context.Context, page, limit int) ([]ActivityLogResponse, int64, error)
}

type activityLogService struct {
	repo repository.ActivityLogRepository
}

func NewActivityLogService(repo repository.ActivityLogRepository) ActivityLogService {
	return &activityLogService{repo: repo}
}

func (s *activityLogService) List(ctx context.Context, page, limit int) ([]ActivityLogResponse, int64, error) {
	p := pagination.Normalize(page, limit)
	logs, total, err := s.repo.List(ctx, p.Page, p.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch activity logs: %w", err)
	}

	result := make([]ActivityLogResponse, 0, len(logs))
	for _, l := range logs {
		r := ActivityLogResponse{
			ID:          l.ID,
			CauserID:    l.CauserID,
			Action:      l.Action,
			SubjectType: l.SubjectType,
			SubjectID:   l.SubjectID,
			Properties:  l.Properties,
			CreatedAt:   events.FormatTime(l.CreatedAt),
		}
		if l.Causer != nil {
			r.CauserName = &l.Causer.Name
		}
		result = append(result, r)
	}
	return result, total, nil
}
