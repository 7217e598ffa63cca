package service

import (
	"context"
	"fmt"

	"libraryhub/internal/events"
	"libraryhub/internal/model"
	"libraryhub/internal/repository"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// recordActivity writes an activity row inside the caller's transaction.
func recordActivity(ctx context.Context, repo repository.ActivityLogRepository, causerID *uint, action, subjectType string, subjectID uint, props map[string]interface{}) (*model.ActivityLog, error) {
	details, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to encode activity properties: %w", err)
	}
	entry := &model.ActivityLog{
		CauserID:    causerID,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Properties:  string(details),
	}
	if err := repo.Log(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to write activity log: %w", err)
	}
	return entry, nil
}

func activitySignal(a *model.ActivityLog) events.Event {
	return events.ActivityLogsUpdated(a.ID, a.Action, a.CreatedAt)
}
