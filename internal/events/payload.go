package events

import (
	"time"

	"libraryhub/internal/model"
)

// LoanRequestSnapshot is the committed state of a loan request with its relations
// resolved. Missing relations stay empty.
type LoanRequestSnapshot struct {
	ID            uint
	BookID        uint
	BookTitle     Optional[string]
	RequesterID   uint
	RequesterName Optional[string]
	ApproverID    Optional[uint]
	ApproverName  Optional[string]
	CampusID      *uint
	Status        string
	CreatedAt     time.Time
	DecidedAt     Optional[time.Time]
}

// SnapshotLoanRequest reads a request loaded with Book, Requester and Approver preloaded.
func SnapshotLoanRequest(r *model.LoanRequest) LoanRequestSnapshot {
	s := LoanRequestSnapshot{
		ID:          r.ID,
		BookID:      r.BookID,
		RequesterID: r.RequesterID,
		ApproverID:  FromPtr(r.ApproverID),
		CampusID:    r.CampusID,
		Status:      r.Status,
		CreatedAt:   r.CreatedAt,
		DecidedAt:   FromPtr(r.DecidedAt),
	}
	if r.Book != nil {
		s.BookTitle = Some(r.Book.Title)
	}
	if r.Requester != nil {
		s.RequesterName = Some(r.Requester.Name)
	}
	if r.Approver != nil {
		s.ApproverName = Some(r.Approver.Name)
	}
	return s
}

type LoanRequestCreatedPayload struct {
	ID            uint             `json:"id"`
	BookID        uint             `json:"book_id"`
	BookTitle     Optional[string] `json:"book_title"`
	RequesterID   uint             `json:"requester_id"`
	RequesterName Optional[string] `json:"requester_name"`
	Status        string           `json:"status"`
	CreatedAt     string           `json:"created_at"`
}

type LoanRequestUpdatedPayload struct {
	ID            uint             `json:"id"`
	BookID        uint             `json:"book_id"`
	BookTitle     Optional[string] `json:"book_title"`
	RequesterID   uint             `json:"requester_id"`
	RequesterName Optional[string] `json:"requester_name"`
	ApproverID    Optional[uint]   `json:"approver_id"`
	ApproverName  Optional[string] `json:"approver_name"`
	Status        string           `json:"status"`
	DecidedAt     Optional[string] `json:"decided_at"`
}

type DashboardSummaryPayload struct {
	Source    string `json:"source"`
	UpdatedAt string `json:"updated_at"`
}

type ActivityLogsPayload struct {
	ActivityID uint   `json:"activity_id"`
	Source     string `json:"source"`
	UpdatedAt  string `json:"updated_at"`
}

// FormatTime renders timestamps as RFC 3339 in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func projectCreated(s LoanRequestSnapshot) LoanRequestCreatedPayload {
	return LoanRequestCreatedPayload{
		ID:            s.ID,
		BookID:        s.BookID,
		BookTitle:     s.BookTitle,
		RequesterID:   s.RequesterID,
		RequesterName: s.RequesterName,
		Status:        s.Status,
		CreatedAt:     FormatTime(s.CreatedAt),
	}
}

func projectUpdated(s LoanRequestSnapshot) LoanRequestUpdatedPayload {
	p := LoanRequestUpdatedPayload{
		ID:            s.ID,
		BookID:        s.BookID,
		BookTitle:     s.BookTitle,
		RequesterID:   s.RequesterID,
		RequesterName: s.RequesterName,
		ApproverID:    s.ApproverID,
		ApproverName:  s.ApproverName,
		Status:        s.Status,
	}
	if at, ok := s.DecidedAt.Get(); ok {
		p.DecidedAt = Some(FormatTime(at))
	}
	return p
}
