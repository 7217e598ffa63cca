package model

import (
	"time"
)

// Loan request statuses
const (
	LoanRequestPending  = "pending"
	LoanRequestApproved = "approved"
	LoanRequestRejected = "rejected"
)

// LoanRequest is a requester's ask to borrow a book, decided by staff.
//
// At most one pending row may exist per (BookID, RequesterID); the guard is installed
// by database.InstallPendingGuard and is not expressed in these tags.
// ApproverID stays nil when the requester cancels their own request, which is how a
// self-cancellation is told apart from an approver rejection.
type LoanRequest struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	BookID      uint       `gorm:"not null;index" json:"book_id"`
	Book        *Book      `gorm:"foreignKey:BookID" json:"book,omitempty"`
	RequesterID uint       `gorm:"not null;index" json:"requester_id"`
	Requester   *User      `gorm:"foreignKey:RequesterID" json:"requester,omitempty"`
	ApproverID  *uint      `gorm:"index" json:"approver_id"`
	Approver    *User      `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	CampusID    *uint      `gorm:"index" json:"campus_id"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	DecidedAt   *time.Time `json:"decided_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName keeps the table name used by the channel names and the guard index.
func (LoanRequest) TableName() string { return "book_loan_requests" }

// IsPending reports whether the request can still transition.
func (r LoanRequest) IsPending() bool { return r.Status == LoanRequestPending }

// LoanRequestTransition is the set of columns written by a pending -> terminal transition.
type LoanRequestTransition struct {
	Status     string
	ApproverID *uint
	DecidedAt  time.Time
}
