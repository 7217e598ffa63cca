package model

import (
	"time"
)

// Activity actions written alongside state transitions
const (
	ActivityLoanRequestSubmitted = "book-loan-request.submitted"
	ActivityLoanRequestApproved  = "book-loan-request.approved"
	ActivityLoanRequestRejected  = "book-loan-request.rejected"
	ActivityLoanRequestCanceled  = "book-loan-request.canceled"
	ActivityLoanReturned         = "loan.returned"
	ActivityLoanCanceled         = "loan.canceled"
)

// ActivityLog tracks who did what to which record
type ActivityLog struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CauserID    *uint     `gorm:"index" json:"causer_id"` // nil for system actions
	Causer      *User     `gorm:"foreignKey:CauserID" json:"causer,omitempty"`
	Action      string    `gorm:"type:varchar(60);not null;index" json:"action"`
	SubjectType string    `gorm:"type:varchar(60);not null" json:"subject_type"`
	SubjectID   uint      `gorm:"index" json:"subject_id"`
	Properties  string    `gorm:"type:text" json:"properties"` // serialized JSON details
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}
