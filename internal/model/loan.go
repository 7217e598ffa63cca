package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Loan statuses
const (
	LoanProcessing = "processing"
	LoanReturned   = "returned"
	LoanCanceled   = "canceled"
)

// Loan is a realised borrowing created when a loan request is approved.
type Loan struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	LoanRequestID *uint           `gorm:"uniqueIndex" json:"loan_request_id"`
	BookID        uint            `gorm:"not null;index" json:"book_id"`
	Book          *Book           `gorm:"foreignKey:BookID" json:"book,omitempty"`
	UserID        uint            `gorm:"not null;index" json:"user_id"`
	User          *User           `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CampusID      *uint           `gorm:"index" json:"campus_id"`
	Status        string          `gorm:"type:varchar(20);not null;default:'processing';index" json:"status"`
	ReturnDate    time.Time       `gorm:"not null" json:"return_date"`
	ReturnedAt    *time.Time      `json:"returned_at"`
	Fine          decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"fine"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
