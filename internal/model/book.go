package model

import "time"

// Book types
const (
	BookTypePhysical  = "physical"
	BookTypeReference = "reference"
	BookTypeEbook     = "ebook"
)

// Book is a lendable title. IsDeleted is a soft-delete flag kept so that loan
// history can still reference the row.
type Book struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null" json:"title"`
	Type        string    `gorm:"type:varchar(30);not null;default:'physical'" json:"type"`
	IsAvailable bool      `gorm:"not null;default:true;index" json:"is_available"`
	CampusID    *uint     `gorm:"index" json:"campus_id"`
	CategoryID  *uint     `gorm:"index" json:"category_id"`
	IsDeleted   bool      `gorm:"not null;default:false;index" json:"is_deleted"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
