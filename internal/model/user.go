package model

import (
	"time"
)

// Role names understood by the access policy
const (
	RoleUser       = "user"
	RoleStaff      = "staff"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super-admin"
)

// User is a library account. Registration and credentials live outside this service.
type User struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	Name                 string    `gorm:"type:varchar(255);not null" json:"name"`
	Email                string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	CampusID             *uint     `gorm:"index" json:"campus_id"`
	Campus               *Campus   `gorm:"foreignKey:CampusID" json:"campus,omitempty"`
	IsActive             bool      `gorm:"not null;default:true" json:"is_active"`
	Roles                []Role    `gorm:"many2many:user_roles;" json:"roles"`
	ShowLoanRequestPopup bool      `gorm:"not null;default:true" json:"show_loan_request_popup"`
	ShowDashboardPopup   bool      `gorm:"not null;default:true" json:"show_dashboard_popup"`
	CreatedAt            time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RoleNames flattens the preloaded roles.
func (u User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}
