package database

import (
	"log/slog"

	"libraryhub/internal/model"

	"gorm.io/gorm"
)

// Migrate brings the schema up to date. Duplicate pending rows left over from
// before the guard existed are reconciled first, otherwise the unique index
// cannot be created.
func Migrate(db *gorm.DB, strategy GuardStrategy) error {
	if err := db.AutoMigrate(
		&model.Campus{},
		&model.Category{},
		&model.Role{},
		&model.User{},
		&model.Book{},
		&model.LoanRequest{},
		&model.Loan{},
		&model.ActivityLog{},
	); err != nil {
		return err
	}

	reconciled, err := ReconcileDuplicatePending(db)
	if err != nil {
		return err
	}
	if reconciled > 0 {
		slog.Warn("reconciled duplicate pending loan requests", "rows", reconciled)
	}

	return InstallPendingGuard(db, strategy)
}
