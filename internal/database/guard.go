package database

import (
	"fmt"
	"log/slog"
	"time"

	"libraryhub/internal/model"

	"gorm.io/gorm"
)

// GuardStrategy selects how "one pending request per (book, requester)" is enforced.
type GuardStrategy string

const (
	GuardAuto    GuardStrategy = "auto"
	GuardPartial GuardStrategy = "partial"
	GuardMarker  GuardStrategy = "marker"
)

const (
	PendingIndexName       = "uq_book_loan_requests_pending"
	PendingMarkerIndexName = "uq_book_loan_requests_pending_marker"
	PendingMarkerColumn    = "pending_marker"
)

// Resolve maps auto to the strategy the dialect supports. MySQL has no partial indexes.
func (s GuardStrategy) Resolve(dialect string) GuardStrategy {
	switch s {
	case GuardPartial, GuardMarker:
		return s
	}
	if dialect == "mysql" {
		return GuardMarker
	}
	return GuardPartial
}

// InstallPendingGuard creates the storage-level uniqueness guard. Safe to call repeatedly.
func InstallPendingGuard(db *gorm.DB, strategy GuardStrategy) error {
	dialect := db.Dialector.Name()
	resolved := strategy.Resolve(dialect)
	table := model.LoanRequest{}.TableName()
	m := db.Migrator()

	switch resolved {
	case GuardPartial:
		if dialect == "mysql" {
			return fmt.Errorf("partial index guard is not supported on %s", dialect)
		}
		if m.HasIndex(&model.LoanRequest{}, PendingIndexName) {
			return nil
		}
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (book_id, requester_id) WHERE status = '%s'",
			PendingIndexName, table, model.LoanRequestPending)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create partial pending index: %w", err)
		}

	case GuardMarker:
		if !m.HasColumn(&model.LoanRequest{}, PendingMarkerColumn) {
			if err := db.Exec(markerColumnDDL(dialect, table)).Error; err != nil {
				return fmt.Errorf("add pending marker column: %w", err)
			}
		}
		if m.HasIndex(&model.LoanRequest{}, PendingMarkerIndexName) {
			return nil
		}
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (book_id, requester_id, %s)",
			PendingMarkerIndexName, table, PendingMarkerColumn)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create pending marker index: %w", err)
		}

	default:
		return fmt.Errorf("unknown pending guard strategy %q", strategy)
	}

	slog.Info("pending guard installed", "strategy", string(resolved), "dialect", dialect)
	return nil
}

// markerColumnDDL is 1 while pending and NULL otherwise. Unique indexes treat NULLs as
// distinct, so decided rows never collide. SQLite can only add VIRTUAL generated columns.
func markerColumnDDL(dialect, table string) string {
	expr := fmt.Sprintf("CASE WHEN status = '%s' THEN 1 ELSE NULL END", model.LoanRequestPending)
	switch dialect {
	case "sqlite":
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s INTEGER GENERATED ALWAYS AS (%s) VIRTUAL", table, PendingMarkerColumn, expr)
	case "mysql":
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TINYINT GENERATED ALWAYS AS (%s) STORED", table, PendingMarkerColumn, expr)
	default:
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s SMALLINT GENERATED ALWAYS AS (%s) STORED", table, PendingMarkerColumn, expr)
	}
}

type pendingPair struct {
	BookID      uint
	RequesterID uint
}

// ReconcileDuplicatePending keeps the newest pending request per (book, requester)
// (ties broken by highest id) and rejects the rest with no approver. Returns the
// number of rows changed.
func ReconcileDuplicatePending(db *gorm.DB) (int64, error) {
	var total int64
	err := db.Transaction(func(tx *gorm.DB) error {
		var pairs []pendingPair
		if err := tx.Model(&model.LoanRequest{}).
			Select("book_id, requester_id").
			Where("status = ?", model.LoanRequestPending).
			Group("book_id, requester_id").
			Having("COUNT(*) > 1").
			Scan(&pairs).Error; err != nil {
			return fmt.Errorf("find duplicate pending pairs: %w", err)
		}

		now := time.Now().UTC()
		for _, p := range pairs {
			var ids []uint
			if err := tx.Model(&model.LoanRequest{}).
				Where("book_id = ? AND requester_id = ? AND status = ?", p.BookID, p.RequesterID, model.LoanRequestPending).
				Order("created_at DESC").Order("id DESC").
				Pluck("id", &ids).Error; err != nil {
				return err
			}
			if len(ids) < 2 {
				continue
			}

			res := tx.Model(&model.LoanRequest{}).
				Where("id IN ?", ids[1:]).
				Updates(map[string]interface{}{
					"status":      model.LoanRequestRejected,
					"decided_at":  now,
					"approver_id": nil,
				})
			if res.Error != nil {
				return fmt.Errorf("reject stale pending requests for book %d requester %d: %w", p.BookID, p.RequesterID, res.Error)
			}
			total += res.RowsAffected
		}
		return nil
	})
	return total, err
}
