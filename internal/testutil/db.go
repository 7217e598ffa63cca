// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"libraryhub/internal/database"
	"libraryhub/internal/model"
	"libraryhub/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var dbSeq atomic.Int64

// NewDB returns a migrated in-memory sqlite database with the pending guard installed.
// A single connection serialises access, so code under test must route every query
// inside a transaction through repository.GetDB.
func NewDB(t testing.TB, strategy database.GuardStrategy) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:libraryhub_test_%d?mode=memory&cache=private", dbSeq.Add(1))
	db, err := database.OpenWithDialector(sqlite.Open(dsn))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db, strategy))
	return db
}

// Fixtures creates rows with sensible defaults.
type Fixtures struct {
	t     testing.TB
	repos repository.Repositories
}

func NewFixtures(t testing.TB, db *gorm.DB) *Fixtures {
	t.Helper()
	repos := repository.NewRepositories(db)
	ctx := context.Background()
	for _, name := range []string{model.RoleUser, model.RoleStaff, model.RoleAdmin, model.RoleSuperAdmin} {
		_, err := repos.Roles.FindOrCreate(ctx, name, "")
		require.NoError(t, err)
	}
	return &Fixtures{t: t, repos: repos}
}

func (f *Fixtures) Repos() repository.Repositories { return f.repos }

// Campus creates a campus and returns its id.
func (f *Fixtures) Campus(name string) *uint {
	f.t.Helper()
	c := &model.Campus{Name: name}
	require.NoError(f.t, f.repos.Catalog.CreateCampus(context.Background(), c))
	return &c.ID
}

// User creates an active user with the given roles.
func (f *Fixtures) User(name string, campusID *uint, roles ...string) *model.User {
	f.t.Helper()
	ctx := context.Background()
	u := &model.User{
		Name:     name,
		Email:    fmt.Sprintf("%s.%d@library.test", name, dbSeq.Add(1)),
		CampusID: campusID,
		IsActive: true,
	}
	require.NoError(f.t, f.repos.Users.Create(ctx, u))
	if len(roles) > 0 {
		require.NoError(f.t, f.repos.Roles.AssignToUser(ctx, u.ID, roles...))
	}
	loaded, err := f.repos.Users.GetByID(ctx, u.ID)
	require.NoError(f.t, err)
	return loaded
}

// Book creates an available physical book.
func (f *Fixtures) Book(title string, campusID *uint) *model.Book {
	f.t.Helper()
	b := &model.Book{Title: title, Type: model.BookTypePhysical, IsAvailable: true, CampusID: campusID}
	require.NoError(f.t, f.repos.Books.Create(context.Background(), b))
	return b
}
