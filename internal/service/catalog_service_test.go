package service

import (
	"context"
	"testing"

	"libraryhub/internal/database"
	"libraryhub/internal/events"
	"libraryhub/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dashboardSources(env *testEnv) []string {
	var out []string
	for _, e := range env.rec.OfKind(events.KindDashboardSummaryUpdated) {
		out = append(out, e.Payload.(events.DashboardSummaryPayload).Source)
	}
	return out
}

// Renaming a book leaves the summary alone; moving it to another campus refreshes it.
func TestBookUpdate_OnlyCountingFieldsSignal(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	books := NewBookService(env.repos, env.agg)
	campus := env.fx.Campus("North")

	book, err := books.Create(ctx, CreateBookDTO{Title: "Dune"})
	require.NoError(t, err)
	assert.Equal(t, model.BookTypePhysical, book.Type)
	assert.Equal(t, []string{"book.created"}, dashboardSources(env))
	env.rec.Reset()

	title := "Dune Messiah"
	updated, err := books.Update(ctx, book.ID, UpdateBookDTO{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Empty(t, dashboardSources(env))

	_, err = books.Update(ctx, book.ID, UpdateBookDTO{CampusID: campus})
	require.NoError(t, err)
	assert.Equal(t, []string{"book.updated"}, dashboardSources(env))
	env.rec.Reset()

	// same value again changes nothing
	_, err = books.Update(ctx, book.ID, UpdateBookDTO{CampusID: campus})
	require.NoError(t, err)
	assert.Empty(t, dashboardSources(env))

	require.NoError(t, books.Delete(ctx, book.ID))
	assert.Equal(t, []string{"book.deleted"}, dashboardSources(env))

	assert.ErrorIs(t, books.Delete(ctx, book.ID), ErrBookNotFound)
	_, err = books.Update(ctx, book.ID, UpdateBookDTO{Title: &title})
	assert.ErrorIs(t, err, ErrBookNotFound)
}

// Editing a lent-out book back to available would let a second request be approved.
func TestBookUpdate_CannotReleaseBookOnLoan(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	books := NewBookService(env.repos, env.agg)
	loanID, book, staff := approvedLoan(t, env, nil)
	other := env.fx.User("ben", nil, model.RoleUser)

	second, err := env.requests.Submit(ctx, book.ID, other.ID)
	require.NoError(t, err)
	env.rec.Reset()

	available := true
	_, err = books.Update(ctx, book.ID, UpdateBookDTO{IsAvailable: &available})
	assert.ErrorIs(t, err, ErrBookOnLoan)
	assert.Empty(t, dashboardSources(env))

	_, err = env.requests.Decide(ctx, second.ID, staff.ID, OutcomeApprove)
	assert.ErrorIs(t, err, ErrBookUnavailable)

	processing, err := env.repos.Loans.CountByStatus(ctx, model.LoanProcessing)
	require.NoError(t, err)
	assert.Equal(t, int64(1), processing)

	// other edits to the same book still go through
	title := "Dune Messiah"
	_, err = books.Update(ctx, book.ID, UpdateBookDTO{Title: &title, IsAvailable: &available})
	assert.ErrorIs(t, err, ErrBookOnLoan)
	updated, err := books.Update(ctx, book.ID, UpdateBookDTO{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.False(t, updated.IsAvailable)

	_, err = env.loans.Return(ctx, loanID, staff.ID)
	require.NoError(t, err)
	unavailable := false
	_, err = books.Update(ctx, book.ID, UpdateBookDTO{IsAvailable: &unavailable})
	require.NoError(t, err)
	released, err := books.Update(ctx, book.ID, UpdateBookDTO{IsAvailable: &available})
	require.NoError(t, err)
	assert.True(t, released.IsAvailable)
}

func TestUserSetActive(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	users := NewUserService(env.repos, env.agg)
	u := env.fx.User("ana", nil, model.RoleUser)

	got, err := users.SetActive(ctx, u.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Empty(t, dashboardSources(env), "no change, no signal")

	got, err = users.SetActive(ctx, u.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, []string{"user.updated"}, dashboardSources(env))

	_, err = users.SetActive(ctx, 9999, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	catalog := NewCatalogService(env.repos, env.agg)

	cat, err := catalog.CreateCategory(ctx, "Fiction")
	require.NoError(t, err)
	_, err = catalog.CreateCategory(ctx, "Fiction")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	campus, err := catalog.CreateCampus(ctx, "North")
	require.NoError(t, err)
	_, err = catalog.CreateCampus(ctx, "North")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.NoError(t, catalog.DeleteCategory(ctx, cat.ID))
	require.NoError(t, catalog.DeleteCampus(ctx, campus.ID))
	assert.ErrorIs(t, catalog.DeleteCategory(ctx, cat.ID), ErrNotFound)
	assert.ErrorIs(t, catalog.DeleteCampus(ctx, campus.ID), ErrNotFound)

	assert.Equal(t, []string{"category.created", "campus.created", "category.deleted", "campus.deleted"}, dashboardSources(env))
}

func TestDashboardSummary(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	summary := NewDashboardService(env.repos.Dashboard)

	env.fx.Campus("North")
	book := env.fx.Book("Dune", nil)
	env.fx.Book("Emma", nil)
	ana := env.fx.User("ana", nil, model.RoleUser)
	idle := env.fx.User("ian", nil, model.RoleUser)
	_, err := env.repos.Users.SetActive(ctx, idle.ID, false)
	require.NoError(t, err)
	_, err = env.requests.Submit(ctx, book.ID, ana.ID)
	require.NoError(t, err)

	s, err := summary.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DashboardSummary{
		Books:           2,
		AvailableBooks:  2,
		Users:           2,
		ActiveUsers:     1,
		Campuses:        1,
		PendingRequests: 1,
	}, *s)
}

func TestActivityLogList(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	logs := NewActivityLogService(env.repos.Activities)
	book := env.fx.Book("Dune", nil)
	ana := env.fx.User("ana", nil, model.RoleUser)

	r, err := env.requests.Submit(ctx, book.ID, ana.ID)
	require.NoError(t, err)
	_, err = env.requests.Cancel(ctx, r.ID, ana.ID)
	require.NoError(t, err)

	list, total, err := logs.List(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	actions := []string{list[0].Action, list[1].Action}
	assert.ElementsMatch(t, []string{model.ActivityLoanRequestSubmitted, model.ActivityLoanRequestCanceled}, actions)
	require.NotNil(t, list[0].CauserName)
	assert.Equal(t, "ana", *list[0].CauserName)
	assert.Contains(t, list[0].Properties, `"book_id"`)
}
