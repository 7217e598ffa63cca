package service

import (
	"testing"
	"time"

	"libraryhub/internal/dashboard"
	"libraryhub/internal/database"
	"libraryhub/internal/events"
	"libraryhub/internal/repository"
	"libraryhub/internal/testutil"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var clock = time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *gorm.DB
	fx       *testutil.Fixtures
	repos    repository.Repositories
	rec      *testutil.Recorder
	agg      *dashboard.Aggregator
	requests *loanRequestService
	loans    *loanService
}

func newTestEnv(t testing.TB, strategy database.GuardStrategy) *testEnv {
	t.Helper()
	db := testutil.NewDB(t, strategy)
	fx := testutil.NewFixtures(t, db)
	repos := fx.Repos()
	rec := testutil.NewRecorder()
	agg := dashboard.NewAggregator(rec)

	requests := NewLoanRequestService(repos, rec, agg, 14).(*loanRequestService)
	requests.now = func() time.Time { return clock }
	loans := NewLoanService(repos, rec, agg, decimal.NewFromInt(1000)).(*loanService)
	loans.now = func() time.Time { return clock }

	return &testEnv{db: db, fx: fx, repos: repos, rec: rec, agg: agg, requests: requests, loans: loans}
}

// withPublisher swaps the event sink, e.g. for a failing transport.
func (e *testEnv) withPublisher(p events.Publisher) {
	e.requests.publisher = p
	e.loans.publisher = p
}
