package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"libraryhub/internal/database"
	"libraryhub/internal/events"
	"libraryhub/internal/model"
	"libraryhub/internal/policy"
	"libraryhub/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var strategies = []database.GuardStrategy{database.GuardPartial, database.GuardMarker}

// A second submit for the same pair while one is pending is refused and emits nothing.
func TestSubmit_DuplicatePending(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			env := newTestEnv(t, strategy)
			ctx := context.Background()
			book := env.fx.Book("Dune", nil)
			requester := env.fx.User("ana", nil, model.RoleUser)

			resp, err := env.requests.Submit(ctx, book.ID, requester.ID)
			require.NoError(t, err)
			assert.Equal(t, model.LoanRequestPending, resp.Status)
			assert.Nil(t, resp.ApproverID)
			assert.Nil(t, resp.DecidedAt)
			require.NotNil(t, resp.BookTitle)
			assert.Equal(t, "Dune", *resp.BookTitle)

			_, err = env.requests.Submit(ctx, book.ID, requester.ID)
			assert.ErrorIs(t, err, ErrDuplicatePendingRequest)

			created := env.rec.OfKind(events.KindLoanRequestCreated)
			require.Len(t, created, 1)
			assert.Equal(t, []events.Channel{events.ChannelAdminLoanRequests}, created[0].Channels)
			assert.Len(t, env.rec.OfKind(events.KindActivityLogsUpdated), 1)
		})
	}
}

func TestSubmit_Preconditions(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	book := env.fx.Book("Dune", nil)
	gone := env.fx.Book("Lost", nil)
	_, err := env.repos.Books.SoftDelete(ctx, gone.ID)
	require.NoError(t, err)

	active := env.fx.User("ana", nil, model.RoleUser)
	inactive := env.fx.User("bob", nil, model.RoleUser)
	_, err = env.repos.Users.SetActive(ctx, inactive.ID, false)
	require.NoError(t, err)

	_, err = env.requests.Submit(ctx, book.ID, inactive.ID)
	assert.ErrorIs(t, err, ErrInactiveAccount)

	_, err = env.requests.Submit(ctx, book.ID, 9999)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.requests.Submit(ctx, 9999, active.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	_, err = env.requests.Submit(ctx, gone.ID, active.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	assert.Empty(t, env.rec.Events())
}

func TestSubmit_CampusSnapshot(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	campus := env.fx.Campus("North")
	book := env.fx.Book("Dune", nil)
	requester := env.fx.User("ana", campus, model.RoleUser)

	resp, err := env.requests.Submit(context.Background(), book.ID, requester.ID)
	require.NoError(t, err)
	require.NotNil(t, resp.CampusID)
	assert.Equal(t, *campus, *resp.CampusID)

	created := env.rec.OfKind(events.KindLoanRequestCreated)
	require.Len(t, created, 1)
	assert.Equal(t, campus, created[0].CampusID)
}

// Concurrent submits for the same pair leave exactly one pending row.
func TestSubmit_UniquenessUnderRace(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			env := newTestEnv(t, strategy)
			book := env.fx.Book("Dune", nil)
			requester := env.fx.User("ana", nil, model.RoleUser)

			const workers = 8
			var wg sync.WaitGroup
			errs := make([]error, workers)
			start := make(chan struct{})
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, errs[i] = env.requests.Submit(context.Background(), book.ID, requester.ID)
				}(i)
			}
			close(start)
			wg.Wait()

			var ok, dup int
			for _, err := range errs {
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrDuplicatePendingRequest):
					dup++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, 1, ok)
			assert.Equal(t, workers-1, dup)

			var pending int64
			require.NoError(t, env.db.Model(&model.LoanRequest{}).
				Where("book_id = ? AND requester_id = ? AND status = ?", book.ID, requester.ID, model.LoanRequestPending).
				Count(&pending).Error)
			assert.Equal(t, int64(1), pending)
			assert.Len(t, env.rec.OfKind(events.KindLoanRequestCreated), 1)
		})
	}
}

// Both callers passed the pre-check; the store still rejects the second insert.
func TestInsert_GuardRejectsAfterPrecheck(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			env := newTestEnv(t, strategy)
			ctx := context.Background()

			_, err := env.repos.LoanRequests.FindPendingBy(ctx, 1, 2)
			require.True(t, repository.IsNotFound(err))

			require.NoError(t, env.repos.LoanRequests.Insert(ctx, &model.LoanRequest{BookID: 1, RequesterID: 2, Status: model.LoanRequestPending}))
			err = env.repos.LoanRequests.Insert(ctx, &model.LoanRequest{BookID: 1, RequesterID: 2, Status: model.LoanRequestPending})
			assert.ErrorIs(t, err, repository.ErrConflict)
		})
	}
}

// Approving opens a loan, reserves the book and notifies the requester.
func TestDecide_Approve(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	campus := env.fx.Campus("North")
	book := env.fx.Book("Dune", campus)
	requester := env.fx.User("ana", campus, model.RoleUser)
	staff := env.fx.User("sam", campus, model.RoleStaff)

	submitted, err := env.requests.Submit(ctx, book.ID, requester.ID)
	require.NoError(t, err)
	env.rec.Reset()

	resp, err := env.requests.Decide(ctx, submitted.ID, staff.ID, OutcomeApprove)
	require.NoError(t, err)
	assert.Equal(t, model.LoanRequestApproved, resp.Status)
	require.NotNil(t, resp.ApproverID)
	assert.Equal(t, staff.ID, *resp.ApproverID)
	require.NotNil(t, resp.DecidedAt)
	assert.Equal(t, "2024-09-02T10:00:00Z", *resp.DecidedAt)
	require.NotNil(t, resp.LoanID)

	updated := env.rec.OfKind(events.KindLoanRequestUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, []events.Channel{events.ChannelAdminLoanRequests, events.UserLoanRequestsChannel(requester.ID)}, updated[0].Channels)
	payload := updated[0].Payload.(events.LoanRequestUpdatedPayload)
	name, _ := payload.ApproverName.Get()
	assert.Equal(t, "sam", name)

	dash := env.rec.OfKind(events.KindDashboardSummaryUpdated)
	require.Len(t, dash, 1)
	assert.Equal(t, "book.updated", dash[0].Payload.(events.DashboardSummaryPayload).Source)
	assert.Len(t, env.rec.OfKind(events.KindActivityLogsUpdated), 1)

	loan, err := env.repos.Loans.FindByID(ctx, *resp.LoanID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanProcessing, loan.Status)
	assert.Equal(t, requester.ID, loan.UserID)
	assert.True(t, loan.ReturnDate.Equal(clock.AddDate(0, 0, 14)))

	reloaded, err := env.repos.Books.FindByID(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsAvailable)
}

func TestDecide_Reject(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	book := env.fx.Book("Dune", nil)
	requester := env.fx.User("ana", nil, model.RoleUser)
	admin := env.fx.User("ada", nil, model.RoleAdmin)

	submitted, err := env.requests.Submit(ctx, book.ID, requester.ID)
	require.NoError(t, err)
	env.rec.Reset()

	resp, err := env.requests.Decide(ctx, submitted.ID, admin.ID, OutcomeReject)
	require.NoError(t, err)
	assert.Equal(t, model.LoanRequestRejected, resp.Status)
	require.NotNil(t, resp.ApproverID)
	assert.Equal(t, admin.ID, *resp.ApproverID)
	assert.Nil(t, resp.LoanID)

	assert.Len(t, env.rec.OfKind(events.KindLoanRequestUpdated), 1)
	assert.Empty(t, env.rec.OfKind(events.KindDashboardSummaryUpdated))

	reloaded, err := env.repos.Books.FindByID(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.IsAvailable)
}

func TestDecide_Authorization(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	north := env.fx.Campus("North")
	south := env.fx.Campus("South")
	book := env.fx.Book("Dune", north)
	requester := env.fx.User("ana", north, model.RoleUser)

	member := env.fx.User("mia", north, model.RoleUser)
	southStaff := env.fx.User("sol", south, model.RoleStaff)
	southAdmin := env.fx.User("sue", south, model.RoleAdmin)
	idleStaff := env.fx.User("ian", north, model.RoleStaff)
	_, err := env.repos.Users.SetActive(ctx, idleStaff.ID, false)
	require.NoError(t, err)
	super := env.fx.User("zed", south, model.RoleSuperAdmin)

	submitted, err := env.requests.Submit(ctx, book.ID, requester.ID)
	require.NoError(t, err)

	for _, actor := range []uint{member.ID, southStaff.ID, southAdmin.ID, idleStaff.ID, 9999} {
		_, err := env.requests.Decide(ctx, submitted.ID, actor, OutcomeApprove)
		assert.ErrorIs(t, err, ErrUnauthorizedActor, "actor %d", actor)
	}

	_, err = env.requests.Decide(ctx, submitted.ID, super.ID, OutcomeReject)
	assert.NoError(t, err, "super-admin decides on any campus")

	_, err = env.requests.Decide(ctx, 9999, super.ID, OutcomeReject)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.requests.Decide(ctx, submitted.ID, super.ID, "maybe")
	assert.ErrorIs(t, err, ErrInvalidOutcome)
}

// Two deciders race; exactly one wins and only the winner emits.
func TestDecide_Race(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	book := env.fx.Book("Dune", nil)
	requester := env.fx.User("ana", nil, model.RoleUser)
	a := env.fx.User("ada", nil, model.RoleAdmin)
	b := env.fx.User("bea", nil, model.RoleAdmin)

	submitted, err := env.requests.Submit(ctx, book.ID, requester.ID)
	require.NoError(t, err)
	env.rec.Reset()

	outcomes := []Outcome{OutcomeApprove, OutcomeReject}
	actors := []uint{a.ID, b.ID}
	results := make([]LoanRequestResponse, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = env.requests.Decide(ctx, submitted.ID, actors[i], outcomes[i])
		}(i)
	}
	close(start)
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "two winners")
			winner = i
		} else {
			assert.ErrorIs(t, err, ErrInvalidTransition)
		}
	}
	require.NotEqual(t, -1, winner)

	final, err := env.repos.LoanRequests.FindByID(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, results[winner].Status, final.Status)
	assert.Equal(t, actors[winner], *final.ApproverID)
	assert.Len(t, env.rec.OfKind(events.KindLoanRequestUpdated), 1)
}

func TestCompareAndSetStatus_SecondWriterLoses(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	req := &model.LoanRequest{BookID: 1, RequesterID: 1, Status: model.LoanRequestPending}
	require.NoError(t, env.repos.LoanRequests.Insert(ctx, req))

	approver := uint(5)
	won, err := env.repos.LoanRequests.CompareAndSetStatus(ctx, req.ID, model.LoanRequestPending,
		model.LoanRequestTransition{Status: model.LoanRequestApproved, ApproverID: &approver, DecidedAt: clock})
	require.NoError(t, err)
	assert.True(t, won)

	won, err = env.repos.LoanRequests.CompareAndSetStatus(ctx, req.ID, model.LoanRequestPending,
		model.LoanRequestTransition{Status: model.LoanRequestRejected, DecidedAt: clock})
	require.NoError(t, err)
	assert.False(t, won)
}

func TestDecide_BookAlreadyOnLoanRollsBack(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	book := env.fx.Book("Dune", nil)
	ana := env.fx.User("ana", nil, model.RoleUser)
	ben := env.fx.User("ben", nil, model.RoleUser)
	admin := env.fx.User("ada", nil, model.RoleAdmin)

	first, err := env.requests.Submit(ctx, book.ID, ana.ID)
	require.NoError(t, err)
	second, err := env.requests.Submit(ctx, book.ID, ben.ID)
	require.NoError(t, err)

	_, err = env.requests.Decide(ctx, first.ID, admin.ID, OutcomeApprove)
	require.NoError(t, err)
	env.rec.Reset()

	_, err = env.requests.Decide(ctx, second.ID, admin.ID, OutcomeApprove)
	assert.ErrorIs(t, err, ErrBookUnavailable)
	assert.Empty(t, env.rec.Events())

	still, err := env.repos.LoanRequests.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanRequestPending, still.Status, "failed approval must not leave a half-written decision")
	assert.Nil(t, still.DecidedAt)

	_, err = env.requests.Decide(ctx, second.ID, admin.ID, OutcomeReject)
	assert.NoError(t, err)
}

// Only the requester may cancel, cancelling twice fails, and the pair can be resubmitted.
func TestCancel(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	book := env.fx.Book("Dune", nil)
	requester := env.fx.User("ana", nil, model.RoleUser)
	other := env.fx.User("ben", nil, model.RoleUser)

	submitted, err := env.requests.Submit(ctx, book.ID, requester.ID)
	require.NoError(t, err)
	env.rec.Reset()

	_, err = env.requests.Cancel(ctx, submitted.ID, other.ID)
	assert.ErrorIs(t, err, ErrUnauthorizedActor)

	resp, err := env.requests.Cancel(ctx, submitted.ID, requester.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanRequestRejected, resp.Status)
	assert.Nil(t, resp.ApproverID, "self-cancellation leaves no approver")
	assert.NotNil(t, resp.DecidedAt)

	_, err = env.requests.Cancel(ctx, submitted.ID, requester.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = env.requests.Cancel(ctx, 9999, requester.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	updated := env.rec.OfKind(events.KindLoanRequestUpdated)
	require.Len(t, updated, 1, "the failed second cancel emits nothing")
	payload := updated[0].Payload.(events.LoanRequestUpdatedPayload)
	assert.False(t, payload.ApproverID.IsSome())

	// the pair can be requested again once the old one is decided
	_, err = env.requests.Submit(ctx, book.ID, requester.ID)
	assert.NoError(t, err)
}

// Every request's created event is published before any of its updates.
func TestEvents_CreatedPrecedesUpdated(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	book := env.fx.Book("Dune", nil)
	requester := env.fx.User("ana", nil, model.RoleUser)
	admin := env.fx.User("ada", nil, model.RoleAdmin)

	var ids []uint
	for i := 0; i < 3; i++ {
		r, err := env.requests.Submit(ctx, book.ID, requester.ID)
		require.NoError(t, err)
		ids = append(ids, r.ID)
		if i%2 == 0 {
			_, err = env.requests.Decide(ctx, r.ID, admin.ID, OutcomeReject)
		} else {
			_, err = env.requests.Cancel(ctx, r.ID, requester.ID)
		}
		require.NoError(t, err)
	}

	seen := map[uint]events.Kind{}
	for _, e := range env.rec.Events() {
		switch p := e.Payload.(type) {
		case events.LoanRequestCreatedPayload:
			_, dup := seen[p.ID]
			assert.False(t, dup)
			seen[p.ID] = e.Kind
		case events.LoanRequestUpdatedPayload:
			assert.Equal(t, events.KindLoanRequestCreated, seen[p.ID], "updated before created for %d", p.ID)
			seen[p.ID] = e.Kind
		}
	}
	for _, id := range ids {
		assert.Equal(t, events.KindLoanRequestUpdated, seen[id])
	}
}

type brokenTransport struct{}

func (brokenTransport) Name() events.TransportName { return "broken" }

func (brokenTransport) Deliver(context.Context, events.Event) error { return errors.New("connection refused") }

func TestTransitions_SurviveDeliveryFailure(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	env.withPublisher(events.NewDispatcher(brokenTransport{}, slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()
	book := env.fx.Book("Dune", nil)
	requester := env.fx.User("ana", nil, model.RoleUser)
	admin := env.fx.User("ada", nil, model.RoleAdmin)

	r, err := env.requests.Submit(ctx, book.ID, requester.ID)
	require.NoError(t, err)
	_, err = env.requests.Decide(ctx, r.ID, admin.ID, OutcomeApprove)
	require.NoError(t, err)

	final, err := env.repos.LoanRequests.FindByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanRequestApproved, final.Status)
}

func TestGetAndList_Scope(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	north := env.fx.Campus("North")
	south := env.fx.Campus("South")
	book := env.fx.Book("Dune", nil)
	ana := env.fx.User("ana", north, model.RoleUser)
	ben := env.fx.User("ben", south, model.RoleUser)
	northStaff := env.fx.User("sam", north, model.RoleStaff)

	ra, err := env.requests.Submit(ctx, book.ID, ana.ID)
	require.NoError(t, err)
	rb, err := env.requests.Submit(ctx, book.ID, ben.ID)
	require.NoError(t, err)

	anaActor := policy.ActorFromUser(ana)
	staffActor := policy.ActorFromUser(northStaff)
	global := policy.Actor{ID: 999, Roles: []string{model.RoleSuperAdmin}}

	_, err = env.requests.Get(ctx, ra.ID, anaActor)
	assert.NoError(t, err)
	_, err = env.requests.Get(ctx, rb.ID, anaActor)
	assert.ErrorIs(t, err, ErrUnauthorizedActor)
	_, err = env.requests.Get(ctx, rb.ID, staffActor)
	assert.ErrorIs(t, err, ErrUnauthorizedActor)
	_, err = env.requests.Get(ctx, rb.ID, global)
	assert.NoError(t, err)
	_, err = env.requests.Get(ctx, 9999, global)
	assert.ErrorIs(t, err, ErrNotFound)

	list, total, err := env.requests.List(ctx, anaActor, LoanRequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, ra.ID, list[0].ID)

	_, total, err = env.requests.List(ctx, staffActor, LoanRequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)

	list, total, err = env.requests.List(ctx, global, LoanRequestFilter{Status: model.LoanRequestPending, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, list, 1)
	assert.Equal(t, rb.ID, list[0].ID, "newest first")
}

// staleRequests answers reads from an earlier view of the table, standing in for
// a concurrent writer that committed between our read and our write.
type staleRequests struct {
	repository.LoanRequestRepository
	hidePending bool
	snapshot    *model.LoanRequest
	reloadErr   error
}

func (s staleRequests) FindPendingBy(ctx context.Context, bookID, requesterID uint) (*model.LoanRequest, error) {
	if s.hidePending {
		return nil, gorm.ErrRecordNotFound
	}
	return s.LoanRequestRepository.FindPendingBy(ctx, bookID, requesterID)
}

func (s staleRequests) FindByID(ctx context.Context, id uint) (*model.LoanRequest, error) {
	if s.snapshot != nil && s.snapshot.ID == id {
		cp := *s.snapshot
		return &cp, nil
	}
	return s.LoanRequestRepository.FindByID(ctx, id)
}

func (s staleRequests) FindByIDWithRelations(ctx context.Context, id uint) (*model.LoanRequest, error) {
	if s.reloadErr != nil {
		return nil, s.reloadErr
	}
	return s.LoanRequestRepository.FindByIDWithRelations(ctx, id)
}

func TestSubmit_GuardConflictAfterPrecheck(t *testing.T) {
	for _, strategy := range strategies {
		t.Run(string(strategy), func(t *testing.T) {
			env := newTestEnv(t, strategy)
			ctx := context.Background()
			book := env.fx.Book("Dune", nil)
			requester := env.fx.User("ana", nil, model.RoleUser)

			_, err := env.requests.Submit(ctx, book.ID, requester.ID)
			require.NoError(t, err)
			env.rec.Reset()

			env.requests.repos.LoanRequests = staleRequests{LoanRequestRepository: env.repos.LoanRequests, hidePending: true}
			_, err = env.requests.Submit(ctx, book.ID, requester.ID)
			assert.ErrorIs(t, err, ErrDuplicatePendingRequest)
			assert.Empty(t, env.rec.Events())

			pending, err := env.repos.LoanRequests.CountPending(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(1), pending)
		})
	}
}

func TestDecide_LosesToEarlierDecision(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	book := env.fx.Book("Dune", nil)
	requester := env.fx.User("ana", nil, model.RoleUser)
	first := env.fx.User("ada", nil, model.RoleAdmin)
	second := env.fx.User("max", nil, model.RoleAdmin)

	submitted, err := env.requests.Submit(ctx, book.ID, requester.ID)
	require.NoError(t, err)
	seen, err := env.repos.LoanRequests.FindByID(ctx, submitted.ID)
	require.NoError(t, err)

	_, err = env.requests.Decide(ctx, submitted.ID, first.ID, OutcomeReject)
	require.NoError(t, err)
	env.rec.Reset()

	env.requests.repos.LoanRequests = staleRequests{LoanRequestRepository: env.repos.LoanRequests, snapshot: seen}
	_, err = env.requests.Decide(ctx, submitted.ID, second.ID, OutcomeApprove)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, env.rec.Events())

	final, err := env.repos.LoanRequests.FindByID(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanRequestRejected, final.Status)
	require.NotNil(t, final.ApproverID)
	assert.Equal(t, first.ID, *final.ApproverID)

	stillFree, err := env.repos.Books.FindByID(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, stillFree.IsAvailable)
}

func TestCancel_LosesToEarlierDecision(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	book := env.fx.Book("Dune", nil)
	requester := env.fx.User("ana", nil, model.RoleUser)
	admin := env.fx.User("ada", nil, model.RoleAdmin)

	submitted, err := env.requests.Submit(ctx, book.ID, requester.ID)
	require.NoError(t, err)
	seen, err := env.repos.LoanRequests.FindByID(ctx, submitted.ID)
	require.NoError(t, err)

	_, err = env.requests.Decide(ctx, submitted.ID, admin.ID, OutcomeApprove)
	require.NoError(t, err)
	env.rec.Reset()

	env.requests.repos.LoanRequests = staleRequests{LoanRequestRepository: env.repos.LoanRequests, snapshot: seen}
	_, err = env.requests.Cancel(ctx, submitted.ID, requester.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Empty(t, env.rec.Events())

	final, err := env.repos.LoanRequests.FindByID(ctx, submitted.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanRequestApproved, final.Status)
}

// cancelAfterCommit cancels the caller's context as soon as the transaction has
// committed, like a client hanging up mid-response.
type cancelAfterCommit struct {
	repository.TransactionManager
	cancel context.CancelFunc
}

func (c cancelAfterCommit) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	err := c.TransactionManager.RunInTx(ctx, fn)
	if err == nil {
		c.cancel()
	}
	return err
}

func TestTransitions_CommittedDespiteCallerHangup(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	book := env.fx.Book("Dune", nil)
	requester := env.fx.User("ana", nil, model.RoleUser)
	admin := env.fx.User("ada", nil, model.RoleAdmin)

	hangup := func() context.Context {
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		tx := cancelAfterCommit{TransactionManager: env.repos.Tx, cancel: cancel}
		env.requests.repos.Tx = tx
		env.loans.repos.Tx = tx
		return ctx
	}

	submitted, err := env.requests.Submit(hangup(), book.ID, requester.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanRequestPending, submitted.Status)
	require.NotNil(t, submitted.BookTitle)
	assert.Len(t, env.rec.OfKind(events.KindLoanRequestCreated), 1)
	env.rec.Reset()

	decided, err := env.requests.Decide(hangup(), submitted.ID, admin.ID, OutcomeApprove)
	require.NoError(t, err)
	assert.Equal(t, model.LoanRequestApproved, decided.Status)
	require.NotNil(t, decided.LoanID)
	assert.Len(t, env.rec.OfKind(events.KindLoanRequestUpdated), 1)
	assert.Len(t, env.rec.OfKind(events.KindDashboardSummaryUpdated), 1)
	env.rec.Reset()

	returned, err := env.loans.Return(hangup(), *decided.LoanID, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanReturned, returned.Status)
	assert.Len(t, env.rec.OfKind(events.KindActivityLogsUpdated), 1)
	env.rec.Reset()

	again, err := env.requests.Submit(hangup(), book.ID, requester.ID)
	require.NoError(t, err)
	_, err = env.requests.Cancel(hangup(), again.ID, requester.ID)
	require.NoError(t, err)
	assert.Len(t, env.rec.OfKind(events.KindLoanRequestCreated), 1)
	assert.Len(t, env.rec.OfKind(events.KindLoanRequestUpdated), 1)
}

// A failed read after commit still answers from the transaction's own data.
func TestTransitions_ReloadFailureStillReports(t *testing.T) {
	env := newTestEnv(t, database.GuardAuto)
	ctx := context.Background()
	book := env.fx.Book("Dune", nil)
	requester := env.fx.User("ana", nil, model.RoleUser)
	admin := env.fx.User("ada", nil, model.RoleAdmin)

	env.requests.repos.LoanRequests = staleRequests{LoanRequestRepository: env.repos.LoanRequests, reloadErr: errors.New("connection reset")}

	submitted, err := env.requests.Submit(ctx, book.ID, requester.ID)
	require.NoError(t, err)
	assert.NotZero(t, submitted.ID)
	assert.Equal(t, model.LoanRequestPending, submitted.Status)
	require.NotNil(t, submitted.BookTitle)
	assert.Equal(t, "Dune", *submitted.BookTitle)
	require.NotNil(t, submitted.RequesterName)
	assert.Equal(t, "ana", *submitted.RequesterName)

	decided, err := env.requests.Decide(ctx, submitted.ID, admin.ID, OutcomeReject)
	require.NoError(t, err)
	assert.Equal(t, model.LoanRequestRejected, decided.Status)
	require.NotNil(t, decided.ApproverID)
	assert.Equal(t, admin.ID, *decided.ApproverID)
	require.NotNil(t, decided.DecidedAt)
	assert.Equal(t, "2024-09-02T10:00:00Z", *decided.DecidedAt)

	assert.Len(t, env.rec.OfKind(events.KindLoanRequestCreated), 1)
	updated := env.rec.OfKind(events.KindLoanRequestUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, model.LoanRequestRejected, updated[0].Payload.(events.LoanRequestUpdatedPayload).Status)
}
