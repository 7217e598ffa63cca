package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"libraryhub/internal/dashboard"
	"libraryhub/internal/events"
	"libraryhub/internal/model"
	"libraryhub/internal/policy"
	"libraryhub/internal/repository"
	"libraryhub/pkg/pagination"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const subjectLoanRequest = "book_loan_request"

// --- DTOs ---

type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)

type SubmitLoanRequestDTO struct {
	BookID uint `json:"book_id" binding:"required"`
}

type LoanRequestFilter struct {
	Status      string
	RequesterID *uint
	BookID      *uint
	Page        int
	Limit       int
}

type LoanRequestResponse struct {
	ID            uint    `json:"id"`
	BookID        uint    `json:"book_id"`
	BookTitle     *string `json:"book_title"`
	RequesterID   uint    `json:"requester_id"`
	RequesterName *string `json:"requester_name"`
	ApproverID    *uint   `json:"approver_id"`
	ApproverName  *string `json:"approver_name"`
	CampusID      *uint   `json:"campus_id"`
	Status        string  `json:"status"`
	DecidedAt     *string `json:"decided_at"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
	LoanID        *uint   `json:"loan_id,omitempty"`
}

// --- Interface ---

type LoanRequestService interface {
	Submit(ctx context.Context, bookID, requesterID uint) (LoanRequestResponse, error)
	Decide(ctx context.Context, requestID, actorID uint, outcome Outcome) (LoanRequestResponse, error)
	Cancel(ctx context.Context, requestID, requesterID uint) (LoanRequestResponse, error)
	Get(ctx context.Context, requestID uint, actor policy.Actor) (LoanRequestResponse, error)
	List(ctx context.Context, actor policy.Actor, filter LoanRequestFilter) ([]LoanRequestResponse, int64, error)
}

type loanRequestService struct {
	repos      repository.Repositories
	publisher  events.Publisher
	dashboard  *dashboard.Aggregator
	loanPeriod int
	now        func() time.Time
}

func NewLoanRequestService(repos repository.Repositories, publisher events.Publisher, agg *dashboard.Aggregator, loanPeriodDays int) LoanRequestService {
	return &loanRequestService{
		repos:      repos,
		publisher:  publisher,
		dashboard:  agg,
		loanPeriod: loanPeriodDays,
		now:        time.Now,
	}
}

// --- Implementation ---

func (s *loanRequestService) Submit(ctx context.Context, bookID, requesterID uint) (resp LoanRequestResponse, err error) {
	ctx, span := tracer.Start(ctx, "loan_request.submit", trace.WithAttributes(
		attribute.Int64("book.id", int64(bookID)),
		attribute.Int64("requester.id", int64(requesterID)),
	))
	defer func() { endSpan(span, err) }()

	var req *model.LoanRequest
	var activity *model.ActivityLog

	err = s.repos.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		requester, findErr := s.repos.Users.GetByID(txCtx, requesterID)
		if findErr != nil {
			if repository.IsNotFound(findErr) {
				return fmt.Errorf("requester %d: %w", requesterID, ErrNotFound)
			}
			return fmt.Errorf("failed to load requester: %w", findErr)
		}
		if !requester.IsActive {
			return ErrInactiveAccount
		}

		book, findErr := s.repos.Books.FindByID(txCtx, bookID)
		if findErr != nil {
			if repository.IsNotFound(findErr) {
				return ErrBookNotFound
			}
			return fmt.Errorf("failed to load book: %w", findErr)
		}
		if book.IsDeleted {
			return ErrBookNotFound
		}

		if _, findErr := s.repos.LoanRequests.FindPendingBy(txCtx, bookID, requesterID); findErr == nil {
			return ErrDuplicatePendingRequest
		} else if !repository.IsNotFound(findErr) {
			return fmt.Errorf("failed to check pending requests: %w", findErr)
		}

		req = &model.LoanRequest{
			BookID:      bookID,
			RequesterID: requesterID,
			CampusID:    requester.CampusID,
			Status:      model.LoanRequestPending,
		}
		// the pre-check above can race; the guard index is authoritative
		if insErr := s.repos.LoanRequests.Insert(txCtx, req); insErr != nil {
			if errors.Is(insErr, repository.ErrConflict) {
				return ErrDuplicatePendingRequest
			}
			return fmt.Errorf("failed to create loan request: %w", insErr)
		}
		req.Requester, req.Book = requester, book

		var logErr error
		activity, logErr = recordActivity(txCtx, s.repos.Activities, &requesterID, model.ActivityLoanRequestSubmitted, subjectLoanRequest, req.ID, map[string]interface{}{
			"book_id":   bookID,
			"campus_id": requester.CampusID,
		})
		return logErr
	})
	if err != nil {
		return LoanRequestResponse{}, err
	}

	// committed: nothing below may fail the caller or be cut short by it
	ctx = context.WithoutCancel(ctx)
	loaded := s.reload(ctx, req)

	s.publisher.Publish(ctx,
		events.LoanRequestCreated(events.SnapshotLoanRequest(loaded), s.now()),
		activitySignal(activity),
	)
	return toLoanRequestResponse(*loaded), nil
}

func (s *loanRequestService) Decide(ctx context.Context, requestID, actorID uint, outcome Outcome) (resp LoanRequestResponse, err error) {
	ctx, span := tracer.Start(ctx, "loan_request.decide", trace.WithAttributes(
		attribute.Int64("loan_request.id", int64(requestID)),
		attribute.Int64("actor.id", int64(actorID)),
		attribute.String("outcome", string(outcome)),
	))
	defer func() { endSpan(span, err) }()

	var status, action string
	switch outcome {
	case OutcomeApprove:
		status, action = model.LoanRequestApproved, model.ActivityLoanRequestApproved
	case OutcomeReject:
		status, action = model.LoanRequestRejected, model.ActivityLoanRequestRejected
	default:
		return LoanRequestResponse{}, ErrInvalidOutcome
	}

	var req *model.LoanRequest
	var loan *model.Loan
	var activity *model.ActivityLog

	err = s.repos.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		req, findErr = s.repos.LoanRequests.FindByID(txCtx, requestID)
		if findErr != nil {
			if repository.IsNotFound(findErr) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load loan request: %w", findErr)
		}

		if authErr := s.authorizeDecision(txCtx, actorID, req.CampusID); authErr != nil {
			return authErr
		}
		if !req.IsPending() {
			return ErrInvalidTransition
		}

		now := s.now().UTC()
		won, casErr := s.repos.LoanRequests.CompareAndSetStatus(txCtx, requestID, model.LoanRequestPending, model.LoanRequestTransition{
			Status:     status,
			ApproverID: &actorID,
			DecidedAt:  now,
		})
		if casErr != nil {
			return fmt.Errorf("failed to update loan request: %w", casErr)
		}
		if !won {
			return ErrInvalidTransition
		}
		req.Status, req.ApproverID, req.DecidedAt = status, &actorID, &now

		props := map[string]interface{}{"book_id": req.BookID, "requester_id": req.RequesterID}
		if outcome == OutcomeApprove {
			var loanErr error
			loan, loanErr = s.openLoan(txCtx, req, now)
			if loanErr != nil {
				return loanErr
			}
			props["loan_id"] = loan.ID
		}

		var logErr error
		activity, logErr = recordActivity(txCtx, s.repos.Activities, &actorID, action, subjectLoanRequest, req.ID, props)
		return logErr
	})
	if err != nil {
		return LoanRequestResponse{}, err
	}

	ctx = context.WithoutCancel(ctx)
	loaded := s.reload(ctx, req)

	s.publisher.Publish(ctx,
		events.LoanRequestUpdated(events.SnapshotLoanRequest(loaded), s.now()),
		activitySignal(activity),
	)
	if loan != nil {
		s.dashboard.Observe(ctx, dashboard.Mutation{Entity: dashboard.EntityBook, Action: dashboard.ActionUpdated, Changed: []string{"is_available"}})
	}

	resp = toLoanRequestResponse(*loaded)
	if loan != nil {
		resp.LoanID = &loan.ID
	}
	return resp, nil
}

// openLoan reserves the book and creates the loan. Losing the availability race
// aborts the whole decision.
func (s *loanRequestService) openLoan(ctx context.Context, req *model.LoanRequest, now time.Time) (*model.Loan, error) {
	reserved, err := s.repos.Books.CompareAndSetAvailability(ctx, req.BookID, true, false)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve book: %w", err)
	}
	if !reserved {
		return nil, ErrBookUnavailable
	}

	loan := &model.Loan{
		LoanRequestID: &req.ID,
		BookID:        req.BookID,
		UserID:        req.RequesterID,
		CampusID:      req.CampusID,
		Status:        model.LoanProcessing,
		ReturnDate:    now.AddDate(0, 0, s.loanPeriod),
	}
	if err := s.repos.Loans.Create(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to create loan: %w", err)
	}
	return loan, nil
}

func (s *loanRequestService) authorizeDecision(ctx context.Context, actorID uint, campusID *uint) error {
	user, err := s.repos.Users.GetByID(ctx, actorID)
	if err != nil {
		if repository.IsNotFound(err) {
			return ErrUnauthorizedActor
		}
		return fmt.Errorf("failed to load actor: %w", err)
	}
	if !user.IsActive || !policy.CanDecide(policy.ActorFromUser(user), campusID) {
		return ErrUnauthorizedActor
	}
	return nil
}

func (s *loanRequestService) Cancel(ctx context.Context, requestID, requesterID uint) (resp LoanRequestResponse, err error) {
	ctx, span := tracer.Start(ctx, "loan_request.cancel", trace.WithAttributes(
		attribute.Int64("loan_request.id", int64(requestID)),
		attribute.Int64("requester.id", int64(requesterID)),
	))
	defer func() { endSpan(span, err) }()

	var req *model.LoanRequest
	var activity *model.ActivityLog

	err = s.repos.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var findErr error
		req, findErr = s.repos.LoanRequests.FindByID(txCtx, requestID)
		if findErr != nil {
			if repository.IsNotFound(findErr) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load loan request: %w", findErr)
		}
		if req.RequesterID != requesterID {
			return ErrUnauthorizedActor
		}
		if !req.IsPending() {
			return ErrInvalidTransition
		}

		decidedAt := s.now().UTC()
		won, casErr := s.repos.LoanRequests.CompareAndSetStatus(txCtx, requestID, model.LoanRequestPending, model.LoanRequestTransition{
			Status:    model.LoanRequestRejected,
			DecidedAt: decidedAt,
		})
		if casErr != nil {
			return fmt.Errorf("failed to cancel loan request: %w", casErr)
		}
		if !won {
			return ErrInvalidTransition
		}
		req.Status, req.DecidedAt = model.LoanRequestRejected, &decidedAt

		var logErr error
		activity, logErr = recordActivity(txCtx, s.repos.Activities, &requesterID, model.ActivityLoanRequestCanceled, subjectLoanRequest, req.ID, map[string]interface{}{
			"book_id": req.BookID,
		})
		return logErr
	})
	if err != nil {
		return LoanRequestResponse{}, err
	}

	ctx = context.WithoutCancel(ctx)
	loaded := s.reload(ctx, req)

	s.publisher.Publish(ctx,
		events.LoanRequestUpdated(events.SnapshotLoanRequest(loaded), s.now()),
		activitySignal(activity),
	)
	return toLoanRequestResponse(*loaded), nil
}

// Get returns a request visible to actor: their own, or one in their campus scope for staff.
func (s *loanRequestService) Get(ctx context.Context, requestID uint, actor policy.Actor) (LoanRequestResponse, error) {
	req, err := s.repos.LoanRequests.FindByIDWithRelations(ctx, requestID)
	if err != nil {
		if repository.IsNotFound(err) {
			return LoanRequestResponse{}, ErrNotFound
		}
		return LoanRequestResponse{}, fmt.Errorf("failed to load loan request: %w", err)
	}
	if req.RequesterID != actor.ID && !(actor.IsStaff() && policy.InScope(actor, req.CampusID)) {
		return LoanRequestResponse{}, ErrUnauthorizedActor
	}
	return toLoanRequestResponse(*req), nil
}

// List shows regular users only their own requests and campus staff only their campus.
func (s *loanRequestService) List(ctx context.Context, actor policy.Actor, filter LoanRequestFilter) ([]LoanRequestResponse, int64, error) {
	p := pagination.Normalize(filter.Page, filter.Limit)
	f := repository.LoanRequestFilter{
		Status:      filter.Status,
		RequesterID: filter.RequesterID,
		BookID:      filter.BookID,
		Page:        p.Page,
		Limit:       p.Limit,
	}
	if actor.IsStaff() {
		f.CampusID, f.Scoped = policy.ScopeFilter(actor)
	} else {
		own := actor.ID
		f.RequesterID = &own
	}

	requests, total, err := s.repos.LoanRequests.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch loan requests: %w", err)
	}

	result := make([]LoanRequestResponse, 0, len(requests))
	for _, r := range requests {
		result = append(result, toLoanRequestResponse(r))
	}
	return result, total, nil
}

// reload fetches the committed row with its relations. The transition is already
// durable, so a failed read falls back to what the transaction wrote.
func (s *loanRequestService) reload(ctx context.Context, req *model.LoanRequest) *model.LoanRequest {
	loaded, err := s.repos.LoanRequests.FindByIDWithRelations(ctx, req.ID)
	if err != nil {
		slog.WarnContext(ctx, "failed to reload loan request after commit", "loan_request_id", req.ID, "error", err)
		return req
	}
	return loaded
}

func toLoanRequestResponse(r model.LoanRequest) LoanRequestResponse {
	resp := LoanRequestResponse{
		ID:          r.ID,
		BookID:      r.BookID,
		RequesterID: r.RequesterID,
		ApproverID:  r.ApproverID,
		CampusID:    r.CampusID,
		Status:      r.Status,
		CreatedAt:   events.FormatTime(r.CreatedAt),
		UpdatedAt:   events.FormatTime(r.UpdatedAt),
	}
	if r.Book != nil {
		resp.BookTitle = &r.Book.Title
	}
	if r.Requester != nil {
		resp.RequesterName = &r.Requester.Name
	}
	if r.Approver != nil {
		resp.ApproverName = &r.Approver.Name
	}
	if r.DecidedAt != nil {
		at := events.FormatTime(*r.DecidedAt)
		resp.DecidedAt = &at
	}
	return resp
}
