package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"libraryhub/internal/dashboard"
	"libraryhub/internal/events"
	"libraryhub/internal/model"
	"libraryhub/internal/policy"
	"libraryhub/internal/repository"
	"libraryhub/pkg/pagination"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const subjectLoan = "loan"

type LoanFilter struct {
	Status string
	UserID *uint
	Page   int
	Limit  int
}

type LoanResponse struct {
	ID            uint    `json:"id"`
	LoanRequestID *uint   `json:"loan_request_id"`
	BookID        uint    `json:"book_id"`
	BookTitle     *string `json:"book_title"`
	UserID        uint    `json:"user_id"`
	UserName      *string `json:"user_name"`
	CampusID      *uint   `json:"campus_id"`
	Status        string  `json:"status"`
	ReturnDate    string  `json:"return_date"`
	ReturnedAt    *string `json:"returned_at"`
	Fine          string  `json:"fine"`
	CreatedAt     string  `json:"created_at"`
}

type LoanService interface {
	Return(ctx context.Context, loanID, actorID uint) (LoanResponse, error)
	Cancel(ctx context.Context, loanID, actorID uint) (LoanResponse, error)
	List(ctx context.Context, actor policy.Actor, filter LoanFilter) ([]LoanResponse, int64, error)
}

type loanService struct {
	repos      repository.Repositories
	publisher  events.Publisher
	dashboard  *dashboard.Aggregator
	finePerDay decimal.Decimal
	now        func() time.Time
}

func NewLoanService(repos repository.Repositories, publisher events.Publisher, agg *dashboard.Aggregator, finePerDay decimal.Decimal) LoanService {
	return &loanService{
		repos:      repos,
		publisher:  publisher,
		dashboard:  agg,
		finePerDay: finePerDay,
		now:        time.Now,
	}
}

// OverdueFine charges finePerDay for every whole day past due.
func OverdueFine(due, returned time.Time, finePerDay decimal.Decimal) decimal.Decimal {
	late := returned.Sub(due)
	if late <= 0 {
		return decimal.Zero
	}
	days := int64(late / (24 * time.Hour))
	return finePerDay.Mul(decimal.NewFromInt(days))
}

func (s *loanService) Return(ctx context.Context, loanID, actorID uint) (resp LoanResponse, err error) {
	ctx, span := tracer.Start(ctx, "loan.return", trace.WithAttributes(
		attribute.Int64("loan.id", int64(loanID)),
		attribute.Int64("actor.id", int64(actorID)),
	))
	defer func() { endSpan(span, err) }()

	return s.close(ctx, loanID, actorID, model.LoanReturned, model.ActivityLoanReturned)
}

func (s *loanService) Cancel(ctx context.Context, loanID, actorID uint) (resp LoanResponse, err error) {
	ctx, span := tracer.Start(ctx, "loan.cancel", trace.WithAttributes(
		attribute.Int64("loan.id", int64(loanID)),
		attribute.Int64("actor.id", int64(actorID)),
	))
	defer func() { endSpan(span, err) }()

	return s.close(ctx, loanID, actorID, model.LoanCanceled, model.ActivityLoanCanceled)
}

// close moves a processing loan to status and puts the book back on the shelf.
func (s *loanService) close(ctx context.Context, loanID, actorID uint, status, action string) (LoanResponse, error) {
	var activity *model.ActivityLog
	var closed *model.Loan
	var released bool

	err := s.repos.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		loan, err := s.repos.Loans.FindByID(txCtx, loanID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to load loan: %w", err)
		}

		actor, err := s.repos.Users.GetByID(txCtx, actorID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrUnauthorizedActor
			}
			return fmt.Errorf("failed to load actor: %w", err)
		}
		if !actor.IsActive || !policy.CanDecide(policy.ActorFromUser(actor), loan.CampusID) {
			return ErrUnauthorizedActor
		}
		if loan.Status != model.LoanProcessing {
			return ErrInvalidLoanTransition
		}

		now := s.now().UTC()
		fields := map[string]interface{}{"status": status}
		props := map[string]interface{}{"book_id": loan.BookID, "user_id": loan.UserID}
		loan.Status = status
		if status == model.LoanReturned {
			fine := OverdueFine(loan.ReturnDate, now, s.finePerDay)
			fields["returned_at"] = now
			fields["fine"] = fine
			props["fine"] = fine.StringFixed(2)
			loan.ReturnedAt, loan.Fine = &now, fine
		}

		won, err := s.repos.Loans.CompareAndSetStatus(txCtx, loanID, model.LoanProcessing, fields)
		if err != nil {
			return fmt.Errorf("failed to update loan: %w", err)
		}
		if !won {
			return ErrInvalidLoanTransition
		}
		closed = loan

		released, err = s.repos.Books.CompareAndSetAvailability(txCtx, loan.BookID, false, true)
		if err != nil {
			return fmt.Errorf("failed to release book: %w", err)
		}
		if !released {
			slog.WarnContext(txCtx, "book was not marked unavailable while on loan", "book_id", loan.BookID, "loan_id", loanID)
		}

		activity, err = recordActivity(txCtx, s.repos.Activities, &actorID, action, subjectLoan, loanID, props)
		return err
	})
	if err != nil {
		return LoanResponse{}, err
	}

	ctx = context.WithoutCancel(ctx)
	loan, err := s.repos.Loans.FindByID(ctx, loanID)
	if err != nil {
		slog.WarnContext(ctx, "failed to reload loan after commit", "loan_id", loanID, "error", err)
		loan = closed
	}

	s.publisher.Publish(ctx, activitySignal(activity))
	if released {
		s.dashboard.Observe(ctx, dashboard.Mutation{Entity: dashboard.EntityBook, Action: dashboard.ActionUpdated, Changed: []string{"is_available"}})
	}
	return toLoanResponse(*loan), nil
}

func (s *loanService) List(ctx context.Context, actor policy.Actor, filter LoanFilter) ([]LoanResponse, int64, error) {
	p := pagination.Normalize(filter.Page, filter.Limit)
	f := repository.LoanFilter{Status: filter.Status, UserID: filter.UserID, Page: p.Page, Limit: p.Limit}
	if actor.IsStaff() {
		f.CampusID, f.Scoped = policy.ScopeFilter(actor)
	} else {
		own := actor.ID
		f.UserID = &own
	}

	loans, total, err := s.repos.Loans.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch loans: %w", err)
	}
	result := make([]LoanResponse, 0, len(loans))
	for _, l := range loans {
		result = append(result, toLoanResponse(l))
	}
	return result, total, nil
}

func toLoanResponse(l model.Loan) LoanResponse {
	resp := LoanResponse{
		ID:            l.ID,
		LoanRequestID: l.LoanRequestID,
		BookID:        l.BookID,
		UserID:        l.UserID,
		CampusID:      l.CampusID,
		Status:        l.Status,
		ReturnDate:    events.FormatTime(l.ReturnDate),
		Fine:          l.Fine.StringFixed(2),
		CreatedAt:     events.FormatTime(l.CreatedAt),
	}
	if l.Book != nil {
		resp.BookTitle = &l.Book.Title
	}
	if l.User != nil {
		resp.UserName = &l.User.Name
	}
	if l.ReturnedAt != nil {
		at := events.FormatTime(*l.ReturnedAt)
		resp.ReturnedAt = &at
	}
	return resp
}
