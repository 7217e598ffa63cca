package service

import (
	"context"
	"fmt"

	"libraryhub/internal/dashboard"
	"libraryhub/internal/model"
	"libraryhub/internal/repository"
)

type CreateBookDTO struct {
	Title      string `json:"title" binding:"required"`
	Type       string `json:"type" binding:"omitempty,oneof=physical reference ebook"`
	CampusID   *uint  `json:"campus_id"`
	CategoryID *uint  `json:"category_id"`
}

// UpdateBookDTO applies only the fields that are present.
type UpdateBookDTO struct {
	Title       *string `json:"title"`
	Type        *string `json:"type" binding:"omitempty,oneof=physical reference ebook"`
	IsAvailable *bool   `json:"is_available"`
	CampusID    *uint   `json:"campus_id"`
	CategoryID  *uint   `json:"category_id"`
}

type BookService interface {
	Create(ctx context.Context, req CreateBookDTO) (*model.Book, error)
	Update(ctx context.Context, id uint, req UpdateBookDTO) (*model.Book, error)
	Delete(ctx context.Context, id uint) error
}

type bookService struct {
	repos     repository.Repositories
	dashboard *dashboard.Aggregator
}

func NewBookService(repos repository.Repositories, agg *dashboard.Aggregator) BookService {
	return &bookService{repos: repos, dashboard: agg}
}

func (s *bookService) Create(ctx context.Context, req CreateBookDTO) (*model.Book, error) {
	book := &model.Book{
		Title:       req.Title,
		Type:        req.Type,
		IsAvailable: true,
		CampusID:    req.CampusID,
		CategoryID:  req.CategoryID,
	}
	if book.Type == "" {
		book.Type = model.BookTypePhysical
	}
	if err := s.repos.Books.Create(ctx, book); err != nil {
		return nil, fmt.Errorf("failed to create book: %w", err)
	}

	s.dashboard.Observe(ctx, dashboard.Mutation{Entity: dashboard.EntityBook, Action: dashboard.ActionCreated})
	return book, nil
}

// Update never hands a lent-out book back to the shelf; only closing the loan does.
func (s *bookService) Update(ctx context.Context, id uint, req UpdateBookDTO) (*model.Book, error) {
	var book *model.Book
	var changes map[string]interface{}

	err := s.repos.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		book, err = s.repos.Books.FindByID(txCtx, id)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrBookNotFound
			}
			return fmt.Errorf("failed to load book: %w", err)
		}
		if book.IsDeleted {
			return ErrBookNotFound
		}

		changes = diffBook(book, req)
		if len(changes) == 0 {
			return nil
		}
		if available, ok := changes["is_available"].(bool); ok && available {
			onLoan, err := s.repos.Loans.HasProcessing(txCtx, id)
			if err != nil {
				return fmt.Errorf("failed to check loans: %w", err)
			}
			if onLoan {
				return ErrBookOnLoan
			}
		}
		if err := s.repos.Books.Update(txCtx, id, changes); err != nil {
			return fmt.Errorf("failed to update book: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return book, nil
	}

	changed := make([]string, 0, len(changes))
	for col := range changes {
		changed = append(changed, col)
	}
	s.dashboard.Observe(ctx, dashboard.Mutation{Entity: dashboard.EntityBook, Action: dashboard.ActionUpdated, Changed: changed})

	return s.repos.Books.FindByID(ctx, id)
}

// diffBook returns only the columns whose value actually changes.
func diffBook(book *model.Book, req UpdateBookDTO) map[string]interface{} {
	changes := make(map[string]interface{})
	if req.Title != nil && *req.Title != book.Title {
		changes["title"] = *req.Title
	}
	if req.Type != nil && *req.Type != book.Type {
		changes["type"] = *req.Type
	}
	if req.IsAvailable != nil && *req.IsAvailable != book.IsAvailable {
		changes["is_available"] = *req.IsAvailable
	}
	if req.CampusID != nil && !sameID(req.CampusID, book.CampusID) {
		changes["campus_id"] = *req.CampusID
	}
	if req.CategoryID != nil && !sameID(req.CategoryID, book.CategoryID) {
		changes["category_id"] = *req.CategoryID
	}
	return changes
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *bookService) Delete(ctx context.Context, id uint) error {
	deleted, err := s.repos.Books.SoftDelete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete book: %w", err)
	}
	if !deleted {
		return ErrBookNotFound
	}

	s.dashboard.Observe(ctx, dashboard.Mutation{Entity: dashboard.EntityBook, Action: dashboard.ActionDeleted})
	return nil
}
