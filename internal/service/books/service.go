package books

import (
	"context"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/bookreview/internal/domain"
	"github.com/splax/bookreview/internal/repository"
)

const (
	MsgBookNotFound   = "Book not found"
	MsgTitleRequired  = "Book title is required"
	MsgAuthorRequired = "Author name is required"
	msgListFailed     = "Failed to fetch books"
	msgGetFailed      = "Failed to fetch book"
	msgCreateFailed   = "Failed to create book"
)

// ReviewLister resolves the reviews shown on a book page.
type ReviewLister interface {
	ListByBook(ctx context.Context, bookID string) ([]domain.ReviewWithUser, error)
}

// CreateInput describes a catalogue entry.
type CreateInput struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description,omitempty"`
}

// Service exposes the catalogue.
type Service struct {
	repo    repository.BookRepository
	reviews ReviewLister
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a book service.
func New(repo repository.BookRepository, reviews ReviewLister, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, reviews: reviews, logger: logger, now: time.Now}
}

// List returns every book, newest first.
func (s Service) List(ctx context.Context) ([]domain.Book, error) {
	books, err := s.repo.ListBooks(ctx)
	if err != nil {
		return nil, domain.Internal(msgListFailed, err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}

// Get returns a book together with its reviews.
func (s Service) Get(ctx context.Context, id string) (*domain.Book, []domain.ReviewWithUser, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, domain.NotFound(MsgBookNotFound)
	}
	book, err := s.repo.GetBookByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.NotFound(MsgBookNotFound)
		}
		return nil, nil, domain.Internal(msgGetFailed, err)
	}
	reviews, err := s.reviews.ListByBook(ctx, book.ID)
	if err != nil {
		return nil, nil, err
	}
	return book, reviews, nil
}

// Create adds a book to the catalogue.
func (s Service) Create(ctx context.Context, in CreateInput) (*domain.Book, error) {
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	switch {
	case title == "":
		return nil, domain.Validation(MsgTitleRequired)
	case author == "":
		return nil, domain.Validation(MsgAuthorRequired)
	}
	now := s.now().UTC()
	book := &domain.Book{
		ID:          uuid.NewString(),
		Title:       title,
		Author:      author,
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateBook(ctx, book); err != nil {
		return nil, domain.Internal(msgCreateFailed, err)
	}
	s.logger.Info("book created", "book_id", book.ID)
	return book, nil
}

// Seed inserts catalogue into an empty store and reports how many books were
// added. A store that already holds books is left untouched.
func (s Service) Seed(ctx context.Context, catalogue []CreateInput) (int, error) {
	count, err := s.repo.CountBooks(ctx)
	if err != nil {
		return 0, domain.Internal(msgListFailed, err)
	}
	if count > 0 {
		s.logger.Info("catalogue already seeded", "books", count)
		return 0, nil
	}
	added := 0
	base := s.now().UTC()
	for i, in := range catalogue {
		// Spread timestamps so newest-first ordering follows the catalogue order.
		stamp := base.Add(-time.Duration(i) * time.Second)
		svc := s
		svc.now = func() time.Time { return stamp }
		if _, err := svc.Create(ctx, in); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
