package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/bookreview/internal/domain"
	"github.com/splax/bookreview/internal/repository"
	"github.com/splax/bookreview/internal/ws"
)

const (
	MsgFieldsRequired = "bookId and rating are required"
	MsgRatingRange    = "rating must be between 1 and 5"
	MsgBookNotFound   = "Book not found"
	msgAddFailed      = "Failed to add review"
	msgListFailed     = "Failed to fetch reviews"
)

// AddInput is a review submitted by an authenticated reader.
type AddInput struct {
	BookID  string
	Rating  int
	Comment string
}

// Service handles review persistence and streaming.
type Service struct {
	reviews repository.ReviewRepository
	books   repository.BookRepository
	users   repository.UserRepository
	hub     *ws.Hub
	logger  *slog.Logger
	now     func() time.Time
}

// New constructs a review service. hub may be nil when no live feed is served.
func New(reviews repository.ReviewRepository, books repository.BookRepository, users repository.UserRepository, hub *ws.Hub, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{reviews: reviews, books: books, users: users, hub: hub, logger: logger, now: time.Now}
}

// Add stores a review by userID and broadcasts it to the book's watchers.
func (s Service) Add(ctx context.Context, userID string, in AddInput) (*domain.Review, error) {
	if userID == "" {
		return nil, domain.Unauthorized("Unauthorized")
	}
	bookID := strings.TrimSpace(in.BookID)
	if bookID == "" || in.Rating == 0 {
		return nil, domain.Validation(MsgFieldsRequired)
	}
	if in.Rating < domain.MinRating || in.Rating > domain.MaxRating {
		return nil, domain.Validation(MsgRatingRange)
	}

	book, err := s.books.GetBookByID(ctx, bookID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(MsgBookNotFound)
		}
		return nil, domain.Internal(msgAddFailed, err)
	}

	review := &domain.Review{
		ID:        uuid.NewString(),
		BookID:    book.ID,
		UserID:    userID,
		Rating:    in.Rating,
		Comment:   strings.TrimSpace(in.Comment),
		CreatedAt: s.now().UTC(),
	}
	if err := s.reviews.CreateReview(ctx, review); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(MsgBookNotFound)
		}
		return nil, domain.Internal(msgAddFailed, err)
	}
	s.logger.Info("review added", "review_id", review.ID, "book_id", review.BookID, "user_id", userID)
	s.broadcast(ctx, *review)
	return review, nil
}

// ListByBook returns a book's reviews newest first with their authors.
func (s Service) ListByBook(ctx context.Context, bookID string) ([]domain.ReviewWithUser, error) {
	items, err := s.reviews.ListReviewsByBook(ctx, strings.TrimSpace(bookID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []domain.ReviewWithUser{}, nil
		}
		return nil, domain.Internal(msgListFailed, err)
	}
	ids := make([]string, 0, len(items))
	for _, r := range items {
		ids = append(ids, r.UserID)
	}
	users, err := s.users.ListUsersByIDs(ctx, ids)
	if err != nil {
		return nil, domain.Internal(msgListFailed, err)
	}
	byID := make(map[string]domain.UserSummary, len(users))
	for _, u := range users {
		byID[u.ID] = u.Summary()
	}
	out := make([]domain.ReviewWithUser, 0, len(items))
	for _, r := range items {
		item := domain.ReviewWithUser{Review: r}
		if u, ok := byID[r.UserID]; ok {
			item.User = &u
		}
		out = append(out, item)
	}
	return out, nil
}

// ListMine returns the caller's reviews newest first with their books.
func (s Service) ListMine(ctx context.Context, userID string) ([]domain.ReviewWithBook, error) {
	if userID == "" {
		return nil, domain.Unauthorized("Unauthorized")
	}
	items, err := s.reviews.ListReviewsByUser(ctx, userID)
	if err != nil {
		return nil, domain.Internal(msgListFailed, err)
	}
	ids := make([]string, 0, len(items))
	for _, r := range items {
		ids = append(ids, r.BookID)
	}
	books, err := s.books.ListBooksByIDs(ctx, ids)
	if err != nil {
		return nil, domain.Internal(msgListFailed, err)
	}
	byID := make(map[string]domain.BookSummary, len(books))
	for _, b := range books {
		byID[b.ID] = domain.BookSummary{ID: b.ID, Title: b.Title, Author: b.Author}
	}
	out := make([]domain.ReviewWithBook, 0, len(items))
	for _, r := range items {
		item := domain.ReviewWithBook{Review: r}
		if b, ok := byID[r.BookID]; ok {
			item.Book = &b
		}
		out = append(out, item)
	}
	return out, nil
}

// Hub returns the live feed hub (useful for HTTP handlers).
func (s Service) Hub() *ws.Hub {
	return s.hub
}

func (s Service) broadcast(ctx context.Context, review domain.Review) {
	if s.hub == nil {
		return
	}
	event := domain.ReviewWithUser{Review: review}
	if user, err := s.users.GetUserByID(ctx, review.UserID); err == nil {
		summary := user.Summary()
		event.User = &summary
	}
	data, err := MarshalEvent(event)
	if err != nil {
		s.logger.Warn("failed to marshal review event", "error", err)
		return
	}
	s.hub.Broadcast(ctx, review.BookID, data)
}

// MarshalEvent formats a review for streaming payloads.
func MarshalEvent(review domain.ReviewWithUser) ([]byte, error) {
	payload := map[string]any{
		"type":      "review.added",
		"id":        review.ID,
		"bookId":    review.BookID,
		"userId":    review.UserID,
		"rating":    review.Rating,
		"comment":   review.Comment,
		"createdAt": review.CreatedAt.Format(time.RFC3339Nano),
	}
	if review.User != nil {
		payload["user"] = review.User
	}
	return json.Marshal(payload)
}
