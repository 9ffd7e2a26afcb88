// Package memory provides a process-local Store for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/splax/bookreview/internal/domain"
	"github.com/splax/bookreview/internal/repository"
)

// Store keeps every entity in maps guarded by a single mutex.
type Store struct {
	mu      sync.RWMutex
	users   map[string]domain.User
	emails  map[string]string
	books   map[string]domain.Book
	reviews []domain.Review
}

var _ repository.Store = (*Store)(nil)

// New constructs an empty Store.
func New() *Store {
	return &Store{
		users:  make(map[string]domain.User),
		emails: make(map[string]string),
		books:  make(map[string]domain.Book),
	}
}

// CreateUser inserts a user, rejecting duplicate emails.
func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.emails[user.Email]; exists {
		return repository.ErrConflict
	}
	if _, exists := s.users[user.ID]; exists {
		return repository.ErrConflict
	}
	stored := *user
	stored.PasswordHash = append([]byte(nil), user.PasswordHash...)
	s.users[user.ID] = stored
	s.emails[user.Email] = user.ID
	return nil
}

// GetUserByEmail fetches a user by exact email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

// GetUserByID retrieves a user by identifier.
func (s *Store) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

// ListUsersByIDs returns the users that exist among ids.
func (s *Store) ListUsersByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, 0, len(ids))
	for _, id := range dedupe(ids) {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// CreateBook inserts a book.
func (s *Store) CreateBook(_ context.Context, book *domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.books[book.ID]; exists {
		return repository.ErrConflict
	}
	s.books[book.ID] = *book
	return nil
}

// GetBookByID retrieves a book.
func (s *Store) GetBookByID(_ context.Context, id string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

// ListBooks returns all books newest first.
func (s *Store) ListBooks(_ context.Context) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Book, 0, len(s.books))
	for _, b := range s.books {
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ListBooksByIDs returns the books that exist among ids.
func (s *Store) ListBooksByIDs(_ context.Context, ids []string) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Book, 0, len(ids))
	for _, id := range dedupe(ids) {
		if b, ok := s.books[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// CountBooks reports the catalogue size.
func (s *Store) CountBooks(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.books), nil
}

// CreateReview appends a review.
func (s *Store) CreateReview(_ context.Context, review *domain.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews = append(s.reviews, *review)
	return nil
}

// ListReviewsByBook returns a book's reviews newest first.
func (s *Store) ListReviewsByBook(_ context.Context, bookID string) ([]domain.Review, error) {
	return s.filterReviews(func(r domain.Review) bool { return r.BookID == bookID }), nil
}

// ListReviewsByUser returns a user's reviews newest first.
func (s *Store) ListReviewsByUser(_ context.Context, userID string) ([]domain.Review, error) {
	return s.filterReviews(func(r domain.Review) bool { return r.UserID == userID }), nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) filterReviews(keep func(domain.Review) bool) []domain.Review {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Review, 0)
	for i := len(s.reviews) - 1; i >= 0; i-- {
		if keep(s.reviews[i]) {
			out = append(out, s.reviews[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
