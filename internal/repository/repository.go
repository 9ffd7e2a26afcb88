package repository

import (
	"context"

	"github.com/splax/bookreview/internal/domain"
)

// UserRepository persists accounts. Implementations must enforce email
// uniqueness and report violations as ErrConflict.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	ListUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error)
}

// BookRepository manages the catalogue.
type BookRepository interface {
	CreateBook(ctx context.Context, book *domain.Book) error
	GetBookByID(ctx context.Context, id string) (*domain.Book, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	ListBooksByIDs(ctx context.Context, ids []string) ([]domain.Book, error)
	CountBooks(ctx context.Context) (int, error)
}

// ReviewRepository stores reviews. Listings are newest first.
type ReviewRepository interface {
	CreateReview(ctx context.Context, review *domain.Review) error
	ListReviewsByBook(ctx context.Context, bookID string) ([]domain.Review, error)
	ListReviewsByUser(ctx context.Context, userID string) ([]domain.Review, error)
}

// Store bundles every repository behind one backend connection.
type Store interface {
	UserRepository
	BookRepository
	ReviewRepository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
