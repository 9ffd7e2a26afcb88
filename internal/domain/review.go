package domain

import "time"

// Rating bounds.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is a reader's rating and optional comment on a book.
type Review struct {
	ID        string    `json:"id"`
	BookID    string    `json:"bookId"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReviewWithUser joins a review with its author for per-book listings.
type ReviewWithUser struct {
	Review
	User *UserSummary `json:"user,omitempty"`
}

// ReviewWithBook joins a review with its book for per-user listings.
type ReviewWithBook struct {
	Review
	Book *BookSummary `json:"book,omitempty"`
}
