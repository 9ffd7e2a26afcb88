package postgres

import (
	"context"

	"github.com/splax/bookreview/internal/domain"
)

// CreateReview inserts a review. A dangling book or user reference surfaces as ErrNotFound.
func (r *Repository) CreateReview(ctx context.Context, review *domain.Review) error {
	const query = `INSERT INTO reviews (id, book_id, user_id, rating, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, review.ID, review.BookID, review.UserID, review.Rating, review.Comment, review.CreatedAt)
	return translateError(err)
}

// ListReviewsByBook returns a book's reviews newest first.
func (r *Repository) ListReviewsByBook(ctx context.Context, bookID string) ([]domain.Review, error) {
	const query = `SELECT id, book_id, user_id, rating, comment, created_at
		FROM reviews WHERE book_id = $1 ORDER BY created_at DESC`
	return r.queryReviews(ctx, query, bookID)
}

// ListReviewsByUser returns a user's reviews newest first.
func (r *Repository) ListReviewsByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	const query = `SELECT id, book_id, user_id, rating, comment, created_at
		FROM reviews WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryReviews(ctx, query, userID)
}

func (r *Repository) queryReviews(ctx context.Context, query string, arg string) ([]domain.Review, error) {
	reviews := make([]domain.Review, 0)
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		if isInvalidText(err) {
			return reviews, nil
		}
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var rv domain.Review
		if err := rows.Scan(&rv.ID, &rv.BookID, &rv.UserID, &rv.Rating, &rv.Comment, &rv.CreatedAt); err != nil {
			return nil, err
		}
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		// a malformed uuid cannot match any row
		if isInvalidText(err) {
			return make([]domain.Review, 0), nil
		}
		return nil, err
	}
	return reviews, nil
}
