package postgres

import (
	"context"

	"github.com/splax/bookreview/internal/domain"
)

// CreateBook inserts a book.
func (r *Repository) CreateBook(ctx context.Context, book *domain.Book) error {
	const query = `INSERT INTO books (id, title, author, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, book.ID, book.Title, book.Author, book.Description, book.CreatedAt, book.UpdatedAt)
	return translateError(err)
}

// GetBookByID retrieves a book.
func (r *Repository) GetBookByID(ctx context.Context, id string) (*domain.Book, error) {
	const query = `SELECT id, title, author, description, created_at, updated_at FROM books WHERE id = $1`
	var b domain.Book
	if err := r.pool.QueryRow(ctx, query, id).Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, translateError(err)
	}
	return &b, nil
}

// ListBooks returns the catalogue newest first.
func (r *Repository) ListBooks(ctx context.Context) ([]domain.Book, error) {
	const query = `SELECT id, title, author, description, created_at, updated_at
		FROM books ORDER BY created_at DESC, id`
	return r.queryBooks(ctx, query)
}

// ListBooksByIDs returns the books that exist among ids.
func (r *Repository) ListBooksByIDs(ctx context.Context, ids []string) ([]domain.Book, error) {
	if len(ids) == 0 {
		return []domain.Book{}, nil
	}
	const query = `SELECT id, title, author, description, created_at, updated_at
		FROM books WHERE id::text = ANY($1)`
	return r.queryBooks(ctx, query, ids)
}

// CountBooks reports the catalogue size.
func (r *Repository) CountBooks(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(1) FROM books`
	var count int
	if err := r.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *Repository) queryBooks(ctx context.Context, query string, args ...any) ([]domain.Book, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		var b domain.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Description, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}
