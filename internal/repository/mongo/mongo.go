// Package mongo stores accounts, books and reviews in MongoDB collections.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/splax/bookreview/internal/domain"
	"github.com/splax/bookreview/internal/repository"
)

const (
	userCollection   = "users"
	bookCollection   = "books"
	reviewCollection = "reviews"
)

// Repository implements repository.Store on a MongoDB database.
type Repository struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ repository.Store = (*Repository)(nil)

type userDocument struct {
	ID           string    `bson:"_id"`
	Name         string    `bson:"name"`
	Email        string    `bson:"email"`
	PasswordHash []byte    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

type bookDocument struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Author      string    `bson:"author"`
	Description string    `bson:"description,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type reviewDocument struct {
	ID        string    `bson:"_id"`
	BookID    string    `bson:"book_id"`
	UserID    string    `bson:"user_id"`
	Rating    int       `bson:"rating"`
	Comment   string    `bson:"comment,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// Connect dials uri, selects database and ensures indexes.
func Connect(ctx context.Context, uri, database string) (*Repository, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	repo := &Repository{client: client, db: client.Database(database)}
	if err := repo.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return repo, nil
}

// EnsureIndexes creates the unique email index and listing indexes.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.db.Collection(userCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	if _, err := r.db.Collection(bookCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	}); err != nil {
		return fmt.Errorf("create book indexes: %w", err)
	}
	if _, err := r.db.Collection(reviewCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "book_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("create review indexes: %w", err)
	}
	return nil
}

// Ping checks connectivity against the primary.
func (r *Repository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// CreateUser inserts a user; the unique email index rejects duplicates.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	doc := userDocument{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		CreatedAt:    user.CreatedAt,
	}
	_, err := r.db.Collection(userCollection).InsertOne(ctx, doc)
	return translateError(err)
}

// GetUserByEmail fetches a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findUser(ctx, bson.M{"email": email})
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findUser(ctx, bson.M{"_id": id})
}

// ListUsersByIDs returns the users that exist among ids.
func (r *Repository) ListUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	users := make([]domain.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	cursor, err := r.db.Collection(userCollection).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc userDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		users = append(users, doc.toDomain())
	}
	return users, cursor.Err()
}

func (r *Repository) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDocument
	if err := r.db.Collection(userCollection).FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, translateError(err)
	}
	u := doc.toDomain()
	return &u, nil
}

// CreateBook inserts a book.
func (r *Repository) CreateBook(ctx context.Context, book *domain.Book) error {
	doc := bookDocument{
		ID:          book.ID,
		Title:       book.Title,
		Author:      book.Author,
		Description: book.Description,
		CreatedAt:   book.CreatedAt,
		UpdatedAt:   book.UpdatedAt,
	}
	_, err := r.db.Collection(bookCollection).InsertOne(ctx, doc)
	return translateError(err)
}

// GetBookByID retrieves a book.
func (r *Repository) GetBookByID(ctx context.Context, id string) (*domain.Book, error) {
	var doc bookDocument
	if err := r.db.Collection(bookCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		return nil, translateError(err)
	}
	b := doc.toDomain()
	return &b, nil
}

// ListBooks returns the catalogue newest first.
func (r *Repository) ListBooks(ctx context.Context) ([]domain.Book, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	return r.findBooks(ctx, bson.M{}, opts)
}

// ListBooksByIDs returns the books that exist among ids.
func (r *Repository) ListBooksByIDs(ctx context.Context, ids []string) ([]domain.Book, error) {
	if len(ids) == 0 {
		return []domain.Book{}, nil
	}
	return r.findBooks(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find())
}

// CountBooks reports the catalogue size.
func (r *Repository) CountBooks(ctx context.Context) (int, error) {
	n, err := r.db.Collection(bookCollection).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *Repository) findBooks(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]domain.Book, error) {
	cursor, err := r.db.Collection(bookCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	books := make([]domain.Book, 0)
	for cursor.Next(ctx) {
		var doc bookDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		books = append(books, doc.toDomain())
	}
	return books, cursor.Err()
}

// CreateReview inserts a review.
func (r *Repository) CreateReview(ctx context.Context, review *domain.Review) error {
	doc := reviewDocument{
		ID:        review.ID,
		BookID:    review.BookID,
		UserID:    review.UserID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt,
	}
	_, err := r.db.Collection(reviewCollection).InsertOne(ctx, doc)
	return translateError(err)
}

// ListReviewsByBook returns a book's reviews newest first.
func (r *Repository) ListReviewsByBook(ctx context.Context, bookID string) ([]domain.Review, error) {
	return r.findReviews(ctx, bson.M{"book_id": bookID})
}

// ListReviewsByUser returns a user's reviews newest first.
func (r *Repository) ListReviewsByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	return r.findReviews(ctx, bson.M{"user_id": userID})
}

func (r *Repository) findReviews(ctx context.Context, filter bson.M) ([]domain.Review, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := r.db.Collection(reviewCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	reviews := make([]domain.Review, 0)
	for cursor.Next(ctx) {
		var doc reviewDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		reviews = append(reviews, doc.toDomain())
	}
	return reviews, cursor.Err()
}

func (d userDocument) toDomain() domain.User {
	return domain.User{ID: d.ID, Name: d.Name, Email: d.Email, PasswordHash: d.PasswordHash, CreatedAt: d.CreatedAt.UTC()}
}

func (d bookDocument) toDomain() domain.Book {
	return domain.Book{ID: d.ID, Title: d.Title, Author: d.Author, Description: d.Description, CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC()}
}

func (d reviewDocument) toDomain() domain.Review {
	return domain.Review{ID: d.ID, BookID: d.BookID, UserID: d.UserID, Rating: d.Rating, Comment: d.Comment, CreatedAt: d.CreatedAt.UTC()}
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return repository.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return repository.ErrConflict
	default:
		return err
	}
}
