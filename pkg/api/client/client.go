package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the API address used when none is configured.
const DefaultBaseURL = "http://localhost:3000"

// Client provides typed access to the bookreview API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// User reflects the account summary returned by the API.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	Message string `json:"message"`
	User    User   `json:"user"`
	Token   string `json:"token"`
}

// Book is a catalogue entry.
type Book struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// BookRef is the compact book embedded in a user's reviews.
type BookRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

// Review is a rating with optional comment and the joined author or book.
type Review struct {
	ID        string    `json:"id"`
	BookID    string    `json:"bookId"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	User      *User     `json:"user,omitempty"`
	Book      *BookRef  `json:"book,omitempty"`
}

// BookDetail is a book with its reviews.
type BookDetail struct {
	Book    Book     `json:"book"`
	Reviews []Review `json:"reviews"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, name, email, password string) (AuthResponse, error) {
	var resp AuthResponse
	body := map[string]string{"name": name, "email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/auth/register", body, "", &resp)
	return resp, err
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var resp AuthResponse
	body := map[string]string{"email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &resp)
	return resp, err
}

// ListBooks returns the catalogue, newest first.
func (c *Client) ListBooks(ctx context.Context) ([]Book, error) {
	var resp struct {
		Books []Book `json:"books"`
	}
	if err := c.do(ctx, http.MethodGet, "/books", nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Books, nil
}

// GetBook returns a book with its reviews.
func (c *Client) GetBook(ctx context.Context, id string) (BookDetail, error) {
	var resp BookDetail
	err := c.do(ctx, http.MethodGet, "/books/"+url.PathEscape(strings.TrimSpace(id)), nil, "", &resp)
	return resp, err
}

// AddReview posts a review as the token's account.
func (c *Client) AddReview(ctx context.Context, token, bookID string, rating int, comment string) (Review, error) {
	var resp struct {
		Review Review `json:"review"`
	}
	body := map[string]any{"bookId": bookID, "rating": rating, "comment": comment}
	if err := c.do(ctx, http.MethodPost, "/reviews", body, token, &resp); err != nil {
		return Review{}, err
	}
	return resp.Review, nil
}

// ListReviews returns a book's reviews.
func (c *Client) ListReviews(ctx context.Context, bookID string) ([]Review, error) {
	var resp struct {
		Reviews []Review `json:"reviews"`
	}
	if err := c.do(ctx, http.MethodGet, "/reviews/"+url.PathEscape(strings.TrimSpace(bookID)), nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Reviews, nil
}

// ListMyReviews returns the token account's reviews.
func (c *Client) ListMyReviews(ctx context.Context, token string) ([]Review, error) {
	var resp struct {
		Reviews []Review `json:"reviews"`
	}
	if err := c.do(ctx, http.MethodGet, "/reviews/user/me", nil, token, &resp); err != nil {
		return nil, err
	}
	return resp.Reviews, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return APIError{Status: resp.StatusCode, Message: extractError(resp.Body)}
	}

	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Message)
}
