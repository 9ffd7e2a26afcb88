package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewNormalisesBaseURL(t *testing.T) {
	c, err := New(" localhost:3000/ ")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:3000", c.baseURL)

	c, err = New("")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.baseURL)
}

func TestLoginAndAuthenticatedCalls(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "secret1" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "Login successful",
			"user":    map[string]string{"id": "u1", "name": "A", "email": body["email"]},
			"token":   "t.o.k",
		})
	})
	mux.HandleFunc("/reviews", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer t.o.k" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "Review added",
			"review":  map[string]any{"id": "r1", "bookId": body["bookId"], "userId": "u1", "rating": body["rating"]},
		})
	})
	mux.HandleFunc("/reviews/user/me", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"reviews": []map[string]any{{"id": "r1", "bookId": "b1", "rating": 4, "book": map[string]string{"id": "b1", "title": "Dune"}}},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = c.Login(ctx, "a@x.com", "nope")
	require.Error(t, err)
	require.True(t, IsUnauthorized(err))
	var apiErr APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "Invalid credentials", apiErr.Message)

	resp, err := c.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.Equal(t, "t.o.k", resp.Token)
	require.Equal(t, "u1", resp.User.ID)

	_, err = c.AddReview(ctx, "", "b1", 4, "")
	require.True(t, IsUnauthorized(err))

	review, err := c.AddReview(ctx, resp.Token, "b1", 4, "good")
	require.NoError(t, err)
	require.Equal(t, "r1", review.ID)
	require.Equal(t, 4, review.Rating)

	mine, err := c.ListMyReviews(ctx, resp.Token)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "Dune", mine[0].Book.Title)
}

func TestExtractErrorFallsBackToBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	_, err = c.ListBooks(context.Background())
	var apiErr APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusBadGateway, apiErr.Status)
	require.Equal(t, "upstream exploded", apiErr.Message)
}
