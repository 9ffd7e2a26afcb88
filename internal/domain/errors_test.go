package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{Validation("name is required"), KindValidation},
		{Conflict("Email already in use"), KindConflict},
		{Unauthorized("Invalid credentials"), KindUnauthorized},
		{NotFound("Book not found"), KindNotFound},
		{Internal("Failed to login", cause), KindInternal},
		{fmt.Errorf("wrapped: %w", Conflict("dup")), KindConflict},
		{cause, KindInternal},
		{nil, KindInternal},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestMessageOfHidesCause(t *testing.T) {
	err := Internal("Failed to register user", errors.New("pq: connection reset"))
	if got := MessageOf(err, "fallback"); got != "Failed to register user" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := MessageOf(errors.New("raw"), "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	if !errors.Is(err, err.Err) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
}

func TestUserSummaryOmitsHash(t *testing.T) {
	u := User{ID: "u1", Name: "A", Email: "a@x.com", PasswordHash: []byte("hash")}
	s := u.Summary()
	if s.ID != "u1" || s.Name != "A" || s.Email != "a@x.com" {
		t.Fatalf("unexpected summary %+v", s)
	}
}
