package httpx

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

type authContextKey string

const contextKeyUserID authContextKey = "bookreview-user-id"

const bearerPrefix = "Bearer "

const (
	msgUnauthorized = "Unauthorized"
	msgInvalidToken = "Invalid token"
)

var (
	errMissingAuthorization   = errors.New("missing authorization header")
	errMalformedAuthorization = errors.New("malformed authorization header")
)

type contextSetter interface {
	SetContext(context.Context)
}

// requireAuth ensures the request has a valid bearer token before invoking the handler.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		ctx, ok := r.ensureAuth(w, req)
		if !ok {
			return
		}
		if setter, ok := w.(contextSetter); ok {
			setter.SetContext(ctx)
		}
		next(w, req.WithContext(ctx))
	}
}

// ensureAuth validates the Authorization header and enriches the context.
func (r *Router) ensureAuth(w http.ResponseWriter, req *http.Request) (context.Context, bool) {
	token, err := bearerToken(req.Header.Get("Authorization"))
	if err != nil {
		r.logger.Warn("authorization header invalid", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return req.Context(), false
	}
	userID, err := r.auth.Authorize(req.Context(), token)
	if err != nil {
		r.logger.Warn("token validation failed", "error", err, "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, msgInvalidToken)
		return req.Context(), false
	}
	return withUserID(req.Context(), userID), true
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID, userID)
}

// userIDFromContext returns the account id stored by requireAuth.
func userIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKeyUserID).(string)
	return id, ok && id != ""
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-sensitively and exactly one space must
// separate it from the token.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errMissingAuthorization
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errMalformedAuthorization
	}
	token := header[len(bearerPrefix):]
	if token == "" || strings.ContainsAny(token, " \t\r\n") {
		return "", errMalformedAuthorization
	}
	return token, nil
}
