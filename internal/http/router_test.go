package httpx

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/splax/bookreview/internal/domain"
	"github.com/splax/bookreview/internal/repository/memory"
	"github.com/splax/bookreview/internal/service/auth"
	"github.com/splax/bookreview/internal/service/books"
	"github.com/splax/bookreview/internal/service/reviews"
	"github.com/splax/bookreview/internal/ws"
	jwtpkg "github.com/splax/bookreview/pkg/jwt"
)

const testSecret = "router-test-secret"

type rateLimitCall struct {
	key    string
	limit  int
	window time.Duration
}

type rateLimiterStub struct {
	mu      sync.Mutex
	calls   []rateLimitCall
	allowFn func(key string, limit int, window time.Duration) rateDecision
}

func newRateLimiterStub() *rateLimiterStub {
	return &rateLimiterStub{}
}

func (s *rateLimiterStub) Allow(key string, limit int, window time.Duration) rateDecision {
	s.mu.Lock()
	s.calls = append(s.calls, rateLimitCall{key: key, limit: limit, window: window})
	fn := s.allowFn
	s.mu.Unlock()
	if fn != nil {
		return fn(key, limit, window)
	}
	return rateDecision{allowed: true, count: 1, windowEnd: time.Now().Add(window)}
}

func (s *rateLimiterStub) Close() {}

type testEnv struct {
	store  *memory.Store
	issuer *jwtpkg.Issuer
	hub    *ws.Hub
	router *Router
	book   domain.Book
}

type envOption func(*Dependencies)

func withLimiter(l RateLimiter) envOption {
	return func(d *Dependencies) { d.Limiter = l }
}

func withTrustedProxies(t *testing.T, values ...string) envOption {
	t.Helper()
	proxies, err := ParseTrustedProxies(values)
	if err != nil {
		t.Fatalf("parse proxies: %v", err)
	}
	return func(d *Dependencies) { d.TrustedProxies = proxies }
}

func withHealth(fn func(context.Context) error) envOption {
	return func(d *Dependencies) { d.Health = fn }
}

func setupRouter(t *testing.T, opts ...envOption) testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	issuer, err := jwtpkg.NewIssuer([]byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	hub := ws.NewHub()
	t.Cleanup(hub.Close)

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	book := domain.Book{ID: "book-1", Title: "Dune", Author: "Frank Herbert", CreatedAt: now, UpdatedAt: now}
	if err := store.CreateBook(context.Background(), &book); err != nil {
		t.Fatalf("seed book: %v", err)
	}

	reviewSvc := reviews.New(store, store, store, hub, logger)
	deps := Dependencies{
		Logger:          logger,
		Auth:            auth.New(store, issuer, logger, bcrypt.MinCost),
		Books:           books.New(store, reviewSvc, logger),
		Reviews:         reviewSvc,
		Limiter:         newRateLimiterStub(),
		AllowedOrigins:  []string{"http://localhost:5173"},
		MetricsEnabled:  true,
		StreamHeartbeat: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&deps)
	}
	router := NewRouter(deps)
	t.Cleanup(router.Close)
	return testEnv{store: store, issuer: issuer, hub: hub, router: router, book: book}
}

func (e testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return out
}

func expectMessage(t *testing.T, rr *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, rr.Code, rr.Body.String())
	}
	if got := decodeBody(t, rr)["message"]; got != message {
		t.Fatalf("expected message %q, got %v", message, got)
	}
}

func registerUser(t *testing.T, env testEnv, name, email, password string) string {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/auth/register", map[string]string{"name": name, "email": email, "password": password}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d (%s)", email, rr.Code, rr.Body.String())
	}
	token, _ := decodeBody(t, rr)["token"].(string)
	if token == "" {
		t.Fatalf("register %s: missing token", email)
	}
	return token
}

func TestRegisterLoginScenario(t *testing.T) {
	env := setupRouter(t)

	rr := env.do(t, http.MethodPost, "/auth/register", map[string]string{"name": "A", "email": "a@x.com", "password": "secret1"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["message"] != msgRegistered {
		t.Fatalf("unexpected message %v", body["message"])
	}
	user, ok := body["user"].(map[string]any)
	if !ok || user["name"] != "A" || user["email"] != "a@x.com" || user["id"] == "" {
		t.Fatalf("unexpected user payload %v", body["user"])
	}
	if _, leaked := user["passwordHash"]; leaked {
		t.Fatalf("password hash leaked in response")
	}
	if strings.Contains(rr.Body.String(), "secret1") {
		t.Fatalf("password echoed in response")
	}
	t1, _ := body["token"].(string)
	if len(strings.Split(t1, ".")) != 3 {
		t.Fatalf("expected JWT token, got %q", t1)
	}

	rr = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on login, got %d (%s)", rr.Code, rr.Body.String())
	}
	login := decodeBody(t, rr)
	if login["message"] != msgLoggedIn {
		t.Fatalf("unexpected login message %v", login["message"])
	}
	t2, _ := login["token"].(string)
	userID, err := env.issuer.Verify(t2)
	if err != nil {
		t.Fatalf("login token invalid: %v", err)
	}
	if userID != user["id"] {
		t.Fatalf("login token for %q, want %v", userID, user["id"])
	}

	rr = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "wrong"}, nil)
	expectMessage(t, rr, http.StatusUnauthorized, auth.MsgInvalidCredentials)

	rr = env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ghost@x.com", "password": "secret1"}, nil)
	expectMessage(t, rr, http.StatusUnauthorized, auth.MsgInvalidCredentials)

	rr = env.do(t, http.MethodPost, "/auth/register", map[string]string{"name": "B", "email": "a@x.com", "password": "other"}, nil)
	expectMessage(t, rr, http.StatusConflict, auth.MsgEmailInUse)

	rr = env.do(t, http.MethodPost, "/auth/register", map[string]string{"name": "C", "email": " A@X.COM ", "password": "other"}, nil)
	expectMessage(t, rr, http.StatusConflict, auth.MsgEmailInUse)

	rr = env.do(t, http.MethodGet, "/reviews/user/me", nil, bearer(t2))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected protected route to accept login token, got %d", rr.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := setupRouter(t)
	cases := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{"empty body", nil, http.StatusBadRequest, auth.MsgRegisterFieldsRequired},
		{"missing name", map[string]string{"email": "a@x.com", "password": "pw"}, http.StatusBadRequest, auth.MsgRegisterFieldsRequired},
		{"blank name", map[string]string{"name": "  ", "email": "a@x.com", "password": "pw"}, http.StatusBadRequest, auth.MsgRegisterFieldsRequired},
		{"missing password", map[string]string{"name": "A", "email": "a@x.com"}, http.StatusBadRequest, auth.MsgRegisterFieldsRequired},
		{"invalid json", "{not json", http.StatusBadRequest, msgInvalidJSONBody},
		{"bad email", map[string]string{"name": "A", "email": "not-an-email", "password": "pw"}, http.StatusBadRequest, "email must be a valid email address"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/auth/register", tc.body, nil)
			expectMessage(t, rr, tc.status, tc.msg)
		})
	}

	rr := env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com"}, nil)
	expectMessage(t, rr, http.StatusBadRequest, auth.MsgLoginFieldsRequired)

	rr = env.do(t, http.MethodGet, "/auth/register", nil, nil)
	expectMessage(t, rr, http.StatusMethodNotAllowed, msgMethodNotAllow)

	// Rejected requests leave no account behind.
	registerUser(t, env, "A", "a@x.com", "pw")
}

func TestAccessGuard(t *testing.T) {
	env := setupRouter(t)
	token := registerUser(t, env, "A", "a@x.com", "secret1")

	expired, err := jwtpkg.NewIssuer([]byte(testSecret), time.Minute, jwtpkg.WithClock(func() time.Time {
		return time.Now().Add(-time.Hour)
	}))
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	userID, err := env.issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	stale, err := expired.Issue(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	foreign, err := jwtpkg.NewIssuer([]byte("someone-else"), time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	forged, err := foreign.Issue(userID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	cases := []struct {
		name   string
		header string
		status int
		msg    string
	}{
		{"missing header", "", http.StatusUnauthorized, msgUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, msgUnauthorized},
		{"lowercase scheme", "bearer " + token, http.StatusUnauthorized, msgUnauthorized},
		{"no token", "Bearer ", http.StatusUnauthorized, msgUnauthorized},
		{"extra spaces", "Bearer   " + token, http.StatusUnauthorized, msgUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized, msgInvalidToken},
		{"expired token", "Bearer " + stale, http.StatusUnauthorized, msgInvalidToken},
		{"foreign signature", "Bearer " + forged, http.StatusUnauthorized, msgInvalidToken},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			headers := map[string]string{}
			if tc.header != "" {
				headers["Authorization"] = tc.header
			}
			rr := env.do(t, http.MethodGet, "/reviews/user/me", nil, headers)
			expectMessage(t, rr, tc.status, tc.msg)
		})
	}

	rr := env.do(t, http.MethodGet, "/reviews/user/me", nil, bearer(token))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d (%s)", rr.Code, rr.Body.String())
	}
}

func TestBearerTokenParsing(t *testing.T) {
	cases := []struct {
		header string
		token  string
		err    error
	}{
		{"", "", errMissingAuthorization},
		{"Bearer abc", "abc", nil},
		{"Bearer   abc", "", errMalformedAuthorization},
		{"Bearer abc  ", "", errMalformedAuthorization},
		{"Bearer \tabc", "", errMalformedAuthorization},
		{"Bearer ", "", errMalformedAuthorization},
		{"Bearer", "", errMalformedAuthorization},
		{"BEARER abc", "", errMalformedAuthorization},
		{"Bearer a b", "", errMalformedAuthorization},
		{"Token abc", "", errMalformedAuthorization},
	}
	for _, tc := range cases {
		token, err := bearerToken(tc.header)
		if !errors.Is(err, tc.err) {
			t.Fatalf("header %q: expected error %v, got %v", tc.header, tc.err, err)
		}
		if token != tc.token {
			t.Fatalf("header %q: expected token %q, got %q", tc.header, tc.token, token)
		}
	}
}

func TestReviewsFlow(t *testing.T) {
	env := setupRouter(t)
	token := registerUser(t, env, "Ada", "ada@example.com", "pw123456")

	rr := env.do(t, http.MethodPost, "/reviews", map[string]any{"bookId": env.book.ID, "rating": 5}, nil)
	expectMessage(t, rr, http.StatusUnauthorized, msgUnauthorized)

	rr = env.do(t, http.MethodPost, "/reviews", map[string]any{"rating": 5}, bearer(token))
	expectMessage(t, rr, http.StatusBadRequest, reviews.MsgFieldsRequired)

	rr = env.do(t, http.MethodPost, "/reviews", map[string]any{"bookId": env.book.ID, "rating": 9}, bearer(token))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for rating out of range, got %d", rr.Code)
	}
	if msg, _ := decodeBody(t, rr)["message"].(string); !strings.Contains(msg, "rating") {
		t.Fatalf("expected rating message, got %q", msg)
	}

	rr = env.do(t, http.MethodPost, "/reviews", map[string]any{"bookId": "missing", "rating": 3}, bearer(token))
	expectMessage(t, rr, http.StatusNotFound, reviews.MsgBookNotFound)

	rr = env.do(t, http.MethodPost, "/reviews", map[string]any{"bookId": env.book.ID, "rating": 4, "comment": "Great"}, bearer(token))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	created := decodeBody(t, rr)
	if created["message"] != msgReviewAdded {
		t.Fatalf("unexpected message %v", created["message"])
	}
	review, _ := created["review"].(map[string]any)
	if review["bookId"] != env.book.ID || review["rating"] != float64(4) {
		t.Fatalf("unexpected review payload %v", review)
	}

	rr = env.do(t, http.MethodGet, "/reviews/"+env.book.ID, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 listing reviews, got %d", rr.Code)
	}
	listed, _ := decodeBody(t, rr)["reviews"].([]any)
	if len(listed) != 1 {
		t.Fatalf("expected one review, got %d", len(listed))
	}
	first, _ := listed[0].(map[string]any)
	author, _ := first["user"].(map[string]any)
	if author["name"] != "Ada" || author["email"] != "ada@example.com" {
		t.Fatalf("expected populated author, got %v", first["user"])
	}

	rr = env.do(t, http.MethodGet, "/reviews/user/me", nil, bearer(token))
	mine, _ := decodeBody(t, rr)["reviews"].([]any)
	if len(mine) != 1 {
		t.Fatalf("expected one review of mine, got %d", len(mine))
	}
	entry, _ := mine[0].(map[string]any)
	book, _ := entry["book"].(map[string]any)
	if book["title"] != "Dune" {
		t.Fatalf("expected populated book, got %v", entry["book"])
	}

	rr = env.do(t, http.MethodGet, "/books/"+env.book.ID, nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for book, got %d", rr.Code)
	}
	detail := decodeBody(t, rr)
	if withReviews, _ := detail["reviews"].([]any); len(withReviews) != 1 {
		t.Fatalf("expected book detail to include review, got %v", detail["reviews"])
	}

	rr = env.do(t, http.MethodGet, "/books/nope", nil, nil)
	expectMessage(t, rr, http.StatusNotFound, books.MsgBookNotFound)

	rr = env.do(t, http.MethodGet, "/books", nil, nil)
	if list, _ := decodeBody(t, rr)["books"].([]any); len(list) != 1 {
		t.Fatalf("expected one book, got %v", list)
	}
}

func TestRateLimitOnRegister(t *testing.T) {
	env := setupRouter(t, withLimiter(NewMemoryRateLimiter()))
	var last *httptest.ResponseRecorder
	for i := 0; i <= rateLimitRegister; i++ {
		last = env.do(t, http.MethodPost, "/auth/register", map[string]string{"name": "A"}, nil)
	}
	expectMessage(t, last, http.StatusTooManyRequests, msgRateLimited)
	if got := last.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected remaining 0, got %q", got)
	}

	rr := env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com"}, nil)
	if rr.Code == http.StatusTooManyRequests {
		t.Fatalf("login shares a counter with register")
	}

	metrics := env.do(t, http.MethodGet, "/metrics", nil, nil)
	if !strings.Contains(metrics.Body.String(), `bookreview_api_rate_limit_hits_total{key="ip",route="auth_register"} 1`) {
		t.Fatalf("expected rate limit metric, got:\n%s", metrics.Body.String())
	}
}

func TestLoginRateLimitIgnoresForwardedHeaderFromUntrustedPeer(t *testing.T) {
	env := setupRouter(t, withLimiter(NewMemoryRateLimiter()))
	limited := 0
	for i := 0; i < rateLimitLogin*3; i++ {
		rr := env.do(t, http.MethodPost, "/auth/login",
			map[string]string{"email": "ada@example.com", "password": "guess" + strconv.Itoa(i)},
			map[string]string{"X-Forwarded-For": "203.0.113." + strconv.Itoa(i+1)})
		if rr.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if want := rateLimitLogin * 2; limited != want {
		t.Fatalf("expected %d limited attempts from one socket, got %d", want, limited)
	}
}

func TestLoginRateLimitUsesForwardedClientBehindTrustedProxy(t *testing.T) {
	// httptest requests arrive from 192.0.2.1.
	env := setupRouter(t, withLimiter(NewMemoryRateLimiter()), withTrustedProxies(t, "192.0.2.0/24"))
	login := func(client string) *httptest.ResponseRecorder {
		return env.do(t, http.MethodPost, "/auth/login",
			map[string]string{"email": "ada@example.com", "password": "wrong"},
			map[string]string{"X-Forwarded-For": client})
	}
	for i := 0; i < rateLimitLogin; i++ {
		if rr := login("198.51.100.7"); rr.Code == http.StatusTooManyRequests {
			t.Fatalf("attempt %d limited early", i+1)
		}
	}
	expectMessage(t, login("198.51.100.7"), http.StatusTooManyRequests, msgRateLimited)
	// A spoofed leftmost entry does not give the same client a fresh bucket.
	expectMessage(t, login("10.9.9.9, 198.51.100.7"), http.StatusTooManyRequests, msgRateLimited)
	if rr := login("198.51.100.8"); rr.Code == http.StatusTooManyRequests {
		t.Fatalf("distinct forwarded client shares a bucket")
	}
}

func TestRateLimitKeysByUserForReviews(t *testing.T) {
	limiter := newRateLimiterStub()
	env := setupRouter(t, withLimiter(limiter))
	token := registerUser(t, env, "A", "a@x.com", "pw")
	userID, _ := env.issuer.Verify(token)

	limiter.mu.Lock()
	limiter.calls = nil
	limiter.allowFn = func(string, int, time.Duration) rateDecision {
		return rateDecision{allowed: false, count: rateLimitUserWrite, windowEnd: time.Unix(1_950_000_000, 0)}
	}
	limiter.mu.Unlock()

	rr := env.do(t, http.MethodPost, "/reviews", map[string]any{"bookId": env.book.ID, "rating": 3}, bearer(token))
	expectMessage(t, rr, http.StatusTooManyRequests, msgRateLimited)
	if got := rr.Header().Get("X-RateLimit-Reset"); got != "1950000000" {
		t.Fatalf("unexpected reset header %q", got)
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if len(limiter.calls) != 1 {
		t.Fatalf("expected one limiter call, got %d", len(limiter.calls))
	}
	if want := "reviews_add|user:" + userID; limiter.calls[0].key != want {
		t.Fatalf("expected key %q, got %q", want, limiter.calls[0].key)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := setupRouter(t)

	rr := env.do(t, http.MethodOptions, "/auth/login", nil, map[string]string{
		"Origin":                        "http://localhost:5173",
		"Access-Control-Request-Method": http.MethodPost,
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials allowed")
	}
	if !strings.Contains(rr.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
		t.Fatalf("expected Authorization allowed")
	}

	rr = env.do(t, http.MethodGet, "/books", nil, map[string]string{"Origin": "http://evil.example"})
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected CORS grant for foreign origin")
	}
}

func TestHealthz(t *testing.T) {
	env := setupRouter(t, withHealth(func(context.Context) error { return nil }))
	rr := env.do(t, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusOK || decodeBody(t, rr)["status"] != "ok" {
		t.Fatalf("expected healthy, got %d %s", rr.Code, rr.Body.String())
	}

	down := setupRouter(t, withHealth(func(context.Context) error { return errors.New("dial tcp: refused") }))
	rr = down.do(t, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "refused") {
		t.Fatalf("health response leaked store error")
	}
}

func TestReviewStreamSSE(t *testing.T) {
	env := setupRouter(t)
	token := registerUser(t, env, "Ada", "ada@example.com", "pw")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/reviews/"+env.book.ID+"/stream", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	waitForSubscribers(t, env.hub, env.book.ID, 1)
	rr := env.do(t, http.MethodPost, "/reviews", map[string]any{"bookId": env.book.ID, "rating": 5}, bearer(token))
	if rr.Code != http.StatusCreated {
		t.Fatalf("add review: %d", rr.Code)
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &event); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if event["type"] != "review.added" || event["rating"] != float64(5) {
			t.Fatalf("unexpected event %v", event)
		}
		return
	}
}

func TestReviewStreamWebsocket(t *testing.T) {
	env := setupRouter(t)
	token := registerUser(t, env, "Ada", "ada@example.com", "pw")
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	rr := env.do(t, http.MethodGet, "/ws/reviews", nil, nil)
	expectMessage(t, rr, http.StatusBadRequest, msgBookIDRequired)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/reviews?book_id=" + env.book.ID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForSubscribers(t, env.hub, env.book.ID, 1)
	rr = env.do(t, http.MethodPost, "/reviews", map[string]any{"bookId": env.book.ID, "rating": 2, "comment": "meh"}, bearer(token))
	if rr.Code != http.StatusCreated {
		t.Fatalf("add review: %d", rr.Code)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event["comment"] != "meh" || event["bookId"] != env.book.ID {
		t.Fatalf("unexpected event %v", event)
	}
}

func waitForSubscribers(t *testing.T, hub *ws.Hub, bookID string, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if hub.Subscribers(bookID) >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d subscribers on %s", want, bookID)
}
