package httpx

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/splax/bookreview/internal/service/auth"
	"github.com/splax/bookreview/internal/service/books"
	"github.com/splax/bookreview/internal/service/reviews"
)

const (
	msgRegistered     = "User registered successfully"
	msgLoggedIn       = "Login successful"
	msgReviewAdded    = "Review added"
	msgNotFound       = "Not found"
	msgMethodNotAllow = "Method not allowed"
)

const (
	rateWindowDefault   = time.Minute
	rateWindowRealtime  = 30 * time.Second
	rateLimitRegister   = 5
	rateLimitLogin      = 12
	rateLimitUserWrite  = 30
	rateLimitUserRead   = 120
	rateLimitPublicRead = 300
	rateLimitStream     = 30
	healthCheckTimeout  = 2 * time.Second
	defaultHeartbeat    = 25 * time.Second
)

// Dependencies are the collaborators a Router serves.
type Dependencies struct {
	Logger  *slog.Logger
	Auth    auth.Service
	Books   books.Service
	Reviews reviews.Service
	// Limiter defaults to an in-memory limiter.
	Limiter RateLimiter
	// Health reports store reachability for /healthz.
	Health          func(context.Context) error
	AllowedOrigins  []string
	MetricsEnabled  bool
	StreamHeartbeat time.Duration
	// TrustedProxies are the peers whose X-Forwarded-For header is believed.
	// Empty means the socket address is always the client.
	TrustedProxies []netip.Prefix
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux       *http.ServeMux
	handler   http.Handler
	logger    *slog.Logger
	auth      auth.Service
	books     books.Service
	reviews   reviews.Service
	validator *requestValidator
	upgrader  websocket.Upgrader
	limiter   RateLimiter
	dbHealth  func(context.Context) error
	metrics   *routerMetrics
	heartbeat time.Duration
	proxies   []netip.Prefix
}

// NewRouter assembles routes with dependencies.
func NewRouter(deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := newCORS(deps.AllowedOrigins)
	r := &Router{
		mux:       http.NewServeMux(),
		logger:    logger,
		auth:      deps.Auth,
		books:     deps.Books,
		reviews:   deps.Reviews,
		validator: newRequestValidator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(req *http.Request) bool {
				origin := req.Header.Get("Origin")
				return origin == "" || policy.allowed(origin)
			},
		},
		limiter:   deps.Limiter,
		dbHealth:  deps.Health,
		heartbeat: deps.StreamHeartbeat,
		proxies:   deps.TrustedProxies,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.heartbeat <= 0 {
		r.heartbeat = defaultHeartbeat
	}
	if deps.MetricsEnabled {
		r.metrics = newRouterMetrics()
	}
	r.register()
	r.handler = policy.wrap(r.mux)
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("healthz", r.handleHealthz))
	r.mux.HandleFunc("/auth/register", r.audit("auth_register", r.withRateLimit("auth_register", rateLimitRegister, rateWindowDefault, r.rateLimitKeyIP, r.handleRegister)))
	r.mux.HandleFunc("/auth/login", r.audit("auth_login", r.withRateLimit("auth_login", rateLimitLogin, rateWindowDefault, r.rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/books", r.audit("books", r.withRateLimit("books", rateLimitPublicRead, rateWindowDefault, r.rateLimitKeyIP, r.handleBooks)))
	r.mux.HandleFunc("/books/", r.audit("book", r.withRateLimit("books", rateLimitPublicRead, rateWindowDefault, r.rateLimitKeyIP, r.handleBook)))
	r.mux.HandleFunc("/reviews", r.audit("reviews_add", r.handlerAuthRate("reviews_add", rateLimitUserWrite, rateWindowDefault, r.handleAddReview)))
	r.mux.HandleFunc("/reviews/user/me", r.audit("reviews_mine", r.handlerAuthRate("reviews_mine", rateLimitUserRead, rateWindowDefault, r.handleMyReviews)))
	r.mux.HandleFunc("/reviews/", r.audit("reviews_book", r.handleReviewSubroutes))
	r.mux.HandleFunc("/ws/reviews", r.audit("reviews_ws", r.withRateLimit("reviews_stream", rateLimitStream, rateWindowRealtime, r.rateLimitKeyIP, r.handleReviewsWS)))
	if r.metrics != nil {
		r.mux.Handle("/metrics", r.metrics.handler())
	}
}

func (r *Router) handleRegister(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload registerRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Email = auth.NormalizeEmail(payload.Email)
	if err := r.validator.check(&payload, auth.MsgRegisterFieldsRequired); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	user, token, err := r.auth.Register(req.Context(), auth.RegisterInput{
		Name:     payload.Name,
		Email:    payload.Email,
		Password: payload.Password,
	})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": msgRegistered,
		"user":    user.Summary(),
		"token":   token,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload loginRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	payload.Email = auth.NormalizeEmail(payload.Email)
	if err := r.validator.check(&payload, auth.MsgLoginFieldsRequired); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	user, token, err := r.auth.Login(req.Context(), auth.LoginInput{Email: payload.Email, Password: payload.Password})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": msgLoggedIn,
		"user":    user.Summary(),
		"token":   token,
	})
}

func (r *Router) handleBooks(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	list, err := r.books.List(req.Context())
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"books": list})
}

func (r *Router) handleBook(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	id := strings.Trim(strings.TrimPrefix(req.URL.Path, "/books/"), "/")
	if id == "" || strings.Contains(id, "/") {
		r.notFound(w)
		return
	}
	book, list, err := r.books.Get(req.Context(), id)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"book": book, "reviews": list})
}

func (r *Router) handleAddReview(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	userID, ok := userIDFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for review creation", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	var payload addReviewRequest
	if err := decodeJSON(w, req, &payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	payload.BookID = strings.TrimSpace(payload.BookID)
	if err := r.validator.check(&payload, reviews.MsgFieldsRequired); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	review, err := r.reviews.Add(req.Context(), userID, reviews.AddInput{
		BookID:  payload.BookID,
		Rating:  payload.Rating,
		Comment: payload.Comment,
	})
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": msgReviewAdded, "review": review})
}

func (r *Router) handleMyReviews(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	userID, ok := userIDFromContext(req.Context())
	if !ok {
		r.logger.Error("auth context missing for review listing", "path", req.URL.Path)
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	list, err := r.reviews.ListMine(req.Context(), userID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": list})
}

// handleReviewSubroutes serves /reviews/{bookId} and /reviews/{bookId}/stream.
func (r *Router) handleReviewSubroutes(w http.ResponseWriter, req *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(req.URL.Path, "/reviews/"), "/")
	bookID, tail, _ := strings.Cut(rest, "/")
	if bookID == "" {
		r.notFound(w)
		return
	}
	switch tail {
	case "":
		r.withRateLimit("reviews_book", rateLimitPublicRead, rateWindowDefault, r.rateLimitKeyIP, func(w http.ResponseWriter, req *http.Request) {
			r.handleBookReviews(w, req, bookID)
		})(w, req)
	case "stream":
		r.withRateLimit("reviews_stream", rateLimitStream, rateWindowRealtime, r.rateLimitKeyIP, func(w http.ResponseWriter, req *http.Request) {
			r.handleReviewsSSE(w, req, bookID)
		})(w, req)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleBookReviews(w http.ResponseWriter, req *http.Request, bookID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	list, err := r.reviews.ListByBook(req.Context(), bookID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": list})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			r.logger.Warn("store health check failed", "error", err)
			components["store"] = map[string]any{"status": "down"}
		} else {
			components["store"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"route", route,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := r.clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if userID, ok := userIDFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", userID)
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		if sr.status == 0 {
			sr.status = http.StatusSwitchingProtocols
		}
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllow)
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, msgNotFound)
}
