package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/splax/bookreview/internal/ws"
)

const (
	msgBookIDRequired = "book_id query parameter required"
	sseRetry          = 3 * time.Second
)

// handleReviewsWS upgrades to a websocket that receives every review added to
// the requested book.
func (r *Router) handleReviewsWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	bookID := strings.TrimSpace(req.URL.Query().Get("book_id"))
	if bookID == "" {
		writeError(w, http.StatusBadRequest, msgBookIDRequired)
		return
	}
	hub := r.reviews.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed unavailable")
		return
	}
	if _, _, err := r.books.Get(req.Context(), bookID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	hub.Register(bookID, client)
	r.trackStreamClient("websocket", 1)

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(r.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := client.Ping(); err != nil {
					client.Close()
					return
				}
			}
		}
	}()
	go func() {
		defer func() {
			close(done)
			hub.Unregister(bookID, client)
			client.Close()
			r.trackStreamClient("websocket", -1)
		}()
		client.DrainReads()
	}()
}

// handleReviewsSSE streams the same events as Server-Sent Events.
func (r *Router) handleReviewsSSE(w http.ResponseWriter, req *http.Request, bookID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	hub := r.reviews.Hub()
	if hub == nil {
		writeError(w, http.StatusServiceUnavailable, "live feed unavailable")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if _, _, err := r.books.Get(req.Context(), bookID); err != nil {
		r.writeServiceError(w, req, err)
		return
	}

	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, bookID, r.logger)
	if err := client.Open(sseRetry); err != nil {
		return
	}
	hub.Register(bookID, client)
	r.trackStreamClient("sse", 1)
	defer func() {
		hub.Unregister(bookID, client)
		client.Close()
		client.Wait()
		r.trackStreamClient("sse", -1)
	}()

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-client.Done():
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
