package ws

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ReviewEvent names the SSE event carrying a review payload.
const ReviewEvent = "review"

// SSEClient writes review events for one book as Server-Sent Events.
type SSEClient struct {
	mu        sync.Mutex
	writer    io.Writer
	flusher   http.Flusher
	control   *http.ResponseController
	bookID    string
	log       *slog.Logger
	seq       uint64
	done      chan struct{}
	closeOnce sync.Once
}

// NewSSEClient wraps an already-committed event-stream response. When writer
// is an http.ResponseWriter each write gets its own deadline.
func NewSSEClient(writer io.Writer, flusher http.Flusher, bookID string, logger *slog.Logger) *SSEClient {
	c := &SSEClient{
		writer:  writer,
		flusher: flusher,
		bookID:  bookID,
		log:     logger,
		done:    make(chan struct{}),
	}
	if rw, ok := writer.(http.ResponseWriter); ok {
		c.control = http.NewResponseController(rw)
	}
	return c
}

// Open sends the reconnect hint and a comment naming the book being watched.
func (c *SSEClient) Open(retry time.Duration) error {
	return c.write(func() string {
		return fmt.Sprintf("retry: %d\n: watching %s\n\n", retry.Milliseconds(), c.bookID)
	})
}

// Send emits one review event. Event ids increase per connection.
func (c *SSEClient) Send(payload []byte) error {
	return c.write(func() string {
		c.seq++
		return fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", ReviewEvent, c.seq, payload)
	})
}

// Heartbeat emits a comment frame so idle proxies keep the connection.
func (c *SSEClient) Heartbeat() error {
	return c.write(func() string { return ": ping\n\n" })
}

func (c *SSEClient) write(frame func() string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return io.EOF
	}
	if c.control != nil {
		if err := c.control.SetWriteDeadline(time.Now().Add(writeWait)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			c.Close()
			return err
		}
	}
	if _, err := io.WriteString(c.writer, frame()); err != nil {
		c.Close()
		c.log.Warn("sse write failed", "book_id", c.bookID, "error", err)
		return err
	}
	c.flusher.Flush()
	return nil
}

func (c *SSEClient) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done is closed once the stream is closed, either by a failed write or by
// the hub shutting down.
func (c *SSEClient) Done() <-chan struct{} {
	return c.done
}

// Close marks the stream as closed without waiting for an in-flight write.
func (c *SSEClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Wait blocks until no write is in progress. After Close and Wait the
// response writer is no longer touched.
func (c *SSEClient) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
}
