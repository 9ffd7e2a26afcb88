package ws

import (
	"context"
	"sync"
)

// queueSize bounds how many events may wait for a slow subscriber before it
// is dropped.
const queueSize = 16

// Subscriber abstracts a streaming client. Close must not block.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans review events out to the clients watching a book. The event loop
// never performs network I/O: each subscriber is fed from its own queue by a
// dedicated goroutine.
type Hub struct {
	clients   map[string]map[Subscriber]*outbox
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countRequest
	done      chan struct{}
	closeOnce sync.Once
}

type message struct {
	bookID  string
	payload []byte
}

type subscription struct {
	bookID string
	client Subscriber
}

type countRequest struct {
	bookID string
	reply  chan int
}

type outbox struct {
	queue chan []byte
}

// NewHub creates an initialized Hub and starts its event loop.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]*outbox),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		count:     make(chan countRequest),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for _, clients := range h.clients {
				for c, box := range clients {
					close(box.queue)
					c.Close()
				}
			}
			h.clients = nil
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.bookID]; !ok {
				h.clients[sub.bookID] = make(map[Subscriber]*outbox)
			}
			if _, ok := h.clients[sub.bookID][sub.client]; ok {
				continue
			}
			box := &outbox{queue: make(chan []byte, queueSize)}
			h.clients[sub.bookID][sub.client] = box
			go h.pump(sub, box)
		case sub := <-h.unreg:
			h.remove(sub.bookID, sub.client, false)
		case msg := <-h.broadcast:
			for c, box := range h.clients[msg.bookID] {
				select {
				case box.queue <- msg.payload:
				default:
					h.remove(msg.bookID, c, true)
				}
			}
		case req := <-h.count:
			req.reply <- len(h.clients[req.bookID])
		}
	}
}

// remove must only be called from the event loop.
func (h *Hub) remove(bookID string, client Subscriber, closeClient bool) {
	clients, ok := h.clients[bookID]
	if !ok {
		return
	}
	box, ok := clients[client]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, bookID)
	}
	close(box.queue)
	if closeClient {
		client.Close()
	}
}

// pump delivers queued events to one subscriber. A failed send closes the
// subscriber and asks the loop to forget it; remaining events are discarded.
func (h *Hub) pump(sub subscription, box *outbox) {
	failed := false
	for payload := range box.queue {
		if failed {
			continue
		}
		if err := sub.client.Send(payload); err != nil {
			failed = true
			sub.client.Close()
			go h.Unregister(sub.bookID, sub.client)
		}
	}
}

// Register subscribes a client to a book's events.
func (h *Hub) Register(bookID string, client Subscriber) {
	select {
	case h.register <- subscription{bookID: bookID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client. It does not close it.
func (h *Hub) Unregister(bookID string, client Subscriber) {
	select {
	case h.unreg <- subscription{bookID: bookID, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every client watching bookID. It returns once
// the event loop has accepted the message, or when ctx ends first.
func (h *Hub) Broadcast(ctx context.Context, bookID string, payload []byte) {
	select {
	case h.broadcast <- message{bookID: bookID, payload: payload}:
	case <-ctx.Done():
	case <-h.done:
	}
}

// Subscribers reports how many clients currently watch bookID.
func (h *Hub) Subscribers(bookID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countRequest{bookID: bookID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close stops the event loop and closes every subscriber.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
