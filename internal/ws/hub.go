package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

const broadcastBuffer = 64

// Hub fans state events out to the live connections of each session.
// A single goroutine owns the subscription table.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	count     chan countQuery
	done      chan struct{}
	closeOnce sync.Once
}

type message struct {
	sessionID string
	payload   []byte
}

type subscription struct {
	sessionID string
	client    Subscriber
}

type countQuery struct {
	sessionID string
	reply     chan int
}

// NewHub creates a Hub and starts its loop.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, broadcastBuffer),
		count:     make(chan countQuery),
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
				for c := range clients {
					c.Close()
				}
			}
			h.clients = nil
			return
		case sub := <-h.register:
			if _, ok := h.clients[sub.sessionID]; !ok {
				h.clients[sub.sessionID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.sessionID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			h.drop(sub.sessionID, sub.client)
		case msg := <-h.broadcast:
			for c := range h.clients[msg.sessionID] {
				if err := c.Send(msg.payload); err != nil {
					c.Close()
					h.drop(msg.sessionID, c)
				}
			}
		case q := <-h.count:
			q.reply <- len(h.clients[q.sessionID])
		}
	}
}

func (h *Hub) drop(sessionID string, c Subscriber) {
	clients, ok := h.clients[sessionID]
	if !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.clients, sessionID)
	}
}

// Register adds a client to a session stream.
func (h *Hub) Register(sessionID string, client Subscriber) {
	select {
	case h.register <- subscription{sessionID: sessionID, client: client}:
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(sessionID string, client Subscriber) {
	select {
	case h.unreg <- subscription{sessionID: sessionID, client: client}:
	case <-h.done:
	}
}

// Broadcast queues payload for every client of the session. It returns once
// the event is queued, so it is safe to call while holding other locks as
// long as the buffer drains.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	select {
	case h.broadcast <- message{sessionID: sessionID, payload: payload}:
	case <-h.done:
	}
}

// Subscribers reports how many clients follow the session.
func (h *Hub) Subscribers(sessionID string) int {
	reply := make(chan int, 1)
	select {
	case h.count <- countQuery{sessionID: sessionID, reply: reply}:
		return <-reply
	case <-h.done:
		return 0
	}
}

// Close stops the loop and closes every client.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
