package httpx

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/splax/unhazzle/internal/service/session"
	"github.com/splax/unhazzle/internal/service/state"
	"github.com/splax/unhazzle/internal/ws"
)

// snapshotEvent encodes the session's current state for a new subscriber.
func snapshotEvent(store *state.Store) ([]byte, uint64, error) {
	snap := store.Snapshot()
	payload, err := json.Marshal(session.Event{
		Type:      session.EventState,
		Operation: "snapshot",
		Version:   snap.Version,
		State:     snap,
	})
	return payload, snap.Version, err
}

// subscribe registers client with the hub and only then sends the snapshot,
// so no commit can fall between the two. Events the snapshot already covers
// are dropped.
func (r *Router) subscribe(sessionID string, store *state.Store, client ws.Subscriber) (ws.Subscriber, error) {
	primed := &primedSubscriber{Subscriber: client}
	r.hub.Register(sessionID, primed)
	first, version, err := snapshotEvent(store)
	if err == nil {
		err = primed.prime(first, version)
	}
	if err != nil {
		r.hub.Unregister(sessionID, primed)
		client.Close()
		return nil, err
	}
	return primed, nil
}

// primedSubscriber holds hub deliveries until the snapshot has been written.
type primedSubscriber struct {
	ws.Subscriber

	mu     sync.Mutex
	primed bool
	held   [][]byte
}

func (p *primedSubscriber) Send(payload []byte) error {
	p.mu.Lock()
	if !p.primed {
		p.held = append(p.held, payload)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.Subscriber.Send(payload)
}

// prime writes the snapshot, then the held events newer than version, and
// switches to direct delivery once nothing is left to drain.
func (p *primedSubscriber) prime(snapshot []byte, version uint64) error {
	if err := p.Subscriber.Send(snapshot); err != nil {
		return err
	}
	for {
		p.mu.Lock()
		held := p.held
		p.held = nil
		if len(held) == 0 {
			p.primed = true
			p.mu.Unlock()
			return nil
		}
		p.mu.Unlock()
		for _, payload := range held {
			if eventVersion(payload) <= version {
				continue
			}
			if err := p.Subscriber.Send(payload); err != nil {
				return err
			}
			version = eventVersion(payload)
		}
	}
}

func eventVersion(payload []byte) uint64 {
	var head struct {
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return 0
	}
	return head.Version
}

func (r *Router) handleStateWS(w http.ResponseWriter, req *http.Request) {
	info, ok := sessionFromContext(req.Context())
	if !ok {
		r.logger.Error("session context missing for state websocket", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	store, err := r.sessions.Store(req.Context(), info.SessionID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	sub, err := r.subscribe(info.SessionID, store, client)
	if err != nil {
		return
	}
	go func() {
		defer r.hub.Unregister(info.SessionID, sub)
		client.Serve()
	}()
}

func (r *Router) handleEvents(w http.ResponseWriter, req *http.Request) {
	info, ok := sessionFromContext(req.Context())
	if !ok {
		r.logger.Error("session context missing for event stream", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return
	}
	if r.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "streaming disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	store, err := r.sessions.Store(req.Context(), info.SessionID)
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	client := ws.NewSSEClient(w, flusher, session.EventState, r.logger)
	sub, err := r.subscribe(info.SessionID, store, client)
	if err != nil {
		return
	}
	defer r.hub.Unregister(info.SessionID, sub)

	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-req.Context().Done():
			client.Close()
			return
		case <-ticker.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}
