package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splax/unhazzle/internal/domain"
	"github.com/splax/unhazzle/internal/repository"
	"github.com/splax/unhazzle/internal/service/state"
	jwtpkg "github.com/splax/unhazzle/pkg/jwt"
)

// ErrUnauthorized is returned for missing, malformed or expired session tokens.
var ErrUnauthorized = errors.New("session: unauthorized")

var errUserName = fmt.Errorf("%w: user name is required", repository.ErrInvalidArgument)

// EventState is the type of events carrying a committed state.
const EventState = "state"

// Broadcaster fans change events out to the session's live connections.
type Broadcaster interface {
	Broadcast(sessionID string, payload []byte)
}

// Event is the payload streamed to subscribers after each commit.
type Event struct {
	Type      string       `json:"type"`
	Operation string       `json:"operation"`
	Version   uint64       `json:"version"`
	State     domain.State `json:"state"`
}

// Config tunes a Manager.
type Config struct {
	Secret   string
	TokenTTL time.Duration
	IdleTTL  time.Duration
	Store    state.Options
}

// Session is returned by SignIn.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type entry struct {
	store    *state.Store
	lastSeen time.Time
}

// Manager maps session ids to state stores, loading them lazily from the
// repository and evicting idle ones.
type Manager struct {
	repo   repository.StateRepository
	codec  state.Codec
	hub    Broadcaster
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	// revoked holds signed-out session ids until their tokens would expire.
	revoked map[string]time.Time
}

// New constructs a Manager. hub may be nil when nothing streams changes.
func New(repo repository.StateRepository, codec state.Codec, hub Broadcaster, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.Store.Logger == nil {
		cfg.Store.Logger = logger
	}
	return &Manager{
		repo:     repo,
		codec:    codec,
		hub:      hub,
		cfg:      cfg,
		logger:   logger.With("component", "session"),
		now:      time.Now,
		sessions: make(map[string]*entry),
		revoked:  make(map[string]time.Time),
	}
}

// SignIn opens a fresh session for user and issues its token.
func (m *Manager) SignIn(ctx context.Context, user domain.User) (Session, error) {
	user.Name = strings.TrimSpace(user.Name)
	if user.Name == "" {
		return Session{}, errUserName
	}
	id := uuid.NewString()
	token, expires, err := jwtpkg.GenerateToken(id, user.Name, m.cfg.Secret, m.cfg.TokenTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	m.mu.Lock()
	store := m.attach(id, domain.State{Containers: []domain.Container{}})
	m.mu.Unlock()
	if err := store.SetUser(ctx, user); err != nil {
		return Session{}, err
	}
	m.logger.Info("session opened", "session_id", id)
	return Session{ID: id, Token: token, ExpiresAt: expires}, nil
}

// Authenticate validates token and returns its session id.
func (m *Manager) Authenticate(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", ErrUnauthorized
	}
	claims, err := jwtpkg.Parse(token, m.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	m.mu.Lock()
	_, gone := m.revoked[claims.SessionID]
	m.mu.Unlock()
	if gone {
		return "", fmt.Errorf("%w: session signed out", ErrUnauthorized)
	}
	return claims.SessionID, nil
}

// Store returns the session's store, loading the persisted blob on first use.
// Sessions without a blob start empty. Signed-out sessions are refused.
func (m *Manager) Store(ctx context.Context, id string) (*state.Store, error) {
	if id == "" {
		return nil, ErrUnauthorized
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, gone := m.revoked[id]; gone {
		return nil, ErrUnauthorized
	}
	if e, ok := m.sessions[id]; ok {
		e.lastSeen = m.now()
		return e.store, nil
	}
	initial := domain.State{Containers: []domain.Container{}}
	blob, err := m.repo.LoadState(ctx, repository.StateKey(id))
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("load session %s: %w", id, err)
	default:
		initial, err = m.codec.Decode(blob)
		if err != nil {
			return nil, err
		}
	}
	return m.attach(id, initial), nil
}

// SignOut clears the session's state, removes its blob and revokes its token.
func (m *Manager) SignOut(ctx context.Context, id string) error {
	store, err := m.Store(ctx, id)
	if err != nil {
		return err
	}
	resetErr := store.Reset(ctx)
	m.mu.Lock()
	delete(m.sessions, id)
	m.revoked[id] = m.now()
	m.mu.Unlock()
	store.Close()
	if err := m.repo.DeleteState(ctx, repository.StateKey(id)); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return errors.Join(resetErr, err)
	}
	m.logger.Info("session closed", "session_id", id)
	return resetErr
}

// Active lists the ids of sessions held in memory.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Evict closes stores idle for longer than the configured idle TTL. Their
// blobs stay persisted and are reloaded on the next request. Revocations
// older than the token TTL are dropped too.
func (m *Manager) Evict() int {
	now := m.now()
	cutoff := now.Add(-m.cfg.IdleTTL)
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, at := range m.revoked {
		if now.Sub(at) > m.cfg.TokenTTL {
			delete(m.revoked, id)
		}
	}
	evicted := 0
	for id, e := range m.sessions {
		if e.lastSeen.After(cutoff) {
			continue
		}
		e.store.Close()
		delete(m.sessions, id)
		evicted++
		m.logger.Debug("session evicted", "session_id", id)
	}
	return evicted
}

// Run evicts idle sessions every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Evict(); n > 0 {
				m.logger.Info("idle sessions evicted", "count", n)
			}
		}
	}
}

// Close stops every held store.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.sessions {
		e.store.Close()
		delete(m.sessions, id)
	}
}

// attach creates and registers a store. Callers hold m.mu.
func (m *Manager) attach(id string, initial domain.State) *state.Store {
	store := state.New(initial, m.cfg.Store)
	store.Subscribe(m.persist(id))
	if m.hub != nil {
		store.Subscribe(m.broadcast(id))
	}
	m.sessions[id] = &entry{store: store, lastSeen: m.now()}
	return store
}

func (m *Manager) persist(id string) state.Listener {
	key := repository.StateKey(id)
	return func(ctx context.Context, change state.Change) error {
		blob, err := m.codec.Encode(change.State)
		if err != nil {
			return err
		}
		if err := m.repo.SaveState(context.WithoutCancel(ctx), key, blob); err != nil {
			return fmt.Errorf("save session %s: %w", id, err)
		}
		return nil
	}
}

func (m *Manager) broadcast(id string) state.Listener {
	return func(_ context.Context, change state.Change) error {
		payload, err := json.Marshal(Event{
			Type:      EventState,
			Operation: change.Operation,
			Version:   change.State.Version,
			State:     change.State,
		})
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		m.hub.Broadcast(id, payload)
		return nil
	}
}
