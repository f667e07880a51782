package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splax/unhazzle/internal/domain"
)

const (
	// DefaultSettleDelay is how long simulated provisioning takes.
	DefaultSettleDelay = 2 * time.Second
	// DefaultDomainSuffix is appended to environment and project slugs.
	DefaultDomainSuffix = "unhazzle.app"
)

// Change describes a committed operation.
type Change struct {
	Operation string
	State     domain.State
}

// Listener observes committed changes. Listeners run in commit order while
// the store is locked and must not call back into the store.
type Listener func(ctx context.Context, change Change) error

// Options tune a Store.
type Options struct {
	Logger       *slog.Logger
	Scheduler    Scheduler
	SettleDelay  time.Duration
	DomainSuffix string
	Now          func() time.Time
	NewID        func() string
}

// Store owns the deployment state of one session. Every operation copies the
// current state, mutates the copy and commits it atomically.
type Store struct {
	mu        sync.Mutex
	state     domain.State
	listeners []Listener
	timers    map[uint64]Timer
	nextTimer uint64
	closed    bool

	logger    *slog.Logger
	scheduler Scheduler
	delay     time.Duration
	suffix    string
	now       func() time.Time
	newID     func() string
}

// New returns a store seeded with initial.
func New(initial domain.State, opts Options) *Store {
	s := &Store{
		state:     initial.Clone(),
		timers:    make(map[uint64]Timer),
		logger:    opts.Logger,
		scheduler: opts.Scheduler,
		delay:     opts.SettleDelay,
		suffix:    opts.DomainSuffix,
		now:       opts.Now,
		newID:     opts.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "state")
	if s.scheduler == nil {
		s.scheduler = WallClock{}
	}
	if s.delay <= 0 {
		s.delay = DefaultSettleDelay
	}
	if s.suffix == "" {
		s.suffix = DefaultDomainSuffix
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	s.resumePending()
	return s
}

// Subscribe registers a listener for future commits.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Close stops pending delayed transitions. Later operations fail with ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// PendingTransitions counts scheduled settle transitions.
func (s *Store) PendingTransitions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Store) update(ctx context.Context, op string, fn func(st *domain.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, op, fn)
}

func (s *Store) updateLocked(ctx context.Context, op string, fn func(st *domain.State) error) error {
	if s.closed {
		return ErrClosed
	}
	next := s.state.Clone()
	if err := fn(&next); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	next.Version = s.state.Version + 1
	s.state = next
	return s.notify(ctx, op)
}

func (s *Store) notify(ctx context.Context, op string) error {
	var errs []error
	for _, l := range s.listeners {
		if err := l(ctx, Change{Operation: op, State: s.state.Clone()}); err != nil {
			s.logger.Error("state listener failed", "operation", op, "version", s.state.Version, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s committed but not propagated: %w", op, errors.Join(errs...))
	}
	return nil
}

func (s *Store) stamp() time.Time {
	return s.now().UTC()
}

// settleLater schedules env to become active once the settle delay elapses.
// The transition only applies if the environment is still provisioning
// under the same generation. Callers hold s.mu.
func (s *Store) settleLater(envID string, generation uint64) {
	if s.closed {
		return
	}
	s.nextTimer++
	id := s.nextTimer
	s.timers[id] = s.scheduler.AfterFunc(s.delay, func() {
		s.settle(id, envID, generation)
	})
}

func (s *Store) settle(timerID uint64, envID string, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[timerID]; !ok {
		return
	}
	delete(s.timers, timerID)
	err := s.updateLocked(context.Background(), "settle", func(st *domain.State) error {
		env, err := environmentRef(st, envID)
		if err != nil {
			return errNoChange
		}
		if env.Status != domain.StatusProvisioning || env.Generation != generation {
			return errNoChange
		}
		env.Status = domain.StatusActive
		env.Generation++
		env.UpdatedAt = s.stamp()
		return nil
	})
	if err != nil {
		s.logger.Warn("settle transition not propagated", "environment_id", envID, "error", err)
	}
}

// resumePending re-arms settle transitions for environments that were
// provisioning when the state was persisted.
func (s *Store) resumePending() {
	if s.state.Project == nil {
		return
	}
	for _, env := range s.state.Project.Environments {
		if env.Status == domain.StatusProvisioning {
			s.settleLater(env.ID, env.Generation)
		}
	}
}

// begin moves env into provisioning under a fresh generation and schedules
// its settle transition. Callers hold s.mu.
func (s *Store) begin(env *domain.Environment) {
	env.Status = domain.StatusProvisioning
	env.Generation++
	env.UpdatedAt = s.stamp()
	s.settleLater(env.ID, env.Generation)
}

func environmentRef(st *domain.State, id string) (*domain.Environment, error) {
	if st.Project == nil {
		return nil, ErrNoProject
	}
	idx := st.Project.EnvironmentIndex(id)
	if idx < 0 {
		return nil, ErrEnvironmentNotFound
	}
	return &st.Project.Environments[idx], nil
}

func liveEnvironmentRef(st *domain.State, id string) (*domain.Environment, error) {
	env, err := environmentRef(st, id)
	if err != nil {
		return nil, err
	}
	if env.Status == domain.StatusDeleted {
		return nil, ErrEnvironmentDeleted
	}
	return env, nil
}

// targetEnvironment resolves an explicit id or the active environment.
// It returns nil without error when no project exists yet, meaning the draft.
func targetEnvironment(st *domain.State, id string) (*domain.Environment, error) {
	if id != "" {
		return liveEnvironmentRef(st, id)
	}
	if st.Project == nil {
		return nil, nil
	}
	if st.ActiveEnvironmentID == "" {
		return nil, ErrNoActiveEnvironment
	}
	return liveEnvironmentRef(st, st.ActiveEnvironmentID)
}

// touch records a configuration change on env.
func (s *Store) touch(env *domain.Environment) {
	env.RefreshPublicContainers()
	if env.Deployed {
		env.PendingChanges = true
	}
	env.UpdatedAt = s.stamp()
}
