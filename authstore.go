package identity

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
)

// AuthStatus is the client-session lifecycle state.
type AuthStatus string

const (
	StatusUnauthenticated AuthStatus = "unauthenticated"
	StatusAuthenticating  AuthStatus = "authenticating"
	StatusAuthenticated   AuthStatus = "authenticated"
	StatusError           AuthStatus = "error"
)

// authTransitions is the allowed edge set. Transitions outside it are
// dropped with a warning rather than corrupting the session state.
var authTransitions = map[AuthStatus][]AuthStatus{
	StatusUnauthenticated: {StatusAuthenticating},
	StatusAuthenticating:  {StatusAuthenticated, StatusError, StatusUnauthenticated},
	StatusAuthenticated:   {StatusAuthenticating, StatusUnauthenticated},
	StatusError:           {StatusAuthenticating, StatusUnauthenticated},
}

func canTransition(from, to AuthStatus) bool {
	for _, next := range authTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type waitResult struct {
	user *ResolvedUser
	err  error
}

// AuthStore owns client-side session state: the current status, the resolved
// user, and the subscription to the provider's auth state stream. It is an
// instance, not a package singleton, so two stores never share state.
type AuthStore struct {
	mu sync.Mutex

	provider AccountProvider
	resolver *RoleResolver
	logger   Logger

	status      AuthStatus
	session     *ProviderSession
	resolved    *ResolvedUser
	lastErr     error
	initialized bool
	settled     bool
	unsubscribe func()

	// one-shot waiters parked in WaitForAuth before the first settle
	waiters []chan waitResult
}

type AuthStoreOption func(*AuthStore)

func WithAuthStoreLogger(logger Logger) AuthStoreOption {
	return func(s *AuthStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewAuthStore wires a store over the credential provider and the role
// resolver. Call InitAuth to start consuming provider state.
func NewAuthStore(provider AccountProvider, resolver *RoleResolver, opts ...AuthStoreOption) *AuthStore {
	s := &AuthStore{
		provider: provider,
		resolver: resolver,
		logger:   defLogger{},
		status:   StatusUnauthenticated,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// InitAuth subscribes to the provider's auth state stream. It is an
// idempotent latch: the first call subscribes, every later call is a no-op,
// so no matter how many entry points race to initialize, exactly one
// subscription exists.
func (s *AuthStore) InitAuth(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.initialized = true
	s.mu.Unlock()

	// Subscribe fires immediately with the provider's last known state, so
	// a persisted session settles without waiting for a fresh sign-in.
	unsubscribe := s.provider.Subscribe(func(session *ProviderSession) {
		s.onSessionChange(ctx, session)
	})

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	return nil
}

func (s *AuthStore) onSessionChange(ctx context.Context, session *ProviderSession) {
	if session == nil {
		s.settle(StatusUnauthenticated, nil, nil, nil)
		return
	}

	s.transition(StatusAuthenticating)
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	resolved, err := s.resolver.Resolve(ctx, session.IDToken)
	if err != nil {
		s.logger.Error("auth store: role resolution failed: %v", err)
		s.settle(StatusError, nil, session, err)
		return
	}

	s.settle(StatusAuthenticated, resolved, session, nil)
}

func (s *AuthStore) transition(to AuthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.status, to) {
		s.logger.Warn("auth store: ignoring transition %s -> %s", s.status, to)
		return
	}
	s.status = to
}

// settle moves to a terminal status and releases every parked waiter exactly
// once each.
func (s *AuthStore) settle(status AuthStatus, resolved *ResolvedUser, session *ProviderSession, err error) {
	s.mu.Lock()
	if s.status != status && !canTransition(s.status, status) {
		s.logger.Warn("auth store: ignoring settle %s -> %s", s.status, status)
		s.mu.Unlock()
		return
	}
	s.status = status
	s.resolved = resolved
	s.session = session
	s.lastErr = err
	s.settled = true

	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	for _, waiter := range waiters {
		waiter <- waitResult{user: resolved, err: err}
	}
}

// WaitForAuth blocks until the session settles into a terminal state:
// authenticated, unauthenticated, or error. A store that has already settled
// answers immediately; each parked waiter is released exactly once, so a
// caller never leaks a subscription by awaiting twice.
func (s *AuthStore) WaitForAuth(ctx context.Context) (*ResolvedUser, error) {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return nil, errors.New(
			"auth store not initialized",
			errors.CategoryConflict,
		)
	}
	if s.settled {
		resolved, err := s.resolved, s.lastErr
		s.mu.Unlock()
		return resolved, err
	}

	waiter := make(chan waitResult, 1)
	s.waiters = append(s.waiters, waiter)
	s.mu.Unlock()

	select {
	case result := <-waiter:
		return result.user, result.err
	case <-ctx.Done():
		s.dropWaiter(waiter)
		return nil, errors.Wrap(ctx.Err(), errors.CategoryInternal, "wait for auth canceled")
	}
}

func (s *AuthStore) dropWaiter(waiter chan waitResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == waiter {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// Status returns the current lifecycle state.
func (s *AuthStore) Status() AuthStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Current returns the resolved user, or nil while not authenticated.
func (s *AuthStore) Current() *ResolvedUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusAuthenticated {
		return nil
	}
	return s.resolved
}

// Session returns the provider session backing the current state, if any.
func (s *AuthStore) Session() *ProviderSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Err returns the resolution error behind StatusError, nil otherwise.
func (s *AuthStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusError {
		return nil
	}
	return s.lastErr
}

// SignIn authenticates against the provider. The resulting session lands in
// the store through the subscription, so callers observe the outcome via
// WaitForAuth or Status.
func (s *AuthStore) SignIn(ctx context.Context, email, password string) error {
	if _, err := s.provider.SignIn(ctx, email, password); err != nil {
		return err
	}
	return nil
}

// SignOut ends the provider session and resets the store to unauthenticated.
func (s *AuthStore) SignOut(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		s.logger.Warn("auth store: provider sign out: %v", err)
	}
	s.settle(StatusUnauthenticated, nil, nil, nil)
	return nil
}

// Close tears down the provider subscription. The store keeps its last state
// but stops reacting to provider changes.
func (s *AuthStore) Close() error {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return nil
}

// WaitForAuthTimeout is a convenience wrapper for callers that want a
// bounded wait without building their own context.
func (s *AuthStore) WaitForAuthTimeout(parent context.Context, timeout time.Duration) (*ResolvedUser, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return s.WaitForAuth(ctx)
}
