// Package session owns the authenticated identity of the running client.
//
// Store is the single source of truth for "who is logged in". Every change
// goes through Bootstrap, Login, Logout or Expire, and every change is
// pushed synchronously to subscribers in the order it was applied.
package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"apex-trader/internal/metrics"
	"apex-trader/internal/model"
)

// Phase is the coarse session state.
type Phase int

const (
	Loading Phase = iota
	Anonymous
	Authenticated
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of the store. User is only meaningful
// when Phase is Authenticated.
type State struct {
	Phase Phase
	User  model.User
}

func (s State) IsAuthenticated() bool { return s.Phase == Authenticated }
func (s State) IsAdmin() bool         { return s.Phase == Authenticated && s.User.IsAdmin }

// Authenticator is the remote side of the session: whatever backend the
// client talks to.
type Authenticator interface {
	// SessionCheck returns the current user, or nil when no session is active.
	SessionCheck(ctx context.Context) (*model.User, error)
	Login(ctx context.Context, cred model.Credentials) (model.User, error)
	Logout(ctx context.Context) error
	Signup(ctx context.Context, form model.SignupForm) error
}

// ErrSuperseded is returned by Login when a later logout or login made its
// response stale. The store is left untouched.
var ErrSuperseded = errors.New("login superseded by a newer session change")

// Store holds the session state. The zero value is not usable; use NewStore.
type Store struct {
	auth Authenticator

	mu    sync.Mutex
	state State
	// gen is bumped by every login attempt, logout and expiry. A login
	// response is applied only if gen still matches the value it started with.
	gen     uint64
	bootErr error
	subs    []subscriber
	nextSub int

	// notify serializes subscriber callbacks so they observe transitions in
	// the order they were applied.
	notify sync.Mutex
	boot   sync.Once
}

// NewStore returns a store in the Loading phase.
func NewStore(auth Authenticator) *Store {
	return &Store{
		auth:  auth,
		state: State{Phase: Loading},
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BootstrapErr is the transport failure, if any, that made Bootstrap
// resolve to Anonymous.
func (s *Store) BootstrapErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootErr
}

type subscriber struct {
	id int
	fn func(State)
}

// Subscribe registers fn to be called after every transition. Callbacks run
// in registration order on the goroutine that caused the transition and
// must not call back into Login, Logout or Expire.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// apply sets next when accept (evaluated under the lock) allows it, then
// notifies subscribers. It reports whether the transition happened.
func (s *Store) apply(next State, accept func(cur State, gen uint64) bool) bool {
	s.mu.Lock()
	if accept != nil && !accept(s.state, s.gen) {
		s.mu.Unlock()
		return false
	}
	s.state = next
	subs := make([]func(State), len(s.subs))
	for i, sub := range s.subs {
		subs[i] = sub.fn
	}
	s.notify.Lock()
	s.mu.Unlock()

	defer s.notify.Unlock()
	metrics.IncSessionTransition(next.Phase.String())
	for _, fn := range subs {
		fn(next)
	}
	return true
}

func (s *Store) bump() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	return s.gen
}

// Bootstrap performs the initial session check. It runs once per store;
// later calls return nil without touching the network. A failed check
// resolves to Anonymous and is returned so callers can report it.
func (s *Store) Bootstrap(ctx context.Context) error {
	var err error
	s.boot.Do(func() { err = s.bootstrap(ctx) })
	return err
}

func (s *Store) bootstrap(ctx context.Context) error {
	stillLoading := func(cur State, _ uint64) bool { return cur.Phase == Loading }

	user, err := s.auth.SessionCheck(ctx)
	if err != nil {
		log.Printf("session check failed: %v", err)
		s.mu.Lock()
		s.bootErr = err
		s.mu.Unlock()
		s.apply(State{Phase: Anonymous}, stillLoading)
		return err
	}
	if user == nil {
		s.apply(State{Phase: Anonymous}, stillLoading)
		return nil
	}
	if s.apply(State{Phase: Authenticated, User: *user}, stillLoading) {
		log.Printf("session restored: user=%s", user.Username)
	}
	return nil
}

// Login authenticates with the backend. On failure the state is unchanged
// and the error is a *model.AuthError (or *model.TransportError when the
// server could not be reached).
func (s *Store) Login(ctx context.Context, cred model.Credentials) (model.User, error) {
	gen := s.bump()

	user, err := s.auth.Login(ctx, cred)
	if err != nil {
		var (
			ae *model.AuthError
			te *model.TransportError
		)
		switch {
		case errors.As(err, &ae):
			if ae.Message == "" {
				err = &model.AuthError{Message: model.MsgLoginFailed}
			}
		case errors.As(err, &te):
		default:
			err = &model.TransportError{Op: "login", Err: err}
		}
		return model.User{}, err
	}

	current := func(_ State, g uint64) bool { return g == gen }
	if !s.apply(State{Phase: Authenticated, User: user}, current) {
		log.Printf("login discarded: user=%s response arrived after a newer session change", user.Username)
		return model.User{}, ErrSuperseded
	}
	log.Printf("logged in: user=%s admin=%t", user.Username, user.IsAdmin)
	return user, nil
}

// Logout drops the local session first and then tells the backend. A
// backend failure is logged only: the client never stays logged in after
// the user asked to leave.
func (s *Store) Logout(ctx context.Context) {
	s.bump()
	s.apply(State{Phase: Anonymous}, nil)
	if err := s.auth.Logout(ctx); err != nil {
		log.Printf("logout failed: %v", err)
	}
}

// Expire moves to Anonymous after the server rejected the session on some
// other call.
func (s *Store) Expire() {
	s.bump()
	notAnonymous := func(cur State, _ uint64) bool { return cur.Phase != Anonymous }
	if s.apply(State{Phase: Anonymous}, notAnonymous) {
		log.Printf("session expired: server rejected the session")
	}
}
