package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
)

// RoleResolver maps an identity to its role. It never fails; lookup
// problems are part of the result.
type RoleResolver interface {
	Resolve(ctx context.Context, identityID string) model.RoleResult
}

// State is a snapshot of one browser's auth state.
type State struct {
	Identity  *model.Identity  `json:"identity"`
	Role      model.RoleResult `json:"role"`
	Session   *model.Session   `json:"-"`
	Loading   bool             `json:"loading"`
	LastEvent Event            `json:"last_event,omitempty"`
}

// Authenticated reports whether the snapshot has a signed-in identity.
func (s State) Authenticated() bool { return s.Identity != nil }

// Context returns ctx carrying this state's access token, for data calls
// made on the user's behalf.
func (s State) Context(ctx context.Context) context.Context {
	if s.Session == nil {
		return ctx
	}
	return baas.WithAccessToken(ctx, s.Session.AccessToken)
}

// A role that could not be resolved is looked up again on the next request,
// then after roleRetryBase, doubling up to roleRetryMax.
const (
	roleRetryBase = 500 * time.Millisecond
	roleRetryMax  = 30 * time.Second
)

// Store is the single owner of one browser's State. All writes go through
// apply or resolveRole; readers get copies.
type Store struct {
	auth   *Auth
	roles  RoleResolver
	logger *slog.Logger
	now    func() time.Time

	initMu      sync.Mutex
	initialized bool
	sub         *Subscription

	mu    sync.Mutex
	state State
	// gen counts session changes. A change whose role lookup finishes after
	// a newer change started is dropped.
	gen          uint64
	roleFailures int
	roleRetryAt  time.Time

	subsMu  sync.Mutex
	nextSub uint64
	subs    map[uint64]func(State)
}

func NewStore(auth *Auth, roles RoleResolver, logger *slog.Logger) *Store {
	return &Store{
		auth:   auth,
		roles:  roles,
		logger: logger,
		now:    time.Now,
		state:  State{Loading: true},
		subs:   make(map[uint64]func(State)),
	}
}

// Initialize subscribes to auth changes and then loads the current session.
// Both paths end in apply, so a change that lands between the two costs at
// most one extra role lookup. On error the store stays Loading and the next
// call tries again.
func (s *Store) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}

	if s.sub == nil {
		s.sub = s.auth.OnAuthStateChange(s.apply)
	}
	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		return err
	}
	s.apply(ctx, EventInitialSession, sess)
	s.initialized = true
	return nil
}

// Sync brings the store up to date with the browser's tokens. It runs once
// per request: the first call initializes the store, later calls refresh an
// expired access token, pick up sign-ins and sign-outs made through another
// server instance, and retry a role that is not known yet.
func (s *Store) Sync(ctx context.Context) error {
	s.initMu.Lock()
	done := s.initialized
	s.initMu.Unlock()
	if !done {
		return s.Initialize(ctx)
	}

	// A refresh here emits TOKEN_REFRESHED or SESSION_EXPIRED, which apply
	// handles before GetSession returns.
	sess, err := s.auth.GetSession(ctx)
	if err != nil {
		return err
	}
	st := s.State()
	if event, changed := syncEvent(st, sess); changed {
		s.logger.Debug("session changed outside this store", "event", event)
		s.apply(ctx, event, sess)
		return nil
	}
	if st.Authenticated() && st.Role.Status != model.RoleKnown && s.roleRetryDue() {
		s.resolveRole(ctx)
	}
	return nil
}

// syncEvent names the change between the store's state and the stored
// session.
func syncEvent(st State, sess *model.Session) (Event, bool) {
	switch {
	case sess == nil && st.Session == nil:
		return "", false
	case sess == nil:
		return EventSessionExpired, true
	case st.Session == nil || st.Session.Identity.ID != sess.Identity.ID:
		return EventSignedIn, true
	case st.Session.AccessToken != sess.AccessToken, st.Session.RefreshToken != sess.RefreshToken:
		return EventTokenRefreshed, true
	}
	return "", false
}

func (s *Store) apply(ctx context.Context, event Event, sess *model.Session) {
	s.mu.Lock()
	prev := s.state
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	next := State{LastEvent: event}
	if sess != nil {
		id := sess.Identity
		next.Identity = &id
		next.Session = sess
		if prev.Identity != nil && prev.Identity.ID == id.ID && prev.Role.Status == model.RoleKnown {
			next.Role = prev.Role
		} else {
			next.Role = s.roles.Resolve(baas.WithAccessToken(ctx, sess.AccessToken), id.ID)
		}
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.state = next
	s.noteRoleLocked(next)
	s.mu.Unlock()

	s.notify(next)
}

// RefreshRole resolves the role again, e.g. after the profile row was
// written for a user whose role was still pending.
func (s *Store) RefreshRole(ctx context.Context) model.RoleResult {
	return s.resolveRole(ctx)
}

func (s *Store) resolveRole(ctx context.Context) model.RoleResult {
	s.mu.Lock()
	cur := s.state
	gen := s.gen
	s.mu.Unlock()
	if cur.Identity == nil {
		return model.RoleResult{}
	}

	role := s.roles.Resolve(cur.Context(ctx), cur.Identity.ID)

	s.mu.Lock()
	if gen != s.gen || s.state.Identity == nil || s.state.Identity.ID != cur.Identity.ID {
		// The session changed while we looked; its own apply set the role.
		latest := s.state.Role
		s.mu.Unlock()
		return latest
	}
	s.state.Role = role
	next := s.state
	s.noteRoleLocked(next)
	s.mu.Unlock()

	s.notify(next)
	return role
}

// noteRoleLocked schedules the next lookup of a role that is not known.
// Callers hold s.mu.
func (s *Store) noteRoleLocked(st State) {
	if !st.Authenticated() || st.Role.Status == model.RoleKnown {
		s.roleFailures = 0
		s.roleRetryAt = time.Time{}
		return
	}
	s.roleFailures++
	wait := time.Duration(0)
	if s.roleFailures > 1 {
		wait = roleRetryMax
		if shift := s.roleFailures - 2; shift < 16 {
			wait = min(roleRetryBase<<shift, roleRetryMax)
		}
	}
	s.roleRetryAt = s.now().Add(wait)
}

func (s *Store) roleRetryDue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.now().Before(s.roleRetryAt)
}

func (s *Store) notify(st State) {
	s.subsMu.Lock()
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(st)
	}
}

// Subscribe calls fn with every new snapshot until the returned function is
// called.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.subsMu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Auth returns the browser's auth client.
func (s *Store) Auth() *Auth { return s.auth }

// Close releases the auth-change subscription and drops all subscribers.
func (s *Store) Close() {
	s.initMu.Lock()
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	s.initMu.Unlock()

	s.subsMu.Lock()
	clear(s.subs)
	s.subsMu.Unlock()
}
