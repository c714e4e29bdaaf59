// Package session owns each browser's authentication state.
//
// An Auth is the stateful auth client for one browser: it keeps the
// browser's tokens in a TokenStore, refreshes them when they expire and
// tells listeners about every auth change. A Store sits on top of an Auth
// and holds the derived view state (identity + role) for that browser. The
// Manager hands out one Store per browser session id.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
)

// Event names an auth state change.
type Event string

const (
	EventInitialSession Event = "INITIAL_SESSION"
	EventSignedIn       Event = "SIGNED_IN"
	EventSignedOut      Event = "SIGNED_OUT"
	EventTokenRefreshed Event = "TOKEN_REFRESHED"
	// EventSessionExpired is a passive sign-out: the refresh token was
	// rejected. Unlike EventSignedOut it does not send the user anywhere.
	EventSessionExpired Event = "SESSION_EXPIRED"
)

// refreshLeeway refreshes tokens slightly before they actually expire.
const refreshLeeway = 30 * time.Second

// ErrNoVerifier is returned by ExchangeCodeForSession when this browser
// never started an OAuth sign-in, or started it too long ago.
var ErrNoVerifier = errors.New("session: no pending OAuth sign-in")

// AuthListener is called synchronously after every auth change. s is nil
// for EventSignedOut and EventSessionExpired.
type AuthListener func(ctx context.Context, event Event, s *model.Session)

// Subscription is a registered AuthListener.
type Subscription struct {
	auth *Auth
	id   uint64
	once sync.Once
}

// Unsubscribe removes the listener. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.auth.mu.Lock()
		delete(s.auth.listeners, s.id)
		s.auth.mu.Unlock()
	})
}

// Auth is the auth client of a single browser session.
type Auth struct {
	sid    string
	api    baas.AuthAPI
	tokens TokenStore
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]AuthListener

	// refreshMu makes concurrent requests share one refresh; refresh tokens
	// are single use.
	refreshMu sync.Mutex
}

func NewAuth(sid string, api baas.AuthAPI, tokens TokenStore, logger *slog.Logger) *Auth {
	return &Auth{
		sid:       sid,
		api:       api,
		tokens:    tokens,
		logger:    logger.With("sid", sid),
		now:       time.Now,
		listeners: make(map[uint64]AuthListener),
	}
}

// OnAuthStateChange registers fn for every later auth change.
func (a *Auth) OnAuthStateChange(fn AuthListener) *Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	a.listeners[a.nextID] = fn
	return &Subscription{auth: a, id: a.nextID}
}

func (a *Auth) emit(ctx context.Context, event Event, s *model.Session) {
	a.mu.Lock()
	fns := make([]AuthListener, 0, len(a.listeners))
	for _, fn := range a.listeners {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	a.logger.Debug("auth state change", "event", event)
	for _, fn := range fns {
		fn(ctx, event, s)
	}
}

// GetSession returns the current session, refreshing it first if the access
// token has expired. It returns (nil, nil) when the browser is signed out,
// including when the refresh token turns out to be dead.
func (a *Auth) GetSession(ctx context.Context) (*model.Session, error) {
	s, err := a.tokens.Load(ctx, a.sid)
	if err != nil || s == nil {
		return nil, err
	}
	if !s.Expired(a.now(), refreshLeeway) {
		return s, nil
	}
	return a.refreshIf(ctx, func(cur *model.Session) bool {
		return cur.Expired(a.now(), refreshLeeway)
	})
}

// RefreshRejected handles an access token the backend refused before it
// expired, e.g. after a sign-out elsewhere revoked it. The session is
// refreshed once; if the backend refuses the refresh too, the session ends
// with EventSessionExpired and (nil, nil) is returned.
func (a *Auth) RefreshRejected(ctx context.Context, accessToken string) (*model.Session, error) {
	return a.refreshIf(ctx, func(cur *model.Session) bool {
		return cur.AccessToken == accessToken
	})
}

// refreshIf refreshes the stored session if need still holds once the
// refresh lock is taken; another request may have refreshed while we
// waited.
func (a *Auth) refreshIf(ctx context.Context, need func(*model.Session) bool) (*model.Session, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	s, err := a.tokens.Load(ctx, a.sid)
	if err != nil || s == nil {
		return nil, err
	}
	if !need(s) {
		return s, nil
	}

	fresh, err := a.api.RefreshSession(ctx, s.RefreshToken)
	if baas.IsAuth(err) {
		a.logger.Info("session expired", "error", err)
		if err := a.tokens.Delete(ctx, a.sid); err != nil {
			return nil, err
		}
		a.emit(ctx, EventSessionExpired, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("refreshing session: %w", err)
	}
	if err := a.tokens.Save(ctx, a.sid, fresh); err != nil {
		return nil, err
	}
	a.emit(ctx, EventTokenRefreshed, fresh)
	return fresh, nil
}

// SignInWithPassword signs in and stores the session. A failed sign-in
// leaves the current state untouched.
func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	s, err := a.api.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := a.tokens.Save(ctx, a.sid, s); err != nil {
		return nil, err
	}
	a.emit(ctx, EventSignedIn, s)
	return s, nil
}

// SignUp creates an identity. It does not sign the browser in, even when
// the backend returns a session; the caller may use that session's token
// for follow-up writes.
func (a *Auth) SignUp(ctx context.Context, email, password string, meta model.IdentityMetadata) (*baas.SignUpResult, error) {
	return a.api.SignUp(ctx, email, password, meta)
}

// SignOut ends the session. Local state is always cleared, even when the
// backend cannot be told.
func (a *Auth) SignOut(ctx context.Context) error {
	s, err := a.tokens.Load(ctx, a.sid)
	if err != nil {
		return err
	}
	if s != nil {
		if err := a.api.SignOut(ctx, s.AccessToken); err != nil {
			a.logger.Warn("remote sign-out failed", "error", err)
		}
	}
	if err := a.tokens.Delete(ctx, a.sid); err != nil {
		return err
	}
	a.emit(ctx, EventSignedOut, nil)
	return nil
}

// SignInWithOAuth starts a PKCE sign-in with provider and returns the URL
// to send the browser to. The verifier stays with this browser's tokens
// until the callback.
func (a *Auth) SignInWithOAuth(ctx context.Context, provider model.Provider, redirectTo string) (string, error) {
	verifier := oauth2.GenerateVerifier()
	if err := a.tokens.SaveVerifier(ctx, a.sid, verifier); err != nil {
		return "", err
	}
	return a.api.AuthorizeURL(provider, redirectTo, oauth2.S256ChallengeFromVerifier(verifier))
}

// ExchangeCodeForSession finishes an OAuth sign-in.
func (a *Auth) ExchangeCodeForSession(ctx context.Context, code string) (*model.Session, error) {
	verifier, err := a.tokens.TakeVerifier(ctx, a.sid)
	if err != nil {
		return nil, err
	}
	if verifier == "" {
		return nil, ErrNoVerifier
	}
	s, err := a.api.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}
	if err := a.tokens.Save(ctx, a.sid, s); err != nil {
		return nil, err
	}
	a.emit(ctx, EventSignedIn, s)
	return s, nil
}
