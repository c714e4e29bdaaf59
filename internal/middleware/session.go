package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/hackhub/internal/session"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so no other package can
// read or shadow the values stored under it.
type contextKey string

const (
	storeKey contextKey = "sessionStore"
	sidKey   contextKey = "sessionID"
	stateKey contextKey = "sessionState"
)

// LoginPath is where RequireAuth sends anonymous visitors.
const LoginPath = "/auth/login"

// Sessions attaches the browser's session.Store to the request context,
// issuing a session cookie on the first visit. The store is synced with the
// browser's tokens before the handler runs, and the resulting State snapshot
// is stored next to it: one request sees one identity and one token, even
// if another tab of the same browser signs out meanwhile.
func Sessions(manager *session.Manager, secure bool, cookieTTL time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sid string
			if c, err := r.Cookie(session.CookieName); err == nil && c.Value != "" {
				sid = c.Value
			} else {
				sid = session.NewSessionID()
				http.SetCookie(w, &http.Cookie{
					Name:     session.CookieName,
					Value:    sid,
					Path:     "/",
					MaxAge:   int(cookieTTL.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			store, err := manager.Get(r.Context(), sid)
			if err != nil {
				logger.Error("loading session failed",
					slog.String("sid", sid),
					slog.String("error", err.Error()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"error":"unavailable","message":"Could not load your session. Please try again."}` + "\n"))
				return
			}

			ctx := context.WithValue(r.Context(), storeKey, store)
			ctx = context.WithValue(ctx, sidKey, sid)
			ctx = context.WithValue(ctx, stateKey, store.State())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth redirects anonymous visitors to the login page with 303. It
// runs before the handler, so no data is fetched for them.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st, ok := StateFromContext(r.Context())
		if !ok || !st.Authenticated() {
			http.Redirect(w, r, LoginPath, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StoreFromContext returns the browser's store set by Sessions.
func StoreFromContext(ctx context.Context) (*session.Store, bool) {
	s, ok := ctx.Value(storeKey).(*session.Store)
	return s, ok && s != nil
}

// StateFromContext returns the State snapshot taken by Sessions for this
// request.
func StateFromContext(ctx context.Context) (session.State, bool) {
	st, ok := ctx.Value(stateKey).(session.State)
	return st, ok
}

// SessionIDFromContext returns the browser session id set by Sessions. It
// doubles as the client id of the submission guard.
func SessionIDFromContext(ctx context.Context) string {
	sid, _ := ctx.Value(sidKey).(string)
	return sid
}
