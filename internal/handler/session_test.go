package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/baas/local"
	"github.com/sakif/hackhub/internal/middleware"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/service"
	"github.com/sakif/hackhub/internal/session"
)

type pendingRoles struct{}

func (pendingRoles) Resolve(context.Context, string) model.RoleResult {
	return model.RoleResult{Status: model.RolePending}
}

// signedInBrowser returns a manager with one browser, sid "sid-1", signed
// in as alice.
func signedInBrowser(t *testing.T) (*session.Manager, *session.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b, err := local.Open(local.Config{
		DBPath:       ":memory:",
		JWTSecret:    "test-secret-at-least-16-chars!!",
		SiteURL:      "http://localhost:8080",
		PasswordCost: bcrypt.MinCost,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	m := session.NewManager(b, session.NewMemoryTokenStore(), pendingRoles{}, time.Hour, logger)
	t.Cleanup(m.Close)

	ctx := context.Background()
	_, err = b.SignUp(ctx, "alice@example.com", "secret123", model.IdentityMetadata{FullName: "Alice"})
	require.NoError(t, err)
	store, err := m.Get(ctx, "sid-1")
	require.NoError(t, err)
	_, err = store.Auth().SignInWithPassword(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	return m, store
}

func browserRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "sid-1"})
	return req
}

func TestSettings_SignOutInAnotherTabMidRequest(t *testing.T) {
	m, store := signedInBrowser(t)
	pages := NewPageHandler(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	h := middleware.Sessions(m, false, time.Hour, slog.Default())(middleware.RequireAuth(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, store.Auth().SignOut(r.Context()))
			pages.HandleSettings(w, r)
		})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, browserRequest(http.MethodGet, "/settings"))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "alice@example.com", body["email"])
}

func TestActorAndToken_ComeFromOneSnapshot(t *testing.T) {
	m, store := signedInBrowser(t)
	want := store.State().Session.AccessToken

	var (
		a   *service.Actor
		tok string
	)
	h := middleware.Sessions(m, false, time.Hour, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, store.Auth().SignOut(r.Context()))
		a = actor(r)
		tok, _ = baas.AccessToken(dataContext(r).Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), browserRequest(http.MethodGet, "/dashboard"))

	require.NotNil(t, a)
	assert.Equal(t, "sid-1", a.ClientID)
	assert.Equal(t, "alice@example.com", a.Identity.Email)
	assert.Equal(t, want, tok)
}

func TestWriteError_RejectedTokenRefreshesSession(t *testing.T) {
	m, store := signedInBrowser(t)
	before := store.State().Session.RefreshToken
	rejected := &baas.Error{Service: baas.ServiceData, Status: http.StatusUnauthorized, Message: "JWT expired"}

	h := middleware.Sessions(m, false, time.Hour, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, rejected)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, browserRequest(http.MethodGet, "/events"))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "session_expired", body.Error)
	assert.Contains(t, body.Message, "renewed")

	st := store.State()
	require.True(t, st.Authenticated())
	assert.NotEqual(t, before, st.Session.RefreshToken)
	assert.Equal(t, session.EventTokenRefreshed, st.LastEvent)
}
