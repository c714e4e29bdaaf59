package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/service"
)

// AuthHandler serves sign-in, sign-up, sign-out and the OAuth round trip.
//
// HANDLER RESPONSIBILITIES:
//   - HandleLoginPage / HandleSignupPage → what the forms need (providers, roles)
//   - HandleLogin / HandleSignup / HandleLogout → run the workflows
//   - HandleOAuthStart → send the browser to the identity provider
//   - HandleCallback → finish the provider sign-in and redirect
//   - HandleSession → the browser's current auth state
//
// Every method acts on the caller's own session.Store, which the Sessions
// middleware put in the request context.
type AuthHandler struct {
	auth   *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

type authPage struct {
	Page          string       `json:"page"`
	Authenticated bool         `json:"authenticated"`
	Providers     []string     `json:"providers"`
	Roles         []model.Role `json:"roles,omitempty"`
}

var providers = []string{string(model.ProviderGoogle), string(model.ProviderGitHub)}

// HandleLoginPage describes the login form.
//
// HTTP: GET /auth/login
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, authPage{
		Page:          "login",
		Authenticated: snapshot(r).Authenticated(),
		Providers:     providers,
	})
}

// HandleSignupPage describes the sign-up form.
//
// HTTP: GET /auth/signup
func (h *AuthHandler) HandleSignupPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, authPage{
		Page:          "signup",
		Authenticated: snapshot(r).Authenticated(),
		Providers:     providers,
		Roles:         []model.Role{model.RoleCandidate, model.RoleRecruiter},
	})
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /auth/login
// FORM: email, password
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	store, sid := browser(r)
	res, err := h.auth.SignIn(r.Context(), store, sid, form.Get("email"), form.Get("password"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

// HandleSignup creates an account. The browser stays signed out and is sent
// to the login page.
//
// HTTP: POST /auth/signup
// FORM: email, password, full_name, user_type (candidate|recruiter)
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	store, sid := browser(r)
	res, err := h.auth.SignUp(r.Context(), store, sid, service.SignUpInput{
		Email:    form.Get("email"),
		Password: form.Get("password"),
		FullName: form.Get("full_name"),
		Role:     model.Role(form.Get("user_type")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

// HandleLogout signs the browser out.
//
// HTTP: POST /auth/logout
//
// WHY POST AND NOT GET?
// Logout changes state. A GET could be triggered by a prefetch or a
// cross-site image tag.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	store, sid := browser(r)
	res, err := h.auth.SignOut(r.Context(), store, sid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

// HandleOAuthStart redirects to the identity provider.
//
// HTTP: GET /auth/oauth/{provider}
//
// PKCE:
// The session keeps a one-time code verifier; the provider only sees its
// hash. The callback must come back to the same browser to redeem the code.
func (h *AuthHandler) HandleOAuthStart(w http.ResponseWriter, r *http.Request) {
	store, _ := browser(r)
	target, err := h.auth.BeginOAuth(r.Context(), store, chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleCallback completes a provider sign-in.
//
// HTTP: GET /auth/callback?code=xxx
//
//	GET /auth/callback?error=access_denied&error_description=...
//
// The browser arrives here by redirect, so the outcome is a redirect too:
// to the dashboard on success, back to the login page with the message on
// failure.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerErr := q.Get("error_description")
	if providerErr == "" {
		providerErr = q.Get("error")
	}

	store, sid := browser(r)
	res, err := h.auth.CompleteOAuth(r.Context(), store, sid, q.Get("code"), providerErr)
	if err != nil {
		h.logger.Info("OAuth callback rejected", slog.String("error", err.Error()))
		msg := "Authentication failed"
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			msg = appErr.Message
		}
		http.Redirect(w, r, service.PathLogin+"?"+url.Values{"error": {msg}}.Encode(), http.StatusSeeOther)
		return
	}

	target := res.Redirect
	if res.Warning != "" {
		target += "?" + url.Values{"warning": {res.Warning}}.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleSession returns the browser's auth state: identity, role result and
// the last auth event.
//
// HTTP: GET /auth/session
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshot(r))
}
