package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/xid"

	"github.com/sakif/hackhub/internal/auth"
	"github.com/sakif/hackhub/internal/model"
)

const stateCookie = "oauth_state"

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/authorize", b.handleAuthorize)
	r.Get("/callback/{provider}", b.handleCallback)
	return r
}

// allowedRedirect keeps the flow from bouncing codes to foreign origins.
func (b *Backend) allowedRedirect(target string) bool {
	if b.siteURL == "" {
		return false
	}
	return target == b.siteURL || strings.HasPrefix(target, b.siteURL+"/")
}

// handleAuthorize starts an OAuth flow.
//
// HTTP: GET /local-auth/authorize?provider=github&redirect_to=…&code_challenge=…
//
// The flow (provider, redirect target, PKCE challenge) is stored under a
// random state value, which also goes into a short-lived cookie. The
// callback only proceeds when the state in the URL matches the cookie.
func (b *Backend) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	provider, ok := model.ParseProvider(q.Get("provider"))
	p := b.providers[provider]
	if !ok || p == nil {
		http.Error(w, "Unsupported provider: Provider is not enabled", http.StatusBadRequest)
		return
	}
	redirectTo := q.Get("redirect_to")
	if !b.allowedRedirect(redirectTo) {
		http.Error(w, "redirect_to is not allowed", http.StatusBadRequest)
		return
	}
	challenge := q.Get("code_challenge")
	if challenge == "" {
		http.Error(w, "code_challenge is required", http.StatusBadRequest)
		return
	}

	state := xid.New().String()
	_, err := b.conn.ExecContext(r.Context(),
		`INSERT INTO auth_flow_states (state, provider, redirect_to, code_challenge, expires_at) VALUES (?, ?, ?, ?, ?)`,
		state, string(provider), redirectTo, challenge, formatTime(b.now().Add(flowTTL)),
	)
	if err != nil {
		b.logger.Error("storing oauth flow", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/local-auth",
		MaxAge:   int(flowTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, p.AuthURL(state), http.StatusTemporaryRedirect)
}

type flowState struct {
	provider   string
	redirectTo string
	challenge  string
}

// takeFlow loads and deletes the flow for state. Each state is single-use.
func (b *Backend) takeFlow(ctx context.Context, state string) (*flowState, error) {
	var f flowState
	err := b.conn.QueryRowContext(ctx,
		`DELETE FROM auth_flow_states WHERE state = ? AND expires_at > ?
		 RETURNING provider, redirect_to, code_challenge`,
		state, formatTime(b.now()),
	).Scan(&f.provider, &f.redirectTo, &f.challenge)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// handleCallback completes an OAuth flow.
//
// HTTP: GET /local-auth/callback/{provider}?code=…&state=…
//
// FLOW:
//  1. Check the state against the cookie and load the stored flow
//  2. Exchange the provider code for the provider's user
//  3. Find or create the identity
//  4. Issue a one-time code bound to the PKCE challenge
//  5. Redirect to redirect_to?code=…
func (b *Backend) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// --- Step 1: state ---
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || cookie.Value != q.Get("state") {
		b.logger.Warn("oauth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/local-auth", MaxAge: -1})

	flow, err := b.takeFlow(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			b.logger.Error("oauth callback: loading flow", slog.String("error", err.Error()))
		}
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	provider := b.providers[model.Provider(chi.URLParam(r, "provider"))]
	if provider == nil || provider.Name() != flow.provider {
		http.Error(w, "provider mismatch", http.StatusBadRequest)
		return
	}

	// The user denied access on the provider's page.
	if errParam := q.Get("error"); errParam != "" {
		b.logger.Info("oauth callback: provider returned error", slog.String("error", errParam))
		redirectWith(w, r, flow.redirectTo, url.Values{
			"error":             {errParam},
			"error_description": {q.Get("error_description")},
		})
		return
	}

	// --- Step 2: provider exchange ---
	pu, err := provider.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		b.logger.Error("oauth callback: exchange failed", slog.String("provider", flow.provider), slog.String("error", err.Error()))
		redirectWith(w, r, flow.redirectTo, url.Values{
			"error":             {"server_error"},
			"error_description": {"Error getting user profile from external provider"},
		})
		return
	}

	// --- Step 3: identity ---
	ident, err := b.oauthIdentity(r.Context(), flow.provider, pu)
	if err != nil {
		b.logger.Error("oauth callback: identity", slog.String("error", err.Error()))
		redirectWith(w, r, flow.redirectTo, url.Values{
			"error":             {"server_error"},
			"error_description": {"Database error saving new user"},
		})
		return
	}

	// --- Step 4: one-time code ---
	code := uuid.NewString()
	_, err = b.conn.ExecContext(r.Context(),
		`INSERT INTO auth_codes (code, user_id, code_challenge, expires_at, used) VALUES (?, ?, ?, ?, 0)`,
		code, ident.ID, flow.challenge, formatTime(b.now().Add(codeTTL)),
	)
	if err != nil {
		b.logger.Error("oauth callback: storing code", slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// --- Step 5 ---
	redirectWith(w, r, flow.redirectTo, url.Values{"code": {code}})
}

func redirectWith(w http.ResponseWriter, r *http.Request, target string, params url.Values) {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	http.Redirect(w, r, target+sep+params.Encode(), http.StatusFound)
}

// oauthIdentity returns the identity linked to the provider account, linking
// by email or creating a new identity when there is none.
func (b *Backend) oauthIdentity(ctx context.Context, provider string, pu *auth.ProviderUser) (*model.Identity, error) {
	row := b.conn.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM auth_users WHERE provider = ? AND provider_id = ?`, provider, pu.ProviderID)
	ident, err := scanIdentity(row)
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	email := normalizeEmail(pu.Email)
	if email == "" {
		email = fmt.Sprintf("%s+%s@users.noreply.hackhub.local", provider, pu.ProviderID)
	}

	row = b.conn.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM auth_users WHERE email = ?`, email)
	ident, err = scanIdentity(row)
	if err == nil {
		return ident, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	ident = &model.Identity{
		ID:    uuid.NewString(),
		Email: email,
		Metadata: model.IdentityMetadata{
			FullName:  pu.FullName,
			Name:      pu.Name,
			AvatarURL: pu.AvatarURL,
		},
		CreatedAt: b.now().UTC(),
	}
	metaJSON, err := json.Marshal(ident.Metadata)
	if err != nil {
		return nil, err
	}
	_, err = b.conn.ExecContext(ctx,
		`INSERT INTO auth_users (id, email, provider, provider_id, user_metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ident.ID, ident.Email, provider, pu.ProviderID, string(metaJSON), formatTime(ident.CreatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("local: creating %s identity: %w", provider, err)
	}

	b.logger.Info("identity created", "user_id", ident.ID, "provider", provider)
	return ident, nil
}
