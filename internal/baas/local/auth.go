package local

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/sakif/hackhub/internal/auth"
	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
)

// Auth errors use the managed backend's codes and messages so the layers
// above cannot tell the two backends apart.
func authErr(status int, code, message string) *baas.Error {
	return &baas.Error{Service: baas.ServiceAuth, Status: status, Code: code, Message: message}
}

func invalidCredentials() error {
	return authErr(http.StatusBadRequest, "invalid_credentials", "Invalid login credentials")
}

func badJWT(err error) error {
	return authErr(http.StatusUnauthorized, "bad_jwt", "invalid JWT: "+err.Error())
}

const identityColumns = `id, email, user_metadata, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner, extra ...any) (*model.Identity, error) {
	var (
		id      model.Identity
		meta    sql.NullString
		created string
	)
	if err := row.Scan(append([]any{&id.ID, &id.Email, &meta, &created}, extra...)...); err != nil {
		return nil, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &id.Metadata); err != nil {
			return nil, fmt.Errorf("local: decoding user_metadata of %s: %w", id.ID, err)
		}
	}
	if t, err := parseTime(created); err == nil {
		id.CreatedAt = t
	}
	return &id, nil
}

func (b *Backend) identityByID(ctx context.Context, id string) (*model.Identity, error) {
	row := b.conn.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM auth_users WHERE id = ?`, id)
	ident, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authErr(http.StatusNotFound, "user_not_found", "User from sub claim in JWT does not exist")
	}
	if err != nil {
		return nil, fmt.Errorf("local: loading identity %s: %w", id, err)
	}
	return ident, nil
}

// issueSession signs an access token and stores a fresh refresh token.
func (b *Backend) issueSession(ctx context.Context, ident *model.Identity) (*model.Session, error) {
	access, expires, err := b.tokens.Generate(ident.ID, ident.Email)
	if err != nil {
		return nil, err
	}

	refresh := uuid.NewString()
	_, err = b.conn.ExecContext(ctx,
		`INSERT INTO auth_refresh_tokens (token, user_id, expires_at, revoked) VALUES (?, ?, ?, 0)`,
		refresh, ident.ID, formatTime(b.now().Add(b.refreshTT)),
	)
	if err != nil {
		return nil, fmt.Errorf("local: storing refresh token: %w", err)
	}

	return &model.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
		Identity:     *ident,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp creates an email identity. The stand-in confirms addresses
// immediately, so a session is always returned.
func (b *Backend) SignUp(ctx context.Context, email, password string, meta model.IdentityMetadata) (*baas.SignUpResult, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, authErr(http.StatusBadRequest, "validation_failed", "Unable to validate email address: invalid format")
	}

	hash, err := b.passwords.Hash(password)
	switch {
	case errors.Is(err, auth.ErrPasswordTooShort):
		return nil, authErr(http.StatusUnprocessableEntity, "weak_password",
			fmt.Sprintf("Password should be at least %d characters.", auth.MinPasswordLength))
	case errors.Is(err, auth.ErrPasswordTooLong):
		return nil, authErr(http.StatusUnprocessableEntity, "weak_password", "Password cannot be longer than 72 characters")
	case err != nil:
		return nil, err
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("local: encoding user_metadata: %w", err)
	}

	ident := &model.Identity{
		ID:        uuid.NewString(),
		Email:     email,
		Metadata:  meta,
		CreatedAt: b.now().UTC(),
	}
	_, err = b.conn.ExecContext(ctx,
		`INSERT INTO auth_users (id, email, password_hash, provider, user_metadata, created_at)
		 VALUES (?, ?, ?, 'email', ?, ?)`,
		ident.ID, ident.Email, hash, string(metaJSON), formatTime(ident.CreatedAt),
	)
	if err != nil {
		if baas.IsUniqueViolation(dataErr("inserting into", "auth_users", err)) {
			return nil, authErr(http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		}
		return nil, fmt.Errorf("local: creating identity: %w", err)
	}

	b.logger.Info("identity created", "user_id", ident.ID, "provider", "email")

	s, err := b.issueSession(ctx, ident)
	if err != nil {
		return nil, err
	}
	return &baas.SignUpResult{Identity: *ident, Session: s}, nil
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	var hash sql.NullString
	row := b.conn.QueryRowContext(ctx,
		`SELECT `+identityColumns+`, password_hash FROM auth_users WHERE email = ?`, normalizeEmail(email))
	ident, err := scanIdentity(row, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invalidCredentials()
	}
	if err != nil {
		return nil, fmt.Errorf("local: loading identity by email: %w", err)
	}

	// OAuth-only identities have no password.
	if !hash.Valid {
		return nil, invalidCredentials()
	}
	if err := b.passwords.Verify(hash.String, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return nil, invalidCredentials()
		}
		return nil, err
	}

	return b.issueSession(ctx, ident)
}

// SignOut revokes every refresh token of the identity behind accessToken.
func (b *Backend) SignOut(ctx context.Context, accessToken string) error {
	claims, err := b.tokens.Validate(accessToken)
	if err != nil {
		return badJWT(err)
	}
	_, err = b.conn.ExecContext(ctx,
		`UPDATE auth_refresh_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`, claims.Subject)
	if err != nil {
		return fmt.Errorf("local: revoking refresh tokens: %w", err)
	}
	return nil
}

func (b *Backend) GetUser(ctx context.Context, accessToken string) (*model.Identity, error) {
	claims, err := b.tokens.Validate(accessToken)
	if err != nil {
		return nil, badJWT(err)
	}
	return b.identityByID(ctx, claims.Subject)
}

// RefreshSession rotates a refresh token: the presented token is revoked in
// the same statement that checks it, so it can be used exactly once.
func (b *Backend) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	var userID string
	err := b.conn.QueryRowContext(ctx,
		`UPDATE auth_refresh_tokens SET revoked = 1
		 WHERE token = ? AND revoked = 0 AND expires_at > ?
		 RETURNING user_id`,
		refreshToken, formatTime(b.now()),
	).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authErr(http.StatusBadRequest, "refresh_token_not_found", "Invalid Refresh Token: Refresh Token Not Found")
	}
	if err != nil {
		return nil, fmt.Errorf("local: rotating refresh token: %w", err)
	}

	ident, err := b.identityByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return b.issueSession(ctx, ident)
}

// AuthorizeURL points the browser at this backend's own authorize endpoint,
// which stores the flow and forwards to the provider.
func (b *Backend) AuthorizeURL(provider model.Provider, redirectTo, codeChallenge string) (string, error) {
	if _, ok := b.providers[provider]; !ok {
		return "", authErr(http.StatusBadRequest, "validation_failed", "Unsupported provider: Provider is not enabled")
	}
	q := url.Values{
		"provider":              {string(provider)},
		"redirect_to":           {redirectTo},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"s256"},
	}
	return b.siteURL + "/local-auth/authorize?" + q.Encode(), nil
}

// ExchangeCode redeems a one-time code issued by the provider callback. The
// verifier must hash to the challenge recorded when the flow started.
func (b *Backend) ExchangeCode(ctx context.Context, code, codeVerifier string) (*model.Session, error) {
	var userID, challenge string
	err := b.conn.QueryRowContext(ctx,
		`UPDATE auth_codes SET used = 1
		 WHERE code = ? AND used = 0 AND expires_at > ?
		 RETURNING user_id, code_challenge`,
		code, formatTime(b.now()),
	).Scan(&userID, &challenge)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, authErr(http.StatusNotFound, "flow_state_not_found", "invalid flow state, no valid flow state found")
	}
	if err != nil {
		return nil, fmt.Errorf("local: redeeming auth code: %w", err)
	}

	if oauth2.S256ChallengeFromVerifier(codeVerifier) != challenge {
		return nil, authErr(http.StatusBadRequest, "bad_code_verifier", "code challenge does not match previously saved code verifier")
	}

	ident, err := b.identityByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return b.issueSession(ctx, ident)
}

// flowTTL bounds how long a user may take on the provider's consent page,
// and codeTTL how long the browser may take to come back with the code.
const (
	flowTTL = 10 * time.Minute
	codeTTL = 5 * time.Minute
)
