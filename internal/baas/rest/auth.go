package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
)

// sessionResponse is the token endpoint payload. The sign-up endpoint
// returns either this shape (auto-confirmed projects) or a bare user object,
// so the user fields are also accepted at the top level.
type sessionResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int64           `json:"expires_in"`
	ExpiresAt    int64           `json:"expires_at"`
	User         *model.Identity `json:"user"`

	model.Identity
}

func (r *sessionResponse) session() (*model.Session, error) {
	if r.AccessToken == "" {
		return nil, fmt.Errorf("rest: token response has no access_token")
	}
	s := &model.Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.expiry(),
	}
	if r.User != nil {
		s.Identity = *r.User
	}
	return s, nil
}

// expiry prefers the absolute expires_at, then expires_in, then the token's
// own exp claim.
func (r *sessionResponse) expiry() time.Time {
	switch {
	case r.ExpiresAt > 0:
		return time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		return time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return tokenExpiry(r.AccessToken)
}

// tokenExpiry reads the exp claim without verifying the signature. The
// backend signed it; the BFF only needs to know when to refresh.
func tokenExpiry(token string) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// authError decodes the auth service's error bodies. Older deployments send
// {error, error_description}; newer ones {code, error_code, msg}.
func authError(status int, body []byte) error {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(body, &payload)

	e := &baas.Error{Service: baas.ServiceAuth, Status: status}
	e.Code = firstNonEmpty(payload.ErrorCode, payload.Error)
	e.Message = firstNonEmpty(payload.Msg, payload.ErrorDescription, payload.Message, http.StatusText(status))
	return e
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func (c *Client) token(ctx context.Context, grant string, body any) (*model.Session, error) {
	data, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {grant}},
		body:   body,
	}, authError)
	if err != nil {
		return nil, err
	}
	var resp sessionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("rest: decoding %s token response: %w", grant, err)
	}
	return resp.session()
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	return c.token(ctx, "password", map[string]string{"email": email, "password": password})
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (*model.Session, error) {
	return c.token(ctx, "pkce", map[string]string{"auth_code": code, "code_verifier": codeVerifier})
}

func (c *Client) SignUp(ctx context.Context, email, password string, meta model.IdentityMetadata) (*baas.SignUpResult, error) {
	data, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body: map[string]any{
			"email":    email,
			"password": password,
			"data":     meta,
		},
	}, authError)
	if err != nil {
		return nil, err
	}

	var resp sessionResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("rest: decoding signup response: %w", err)
	}

	result := &baas.SignUpResult{Identity: resp.Identity}
	if resp.AccessToken != "" {
		s, err := resp.session()
		if err != nil {
			return nil, err
		}
		result.Session = s
		result.Identity = s.Identity
	}
	if result.Identity.ID == "" {
		return nil, fmt.Errorf("rest: signup response has no user id")
	}
	return result, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		bearer: accessToken,
	}, authError)
	return err
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*model.Identity, error) {
	data, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		bearer: accessToken,
	}, authError)
	if err != nil {
		return nil, err
	}
	var id model.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("rest: decoding user: %w", err)
	}
	return &id, nil
}

// AuthorizeURL builds the authorize endpoint URL for the PKCE flow. The
// backend handles the provider round trip and redirects to redirectTo with
// ?code=.
func (c *Client) AuthorizeURL(provider model.Provider, redirectTo, codeChallenge string) (string, error) {
	if _, ok := model.ParseProvider(string(provider)); !ok {
		return "", fmt.Errorf("rest: unsupported provider %q", provider)
	}
	q := url.Values{
		"provider":              {string(provider)},
		"redirect_to":           {redirectTo},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"s256"},
	}
	return c.baseURL + "/auth/v1/authorize?" + q.Encode(), nil
}
