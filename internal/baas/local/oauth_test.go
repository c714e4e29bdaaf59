package local

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/sakif/hackhub/internal/auth"
	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
)

// fakeProvider stands in for GitHub: AuthURL points at a fake consent page
// and Exchange returns a fixed user.
type fakeProvider struct {
	user *auth.ProviderUser
	err  error
}

func (p *fakeProvider) Name() string { return "github" }

func (p *fakeProvider) AuthURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func (p *fakeProvider) Exchange(ctx context.Context, code string) (*auth.ProviderUser, error) {
	return p.user, p.err
}

// runFlow drives authorize → provider → callback and returns the final
// redirect location.
func runFlow(t *testing.T, b *Backend, challenge string) *url.URL {
	t.Helper()
	h := b.Handler()

	authURL, err := b.AuthorizeURL(model.ProviderGitHub, testSite+"/auth/callback", challenge)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "/local-auth/authorize", u.Path)

	// Handler is mounted under /local-auth in the server.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/authorize?"+u.RawQuery, nil))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	providerURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := providerURL.Query().Get("state")
	require.NotEmpty(t, state)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/callback/github?code=provider-code&state="+state, nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	return loc
}

func TestOAuthFlow_CreatesIdentityAndExchangesCode(t *testing.T) {
	b := newTestBackend(t)
	b.providers[model.ProviderGitHub] = &fakeProvider{user: &auth.ProviderUser{
		ProviderID: "583231", Email: "octocat@github.com", Name: "octocat",
	}}

	verifier := oauth2.GenerateVerifier()
	loc := runFlow(t, b, oauth2.S256ChallengeFromVerifier(verifier))
	assert.Equal(t, "/auth/callback", loc.Path)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	s, err := b.ExchangeCode(context.Background(), code, verifier)
	require.NoError(t, err)
	assert.Equal(t, "octocat@github.com", s.Identity.Email)
	assert.Equal(t, "octocat", s.Identity.Metadata.Name)
	assert.Equal(t, "octocat", s.Identity.DisplayName())

	_, err = b.ExchangeCode(context.Background(), code, verifier)
	assert.Equal(t, "flow_state_not_found", authCode(t, err), "codes are single-use")

	// Same provider account signs in again: same identity.
	loc = runFlow(t, b, oauth2.S256ChallengeFromVerifier(verifier))
	again, err := b.ExchangeCode(context.Background(), loc.Query().Get("code"), verifier)
	require.NoError(t, err)
	assert.Equal(t, s.Identity.ID, again.Identity.ID)
}

func TestOAuthFlow_WrongVerifier(t *testing.T) {
	b := newTestBackend(t)
	b.providers[model.ProviderGitHub] = &fakeProvider{user: &auth.ProviderUser{ProviderID: "1", Email: "x@example.com"}}

	loc := runFlow(t, b, oauth2.S256ChallengeFromVerifier(oauth2.GenerateVerifier()))

	_, err := b.ExchangeCode(context.Background(), loc.Query().Get("code"), oauth2.GenerateVerifier())
	assert.Equal(t, "bad_code_verifier", authCode(t, err))
}

func TestOAuthFlow_ProviderFailureRedirectsWithError(t *testing.T) {
	b := newTestBackend(t)
	b.providers[model.ProviderGitHub] = &fakeProvider{err: assert.AnError}

	loc := runFlow(t, b, "challenge")
	assert.Equal(t, "server_error", loc.Query().Get("error"))
	assert.Empty(t, loc.Query().Get("code"))
}

func TestOAuthFlow_LinksExistingEmail(t *testing.T) {
	b := newTestBackend(t)
	res, err := b.SignUp(context.Background(), "ada@example.com", "secret123", model.IdentityMetadata{FullName: "Ada"})
	require.NoError(t, err)

	b.providers[model.ProviderGitHub] = &fakeProvider{user: &auth.ProviderUser{ProviderID: "7", Email: "Ada@example.com"}}
	verifier := oauth2.GenerateVerifier()
	loc := runFlow(t, b, oauth2.S256ChallengeFromVerifier(verifier))

	s, err := b.ExchangeCode(context.Background(), loc.Query().Get("code"), verifier)
	require.NoError(t, err)
	assert.Equal(t, res.Identity.ID, s.Identity.ID)
}

func TestAuthorize_Rejections(t *testing.T) {
	b := newTestBackend(t)
	h := b.Handler()

	_, err := b.AuthorizeURL(model.ProviderGoogle, testSite, "c")
	assert.True(t, baas.IsAuth(err), "provider without credentials is not enabled")

	b.providers[model.ProviderGitHub] = &fakeProvider{}
	cases := map[string]string{
		"foreign redirect":  "/authorize?provider=github&code_challenge=c&redirect_to=" + url.QueryEscape("https://evil.example/cb"),
		"missing challenge": "/authorize?provider=github&redirect_to=" + url.QueryEscape(testSite+"/auth/callback"),
		"unknown provider":  "/authorize?provider=myspace&code_challenge=c&redirect_to=" + url.QueryEscape(testSite),
	}
	for name, target := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback/github?code=x&state=forged", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "callback without the state cookie")
}
