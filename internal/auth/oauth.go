package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
	"golang.org/x/oauth2/github"
)

// ProviderUser is what an identity provider tells us about the person who
// just authorized. Name and FullName are both kept because providers differ
// in which one they fill.
type ProviderUser struct {
	ProviderID string
	Email      string
	Name       string
	FullName   string
	AvatarURL  string
}

// Provider runs the OAuth 2.0 authorization code flow against one identity
// provider.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. We redirect the browser to the provider's authorization endpoint.
//  2. The user approves on the provider's site.
//  3. The provider redirects back to our callback with a short-lived code.
//  4. We exchange the code for a provider access token (server-to-server).
//  5. We call the provider's user API with that token.
type Provider interface {
	Name() string
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*ProviderUser, error)
}

// oauthProvider is the shared implementation: an oauth2.Config plus a
// provider-specific way of fetching the user.
type oauthProvider struct {
	name      string
	config    *oauth2.Config
	fetchUser func(ctx context.Context, client *http.Client) (*ProviderUser, error)
}

func (p *oauthProvider) Name() string { return p.name }

// AuthURL returns the provider authorization URL. state is echoed back on
// the callback and must match what we stored, which defeats CSRF.
func (p *oauthProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *oauthProvider) Exchange(ctx context.Context, code string) (*ProviderUser, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging %s OAuth code: %w", p.name, err)
	}

	// oauth2.Config.Client adds "Authorization: Bearer <token>" to every call.
	u, err := p.fetchUser(ctx, p.config.Client(ctx, tok))
	if err != nil {
		return nil, err
	}
	if u.ProviderID == "" {
		return nil, fmt.Errorf("auth: %s returned a user without an id", p.name)
	}
	return u, nil
}

// Provider API endpoints. Variables so tests can point them at httptest.
var (
	githubAPIBase     = "https://api.github.com"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// NewGitHubProvider configures GitHub sign-in. Scopes:
//   - "read:user"  public profile (id, login, name, avatar)
//   - "user:email" email addresses, needed when the profile email is hidden
func NewGitHubProvider(clientID, clientSecret, callbackURL string) Provider {
	return &oauthProvider{
		name: "github",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		fetchUser: fetchGitHubUser,
	}
}

// NewGoogleProvider configures Google sign-in through its OpenID Connect
// userinfo endpoint.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) Provider {
	return &oauthProvider{
		name: "google",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		fetchUser: fetchGoogleUser,
	}
}

func getJSON(client *http.Client, url string, dest any) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("auth: calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: %s returned status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("auth: decoding %s response: %w", url, err)
	}
	return nil
}

func fetchGitHubUser(ctx context.Context, client *http.Client) (*ProviderUser, error) {
	var gh struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(client, githubAPIBase+"/user", &gh); err != nil {
		return nil, err
	}
	if gh.ID == 0 {
		return nil, fmt.Errorf("auth: GitHub returned an invalid user (ID = 0)")
	}

	u := &ProviderUser{
		ProviderID: strconv.FormatInt(gh.ID, 10),
		Email:      gh.Email,
		Name:       gh.Login,
		FullName:   gh.Name,
		AvatarURL:  gh.AvatarURL,
	}

	// Hidden profile email: ask for the primary verified address.
	if u.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(client, githubAPIBase+"/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				u.Email = e.Email
				break
			}
		}
	}
	return u, nil
}

func fetchGoogleUser(ctx context.Context, client *http.Client) (*ProviderUser, error) {
	var g struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := getJSON(client, googleUserInfoURL, &g); err != nil {
		return nil, err
	}
	return &ProviderUser{
		ProviderID: g.Sub,
		Email:      g.Email,
		FullName:   g.Name,
		AvatarURL:  g.Picture,
	}, nil
}
