// Package model defines the records exchanged with the backend and the
// session types the rest of the application passes around.
//
// Records mirror the backend's tables one struct per table. JSON tags use the
// backend's snake_case column names because these structs are decoded
// straight from (and encoded straight into) backend payloads.
package model

import (
	"strings"
	"time"
)

// Identity is the authenticated principal issued by the auth service.
// Its ID is immutable for the lifetime of a session and is reused as the
// primary key of the matching users and profiles rows.
type Identity struct {
	ID        string           `json:"id"`
	Email     string           `json:"email"`
	Metadata  IdentityMetadata `json:"user_metadata"`
	CreatedAt time.Time        `json:"created_at"`
}

// IdentityMetadata is the free-form metadata the auth service keeps next to
// an identity. Sign-up stores full_name and user_type; OAuth providers fill
// full_name, name and avatar_url with whatever they know.
type IdentityMetadata struct {
	FullName  string `json:"full_name,omitempty"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	UserType  Role   `json:"user_type,omitempty"`
}

// DisplayName picks the best available human name for an identity, in the
// order: provider full name, provider name, email local part, "User".
func (i *Identity) DisplayName() string {
	if n := strings.TrimSpace(i.Metadata.FullName); n != "" {
		return n
	}
	if n := strings.TrimSpace(i.Metadata.Name); n != "" {
		return n
	}
	if local, _, ok := strings.Cut(i.Email, "@"); ok && local != "" {
		return local
	}
	return "User"
}

// Session is a signed-in identity plus the tokens that prove it.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Identity     Identity  `json:"user"`
}

// Expired reports whether the access token is past (or within leeway of)
// its expiry at now.
func (s *Session) Expired(now time.Time, leeway time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(leeway).Before(s.ExpiresAt)
}

// Provider is an OAuth identity provider accepted by the auth service.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// ParseProvider validates a provider name taken from a URL.
func ParseProvider(s string) (Provider, bool) {
	switch p := Provider(strings.ToLower(s)); p {
	case ProviderGoogle, ProviderGitHub:
		return p, true
	}
	return "", false
}
