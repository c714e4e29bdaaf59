// Package baas is the boundary to the backend-as-a-service: an auth service
// and a table-oriented data service. Everything above this package talks to
// the backend only through AuthAPI and DataAPI, so the remote client
// (package rest) and the embedded stand-in (package local) are
// interchangeable.
package baas

import (
	"context"

	"github.com/sakif/hackhub/internal/model"
)

// Table names known to the backend.
const (
	TableEvents        = "events"
	TableJobs          = "jobs"
	TableTeams         = "teams"
	TableTeamMembers   = "team_members"
	TableRegistrations = "event_registrations"
	TableUsers         = "users"
	TableProfiles      = "profiles"
	TableApplications  = "applications"
	TableProjects      = "projects"
)

// SignUpResult is what the auth service returns for a new identity. Session
// is nil when the backend requires email confirmation before sign-in.
type SignUpResult struct {
	Identity model.Identity
	Session  *model.Session
}

// AuthAPI is the auth service. Implementations return *Error with
// Service == ServiceAuth for every failure reported by the service itself.
type AuthAPI interface {
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string, meta model.IdentityMetadata) (*SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*model.Identity, error)
	RefreshSession(ctx context.Context, refreshToken string) (*model.Session, error)

	// AuthorizeURL is where the browser goes to start an OAuth sign-in with
	// provider. The provider eventually sends the browser to redirectTo with
	// a one-time code, which ExchangeCode turns into a session.
	AuthorizeURL(provider model.Provider, redirectTo, codeChallenge string) (string, error)
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*model.Session, error)
}

// UpsertOptions controls conflict handling for DataAPI.Upsert.
type UpsertOptions struct {
	// OnConflict is the comma-separated column list that identifies a
	// duplicate. Empty means the primary key.
	OnConflict string
	// IgnoreDuplicates leaves an existing row untouched instead of merging.
	IgnoreDuplicates bool
}

// DataAPI is the table CRUD service.
//
// dest receives the affected rows decoded from JSON. For Select it is a
// pointer to a slice, or a pointer to a struct when the query is Single. For
// Insert, Upsert and Update it is a pointer to a struct (the first affected
// row) or a slice. A nil dest skips returning rows.
//
// The caller's access token is taken from ctx (see WithAccessToken).
type DataAPI interface {
	Select(ctx context.Context, table string, q *Query, dest any) error
	Insert(ctx context.Context, table string, row any, dest any) error
	Upsert(ctx context.Context, table string, row any, opts UpsertOptions, dest any) error
	Update(ctx context.Context, table string, patch any, q *Query, dest any) error
	Delete(ctx context.Context, table string, q *Query) error
}

// Backend bundles both services.
type Backend interface {
	AuthAPI
	DataAPI
}

type contextKey string

const accessTokenKey contextKey = "accessToken"

// WithAccessToken attaches the caller's access token to ctx. Data calls made
// with the returned context run as that identity.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessToken returns the token attached by WithAccessToken.
func AccessToken(ctx context.Context) (string, bool) {
	tok, ok := ctx.Value(accessTokenKey).(string)
	return tok, ok && tok != ""
}
