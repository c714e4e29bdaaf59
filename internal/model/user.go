package model

import "time"

// Role drives UI branching: candidates host and join events, recruiters post
// jobs. It is fixed when the profile row is created.
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleRecruiter Role = "recruiter"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleCandidate || r == RoleRecruiter
}

// User is the users row. Events, jobs, teams and registrations hold foreign
// keys to it, so it must exist before any of those rows are written.
type User struct {
	ID           string     `json:"id"`
	FullName     string     `json:"full_name"`
	AvatarURL    *string    `json:"avatar_url,omitempty"`
	Bio          *string    `json:"bio,omitempty"`
	Skills       []string   `json:"skills,omitempty"`
	GitHubURL    *string    `json:"github_url,omitempty"`
	LinkedInURL  *string    `json:"linkedin_url,omitempty"`
	PortfolioURL *string    `json:"portfolio_url,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Profile is the profiles row: one per identity, keyed by the identity id.
type Profile struct {
	ID        string     `json:"id"`
	FullName  string     `json:"full_name"`
	Role      Role       `json:"user_type"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// RoleStatus says how a RoleResult was reached.
type RoleStatus string

const (
	RoleUnknown      RoleStatus = ""
	RoleKnown        RoleStatus = "known"
	RolePending      RoleStatus = "pending"
	RoleLookupFailed RoleStatus = "lookup_failed"
)

// RoleResult is the outcome of resolving an identity's role.
//
//   - Known: a profile row exists and Role holds its value.
//   - Pending: no profile row yet; a just-registered user sits here briefly.
//   - LookupFailed: the backend could not be asked.
type RoleResult struct {
	Status RoleStatus `json:"status"`
	Role   Role       `json:"role,omitempty"`
}

// Effective applies the fallback policy: anything other than a known role is
// treated as candidate for UI branching. A zero RoleResult (signed out) has
// no effective role.
func (r RoleResult) Effective() Role {
	switch r.Status {
	case RoleKnown:
		return r.Role
	case RolePending, RoleLookupFailed:
		return RoleCandidate
	}
	return ""
}
