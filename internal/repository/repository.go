// Package repository declares typed access to the backend's tables.
//
// Services depend on these interfaces, never on the backend client, so their
// tests can pass in-memory fakes and the wire format stays in one place
// (package table).
//
// LOOKUP CONVENTION:
// Find* methods return (nil, nil) when the row does not exist. A missing
// row is an expected outcome for most lookups here (is the slug free? has the
// user registered?), so it is a value, not an error.
package repository

import (
	"context"

	"github.com/sakif/hackhub/internal/model"
)

type ListOptions struct {
	Limit int
}

type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	// Ensure inserts the row unless one with the same id exists. It never
	// modifies an existing row.
	Ensure(ctx context.Context, user *model.User) error
	// Save inserts or merges the row.
	Save(ctx context.Context, user *model.User) (*model.User, error)
}

type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (*model.Profile, error)
	// Ensure inserts the row unless one with the same id exists, so a role
	// set at creation is never overwritten.
	Ensure(ctx context.Context, profile *model.Profile) error
	ListByIDs(ctx context.Context, ids []string) ([]model.Profile, error)
}

type EventRepository interface {
	Create(ctx context.Context, event *model.Event) (*model.Event, error)
	FindBySlug(ctx context.Context, slug string) (*model.Event, error)
	FindByID(ctx context.Context, id string) (*model.Event, error)
	// List returns events ordered by start date, optionally by status.
	List(ctx context.Context, status model.EventStatus, opts ListOptions) ([]model.Event, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Event, error)
	SetStatus(ctx context.Context, id string, status model.EventStatus) (*model.Event, error)
}

type RegistrationRepository interface {
	Find(ctx context.Context, eventID, userID string) (*model.EventRegistration, error)
	Create(ctx context.Context, reg *model.EventRegistration) (*model.EventRegistration, error)
	Delete(ctx context.Context, eventID, userID string) error
	CountByEvent(ctx context.Context, eventID string) (int, error)
	ListByUser(ctx context.Context, userID string) ([]model.EventRegistration, error)
}

type TeamRepository interface {
	Create(ctx context.Context, team *model.Team) (*model.Team, error)
	FindByID(ctx context.Context, id string) (*model.Team, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Team, error)
	ListByIDs(ctx context.Context, ids []string) ([]model.Team, error)
}

type TeamMemberRepository interface {
	Create(ctx context.Context, member *model.TeamMember) error
	Find(ctx context.Context, teamID, userID string) (*model.TeamMember, error)
	ListByTeam(ctx context.Context, teamID string) ([]model.TeamMember, error)
	ListByUser(ctx context.Context, userID string) ([]model.TeamMember, error)
}

type JobRepository interface {
	Create(ctx context.Context, job *model.Job) (*model.Job, error)
	// ListOpen returns open jobs, newest first.
	ListOpen(ctx context.Context, opts ListOptions) ([]model.Job, error)
}
