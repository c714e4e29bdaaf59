package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
)

// Reconciliation steps, in order.
const (
	StepUser    = "users"
	StepProfile = "profiles"
)

// ReconcileError names the step of EnsureUserRecord that failed. Steps
// before it succeeded and are not undone.
type ReconcileError struct {
	Step string
	Err  error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("ensuring %s row: %v", e.Step, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

// Reconciler makes sure an identity has its users and profiles rows. Both
// writes are conditional inserts, so calling it again is a no-op and never
// changes a role that was already set.
type Reconciler struct {
	users    repository.UserRepository
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

func NewReconciler(users repository.UserRepository, profiles repository.ProfileRepository, logger *slog.Logger) *Reconciler {
	return &Reconciler{users: users, profiles: profiles, logger: logger}
}

// EnsureUserRecord returns nil once both rows exist, or a *ReconcileError.
func (r *Reconciler) EnsureUserRecord(ctx context.Context, id, fullName string, role model.Role) error {
	if !role.Valid() {
		role = model.RoleCandidate
	}

	if err := r.ensureUser(ctx, id, fullName); err != nil {
		return err
	}

	err := r.profiles.Ensure(ctx, &model.Profile{ID: id, FullName: fullName, Role: role})
	if err != nil && !baas.IsUniqueViolation(err) {
		return &ReconcileError{Step: StepProfile, Err: err}
	}

	r.logger.Debug("user record ensured", slog.String("identity", id))
	return nil
}

// EnsureActorRecord backfills the rows a signed-in actor's writes refer to.
// The stored role is the known one, or else the user type picked at
// sign-up. With neither, only the users row is written: the candidate
// fallback of an unresolved role is for display and is never stored.
func (r *Reconciler) EnsureActorRecord(ctx context.Context, a Actor) error {
	name := a.Identity.DisplayName()
	role, ok := storedRole(a)
	if !ok {
		if err := r.ensureUser(ctx, a.ID(), name); err != nil {
			return err
		}
		r.logger.Debug("user row ensured without profile", slog.String("identity", a.ID()))
		return nil
	}
	return r.EnsureUserRecord(ctx, a.ID(), name, role)
}

func storedRole(a Actor) (model.Role, bool) {
	if a.Role.Status == model.RoleKnown && a.Role.Role.Valid() {
		return a.Role.Role, true
	}
	if a.Identity.Metadata.UserType.Valid() {
		return a.Identity.Metadata.UserType, true
	}
	return "", false
}

func (r *Reconciler) ensureUser(ctx context.Context, id, fullName string) error {
	err := r.users.Ensure(ctx, &model.User{ID: id, FullName: fullName})
	if err != nil && !baas.IsUniqueViolation(err) {
		return &ReconcileError{Step: StepUser, Err: err}
	}
	return nil
}
