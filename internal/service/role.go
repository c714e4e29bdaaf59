package service

import (
	"context"
	"log/slog"

	"github.com/sakif/hackhub/internal/metrics"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
)

// RoleResolver reads an identity's role from its profile row. It never
// returns an error: a missing row is RolePending and a failed lookup is
// RoleLookupFailed, and RoleResult.Effective applies the fallback.
type RoleResolver struct {
	profiles repository.ProfileRepository
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewRoleResolver(profiles repository.ProfileRepository, m *metrics.Metrics, logger *slog.Logger) *RoleResolver {
	return &RoleResolver{profiles: profiles, metrics: m, logger: logger}
}

func (r *RoleResolver) Resolve(ctx context.Context, identityID string) model.RoleResult {
	res := r.resolve(ctx, identityID)
	r.metrics.RoleResolved(string(res.Status))
	return res
}

func (r *RoleResolver) resolve(ctx context.Context, identityID string) model.RoleResult {
	profile, err := r.profiles.FindByID(ctx, identityID)
	if err != nil {
		r.logger.Warn("role lookup failed",
			slog.String("identity", identityID),
			slog.String("error", err.Error()),
		)
		return model.RoleResult{Status: model.RoleLookupFailed}
	}
	if profile == nil {
		return model.RoleResult{Status: model.RolePending}
	}
	if !profile.Role.Valid() {
		r.logger.Warn("profile has unknown role",
			slog.String("identity", identityID),
			slog.String("role", string(profile.Role)),
		)
		return model.RoleResult{Status: model.RoleLookupFailed}
	}
	return model.RoleResult{Status: model.RoleKnown, Role: profile.Role}
}
