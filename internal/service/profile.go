package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
)

// ProfileService reads and edits the actor's own users row.
type ProfileService struct {
	users  repository.UserRepository
	runner *Runner
	logger *slog.Logger
}

func NewProfileService(users repository.UserRepository, runner *Runner, logger *slog.Logger) *ProfileService {
	return &ProfileService{users: users, runner: runner, logger: logger}
}

// ProfileView is the profile page. Stored is false when the users row does
// not exist yet and User was filled from the identity's metadata.
type ProfileView struct {
	User   model.User       `json:"user"`
	Email  string           `json:"email"`
	Role   model.RoleResult `json:"role"`
	Stored bool             `json:"stored"`
}

func (s *ProfileService) Get(ctx context.Context, actor Actor) (*ProfileView, error) {
	u, err := s.users.FindByID(ctx, actor.ID())
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}
	view := &ProfileView{Email: actor.Identity.Email, Role: actor.Role}
	if u != nil {
		view.User = *u
		view.Stored = true
		return view, nil
	}
	view.User = model.User{ID: actor.ID(), FullName: actor.Identity.DisplayName()}
	if a := actor.Identity.Metadata.AvatarURL; a != "" {
		view.User.AvatarURL = &a
	}
	return view, nil
}

// ProfileInput is the profile form. Skills is comma-separated. Empty
// optional fields leave the stored value as it is.
type ProfileInput struct {
	FullName     string
	AvatarURL    string
	Bio          string
	Skills       string
	GitHubURL    string
	LinkedInURL  string
	PortfolioURL string
}

func optionalURL(field, raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperror.ValidationFailed(field, "Enter a valid URL")
	}
	return &raw, nil
}

func optionalText(raw string) *string {
	if raw = strings.TrimSpace(raw); raw == "" {
		return nil
	}
	return &raw
}

// Update writes the actor's users row, creating it if needed.
func (s *ProfileService) Update(ctx context.Context, actor Actor, in ProfileInput) (*Result, error) {
	return s.runner.Run(ctx, actor.ClientID, "update_profile", func(ctx context.Context) (*Result, error) {
		u := &model.User{
			ID:        actor.ID(),
			FullName:  strings.TrimSpace(in.FullName),
			AvatarURL: optionalText(in.AvatarURL),
			Bio:       optionalText(in.Bio),
			Skills:    SplitList(in.Skills),
		}
		if u.FullName == "" {
			return nil, apperror.ValidationFailed("full_name", "Full name is required")
		}
		var err error
		if u.GitHubURL, err = optionalURL("github_url", in.GitHubURL); err != nil {
			return nil, err
		}
		if u.LinkedInURL, err = optionalURL("linkedin_url", in.LinkedInURL); err != nil {
			return nil, err
		}
		if u.PortfolioURL, err = optionalURL("portfolio_url", in.PortfolioURL); err != nil {
			return nil, err
		}

		saved, err := s.users.Save(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("saving profile: %w", err)
		}
		s.logger.Info("profile updated", slog.String("id", actor.ID()))
		return success("/profile", "Profile updated successfully", saved), nil
	})
}
