package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/auth"
	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
	"github.com/sakif/hackhub/internal/session"
)

// Paths the auth workflows send the browser to.
const (
	PathHome         = "/"
	PathLogin        = "/auth/login"
	PathDashboard    = "/dashboard"
	PathAuthCallback = "/auth/callback"
)

// AuthService runs the sign-up, sign-in, sign-out and OAuth workflows.
// Every method works on the caller's own session.Store, so the auth state
// change it causes lands in that browser only.
type AuthService struct {
	reconciler *Reconciler
	users      repository.UserRepository
	runner     *Runner
	siteURL    string
	logger     *slog.Logger
}

func NewAuthService(
	reconciler *Reconciler,
	users repository.UserRepository,
	runner *Runner,
	siteURL string,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		reconciler: reconciler,
		users:      users,
		runner:     runner,
		siteURL:    strings.TrimRight(siteURL, "/"),
		logger:     logger,
	}
}

type SignUpInput struct {
	Email    string
	Password string
	FullName string
	Role     model.Role
}

func (in *SignUpInput) normalize() error {
	in.Email = strings.TrimSpace(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)

	if _, err := mail.ParseAddress(in.Email); err != nil || !strings.Contains(in.Email, "@") {
		return apperror.ValidationFailed("email", "Enter a valid email address")
	}
	if len(in.Password) < auth.MinPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("Password must be at least %d characters", auth.MinPasswordLength))
	}
	if in.FullName == "" {
		return apperror.ValidationFailed("full_name", "Full name is required")
	}
	if in.Role == "" {
		in.Role = model.RoleCandidate
	}
	if !in.Role.Valid() {
		return apperror.ValidationFailed("user_type", "Choose candidate or recruiter")
	}
	return nil
}

// authFailure turns an auth service rejection into a user-facing
// notification. Anything else is left as an unexpected error.
func authFailure(err error, fallback string) error {
	var be *baas.Error
	if errors.As(err, &be) && baas.IsAuth(err) {
		msg := be.Message
		if msg == "" {
			msg = fallback
		}
		return apperror.Unauthorized(msg, err)
	}
	return err
}

// SignUp creates the identity and then its users and profiles rows. A
// failure in the second part does not fail the workflow: the account exists
// and the rows are written again on the next OAuth sign-in or event
// creation. The browser is not signed in.
func (s *AuthService) SignUp(ctx context.Context, store *session.Store, clientID string, in SignUpInput) (*Result, error) {
	return s.runner.Run(ctx, clientID, "sign_up", func(ctx context.Context) (*Result, error) {
		if err := in.normalize(); err != nil {
			return nil, err
		}

		res, err := store.Auth().SignUp(ctx, in.Email, in.Password, model.IdentityMetadata{
			FullName: in.FullName,
			UserType: in.Role,
		})
		if err != nil {
			return nil, authFailure(err, "Error signing up")
		}

		// Write the rows as the new identity when the backend handed us a
		// session; otherwise fall back to the anonymous key.
		if res.Session != nil {
			ctx = baas.WithAccessToken(ctx, res.Session.AccessToken)
		}
		result := success(PathLogin, "Signed up successfully! Try signing in now.", nil)
		if err := s.reconciler.EnsureUserRecord(ctx, res.Identity.ID, in.FullName, in.Role); err != nil {
			s.logger.Error("profile setup after sign-up failed",
				slog.String("identity", res.Identity.ID),
				slog.String("error", err.Error()),
			)
			result.Warning = "Account created but profile setup failed"
		}

		s.logger.Info("identity signed up",
			slog.String("identity", res.Identity.ID),
			slog.String("role", string(in.Role)),
		)
		return result, nil
	})
}

// SignIn signs the browser in with email and password.
func (s *AuthService) SignIn(ctx context.Context, store *session.Store, clientID, email, password string) (*Result, error) {
	return s.runner.Run(ctx, clientID, "sign_in", func(ctx context.Context) (*Result, error) {
		email = strings.TrimSpace(email)
		if email == "" || password == "" {
			return nil, apperror.ValidationFailed("email", "Email and password are required")
		}
		if _, err := store.Auth().SignInWithPassword(ctx, email, password); err != nil {
			return nil, authFailure(err, "Error signing in")
		}
		st := store.State()
		return success(PathDashboard, "Signed in successfully", st), nil
	})
}

// SignOut always leaves the browser signed out.
func (s *AuthService) SignOut(ctx context.Context, store *session.Store, clientID string) (*Result, error) {
	return s.runner.Run(ctx, clientID, "sign_out", func(ctx context.Context) (*Result, error) {
		if err := store.Auth().SignOut(ctx); err != nil {
			return nil, fmt.Errorf("signing out: %w", err)
		}
		return success(PathHome, "Signed out successfully", nil), nil
	})
}

// BeginOAuth returns the provider URL the browser should be sent to.
func (s *AuthService) BeginOAuth(ctx context.Context, store *session.Store, providerName string) (string, error) {
	provider, ok := model.ParseProvider(providerName)
	if !ok {
		return "", apperror.ValidationFailed("provider", "Unsupported sign-in provider")
	}
	u, err := store.Auth().SignInWithOAuth(ctx, provider, s.siteURL+PathAuthCallback)
	if err != nil {
		return "", apperror.Unauthorized(fmt.Sprintf("Error signing in with %s", providerLabel(provider)), err)
	}
	return u, nil
}

func providerLabel(p model.Provider) string {
	if p == model.ProviderGitHub {
		return "GitHub"
	}
	return "Google"
}

// CompleteOAuth finishes an OAuth sign-in: it exchanges the code for a
// session and, for a first sign-in, creates the users and profiles rows
// with the candidate role. providerError is the error the provider sent
// back instead of a code, if any.
func (s *AuthService) CompleteOAuth(ctx context.Context, store *session.Store, clientID, code, providerError string) (*Result, error) {
	return s.runner.Run(ctx, clientID, "oauth_callback", func(ctx context.Context) (*Result, error) {
		if providerError != "" {
			return nil, apperror.Unauthorized(providerError, nil)
		}
		if code == "" {
			return nil, apperror.Unauthorized("Authentication failed", nil)
		}

		sess, err := store.Auth().ExchangeCodeForSession(ctx, code)
		if err != nil {
			return nil, apperror.Unauthorized("Authentication failed", err)
		}
		id := sess.Identity
		ctx = baas.WithAccessToken(ctx, sess.AccessToken)

		existing, err := s.users.FindByID(ctx, id.ID)
		if err != nil {
			// The conditional inserts below are safe either way.
			s.logger.Warn("user lookup after OAuth failed",
				slog.String("identity", id.ID),
				slog.String("error", err.Error()),
			)
		}
		if existing != nil {
			return success(PathDashboard, "Signed in successfully", nil), nil
		}

		name := id.DisplayName()
		if err := s.reconciler.EnsureUserRecord(ctx, id.ID, name, model.RoleCandidate); err != nil {
			return partial(PathDashboard, "Signed in, but profile setup failed", nil), nil
		}
		store.RefreshRole(ctx)

		s.logger.Info("first OAuth sign-in",
			slog.String("identity", id.ID),
			slog.String("name", name),
		)
		return success(PathDashboard, "Signed in successfully", nil), nil
	})
}
