package service

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/baas/local"
	"github.com/sakif/hackhub/internal/metrics"
	"github.com/sakif/hackhub/internal/model"
	"github.com/sakif/hackhub/internal/repository"
	"github.com/sakif/hackhub/internal/repository/table"
	"github.com/sakif/hackhub/internal/session"
)

// oauthBackend is the local backend with the provider round trip replaced:
// code "good-code" signs in as signedIn.
type oauthBackend struct {
	*local.Backend
	signedIn *model.Session
}

func (b *oauthBackend) AuthorizeURL(p model.Provider, redirectTo, challenge string) (string, error) {
	return "https://provider.example/authorize?" + url.Values{
		"provider":       {string(p)},
		"redirect_to":    {redirectTo},
		"code_challenge": {challenge},
	}.Encode(), nil
}

func (b *oauthBackend) ExchangeCode(_ context.Context, code, verifier string) (*model.Session, error) {
	if code != "good-code" || verifier == "" {
		return nil, &baas.Error{Service: baas.ServiceAuth, Status: 400, Code: "bad_code", Message: "invalid flow state"}
	}
	return b.signedIn, nil
}

type authHarness struct {
	backend *local.Backend
	store   *table.Store
	users   repository.UserRepository
	svc     *AuthService
	session *session.Store
}

func newAuthHarness(t *testing.T, api baas.AuthAPI, backend *local.Backend, users repository.UserRepository) *authHarness {
	t.Helper()
	logger := discardLogger()
	tables := table.New(backend)
	if users == nil {
		users = tables.Users()
	}
	m := metrics.New()
	runner := NewRunner(NewSubmissionGuard(), m, logger)
	reconciler := NewReconciler(users, tables.Profiles(), logger)
	roles := NewRoleResolver(tables.Profiles(), m, logger)

	store := session.NewStore(session.NewAuth("sid-1", api, session.NewMemoryTokenStore(), logger), roles, logger)
	require.NoError(t, store.Initialize(context.Background()))
	t.Cleanup(store.Close)

	return &authHarness{
		backend: backend,
		store:   tables,
		users:   users,
		svc:     NewAuthService(reconciler, users, runner, "http://localhost:8080/", logger),
		session: store,
	}
}

func openLocal(t *testing.T) *local.Backend {
	t.Helper()
	b, err := local.Open(local.Config{
		DBPath:       ":memory:",
		JWTSecret:    "test-secret-at-least-16-chars!!",
		SiteURL:      "http://localhost:8080",
		PasswordCost: bcrypt.MinCost,
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func aliceSignUp() SignUpInput {
	return SignUpInput{Email: "alice@example.com", Password: "secret123", FullName: "Alice", Role: model.RoleCandidate}
}

func TestSignUp_CreatesRecordsWithoutSigningIn(t *testing.T) {
	b := openLocal(t)
	h := newAuthHarness(t, b, b, nil)
	ctx := context.Background()

	res, err := h.svc.SignUp(ctx, h.session, "client-1", aliceSignUp())
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, PathLogin, res.Redirect)
	assert.Empty(t, res.Warning)
	assert.False(t, h.session.State().Authenticated(), "sign-up does not sign the browser in")

	sess, err := b.SignInWithPassword(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	profile, err := h.store.Profiles().FindByID(ctx, sess.Identity.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, model.RoleCandidate, profile.Role)

	user, err := h.users.FindByID(ctx, sess.Identity.ID)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Alice", user.FullName)
}

func TestSignUp_Validation(t *testing.T) {
	b := openLocal(t)
	h := newAuthHarness(t, b, b, nil)

	tests := []struct {
		name   string
		mutate func(in *SignUpInput)
		field  string
	}{
		{"bad email", func(in *SignUpInput) { in.Email = "alice" }, "email"},
		{"short password", func(in *SignUpInput) { in.Password = "abc" }, "password"},
		{"missing name", func(in *SignUpInput) { in.FullName = "  " }, "full_name"},
		{"unknown role", func(in *SignUpInput) { in.Role = "admin" }, "user_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := aliceSignUp()
			tt.mutate(&in)
			_, err := h.svc.SignUp(context.Background(), h.session, "client-1", in)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.field, apperror.FieldOf(err))
		})
	}
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	b := openLocal(t)
	h := newAuthHarness(t, b, b, nil)
	ctx := context.Background()

	_, err := h.svc.SignUp(ctx, h.session, "client-1", aliceSignUp())
	require.NoError(t, err)
	_, err = h.svc.SignUp(ctx, h.session, "client-1", aliceSignUp())
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, "User already registered", err.Error())
}

func TestSignUp_ProfileSetupFailureIsAWarning(t *testing.T) {
	b := openLocal(t)
	users := newFakeUsers()
	users.ensureErr = errors.New("backend down")
	h := newAuthHarness(t, b, b, users)

	res, err := h.svc.SignUp(context.Background(), h.session, "client-1", aliceSignUp())
	require.NoError(t, err, "the identity exists, so the workflow is not failed")
	assert.Equal(t, PathLogin, res.Redirect)
	assert.Equal(t, "Account created but profile setup failed", res.Warning)
}

func TestSignIn(t *testing.T) {
	b := openLocal(t)
	h := newAuthHarness(t, b, b, nil)
	ctx := context.Background()
	_, err := h.svc.SignUp(ctx, h.session, "client-1", aliceSignUp())
	require.NoError(t, err)

	_, err = h.svc.SignIn(ctx, h.session, "client-1", "alice@example.com", "wrong-password")
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.False(t, h.session.State().Authenticated())

	res, err := h.svc.SignIn(ctx, h.session, "client-1", "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, PathDashboard, res.Redirect)

	st := h.session.State()
	require.True(t, st.Authenticated())
	assert.Equal(t, "alice@example.com", st.Identity.Email)
	assert.Equal(t, model.RoleResult{Status: model.RoleKnown, Role: model.RoleCandidate}, st.Role)

	res, err = h.svc.SignOut(ctx, h.session, "client-1")
	require.NoError(t, err)
	assert.Equal(t, PathHome, res.Redirect)
	assert.False(t, h.session.State().Authenticated())
}

func TestSignIn_MissingFields(t *testing.T) {
	b := openLocal(t)
	h := newAuthHarness(t, b, b, nil)

	_, err := h.svc.SignIn(context.Background(), h.session, "client-1", " ", "")
	require.ErrorIs(t, err, apperror.ErrValidation)
}

// oauthHarness creates an identity with no users row, standing in for a
// first-time provider sign-in.
func oauthHarness(t *testing.T) (*authHarness, *oauthBackend) {
	t.Helper()
	b := openLocal(t)
	res, err := b.SignUp(context.Background(), "octocat@github.com", "unused-password",
		model.IdentityMetadata{Name: "The Octocat"})
	require.NoError(t, err)
	api := &oauthBackend{Backend: b, signedIn: res.Session}
	return newAuthHarness(t, api, b, nil), api
}

func TestOAuth_FirstSignInCreatesCandidate(t *testing.T) {
	h, api := oauthHarness(t)
	ctx := context.Background()

	redirect, err := h.svc.BeginOAuth(ctx, h.session, "GitHub")
	require.NoError(t, err)
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/auth/callback", u.Query().Get("redirect_to"))
	assert.NotEmpty(t, u.Query().Get("code_challenge"))

	res, err := h.svc.CompleteOAuth(ctx, h.session, "client-1", "good-code", "")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, PathDashboard, res.Redirect)

	id := api.signedIn.Identity.ID
	user, err := h.users.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "The Octocat", user.FullName)

	st := h.session.State()
	require.True(t, st.Authenticated())
	assert.Equal(t, model.RoleResult{Status: model.RoleKnown, Role: model.RoleCandidate}, st.Role)
}

func TestOAuth_ReturningUserKeepsRecords(t *testing.T) {
	h, api := oauthHarness(t)
	ctx := context.Background()
	id := api.signedIn.Identity.ID

	// An earlier sign-up made this identity a recruiter.
	reconciler := NewReconciler(h.users, h.store.Profiles(), discardLogger())
	require.NoError(t, reconciler.EnsureUserRecord(ctx, id, "Octo Recruiter", model.RoleRecruiter))

	_, err := h.svc.BeginOAuth(ctx, h.session, "github")
	require.NoError(t, err)
	_, err = h.svc.CompleteOAuth(ctx, h.session, "client-1", "good-code", "")
	require.NoError(t, err)

	user, err := h.users.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Octo Recruiter", user.FullName)
	assert.Equal(t, model.RoleRecruiter, h.session.State().Role.Role)
}

func TestOAuth_Failures(t *testing.T) {
	h, _ := oauthHarness(t)
	ctx := context.Background()

	_, err := h.svc.BeginOAuth(ctx, h.session, "myspace")
	require.ErrorIs(t, err, apperror.ErrValidation)

	_, err = h.svc.CompleteOAuth(ctx, h.session, "client-1", "", "access_denied")
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, "access_denied", err.Error())

	// No verifier was stored for this browser.
	_, err = h.svc.CompleteOAuth(ctx, h.session, "client-1", "good-code", "")
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, "Authentication failed", err.Error())

	_, err = h.svc.BeginOAuth(ctx, h.session, "github")
	require.NoError(t, err)
	_, err = h.svc.CompleteOAuth(ctx, h.session, "client-1", "forged-code", "")
	require.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.False(t, h.session.State().Authenticated())
}
