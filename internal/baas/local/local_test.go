package local

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
)

const testSite = "http://localhost:8080"

// newTestBackend opens an in-memory backend. Each call gets its own database.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	b, err := Open(Config{
		DBPath:       ":memory:",
		JWTSecret:    "test-secret-at-least-16-chars!!",
		SiteURL:      testSite,
		PasswordCost: bcrypt.MinCost,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

// signUpUser creates an identity plus its users row, which every FK needs.
func signUpUser(t *testing.T, b *Backend, email, name string) *model.Session {
	t.Helper()
	ctx := context.Background()
	res, err := b.SignUp(ctx, email, "secret123", model.IdentityMetadata{FullName: name, UserType: model.RoleCandidate})
	require.NoError(t, err)
	require.NoError(t, b.Insert(ctx, baas.TableUsers, model.User{ID: res.Identity.ID, FullName: name}, nil))
	return res.Session
}

func newEvent(creator, slug string, start time.Time) model.Event {
	return model.Event{
		Slug:        slug,
		Title:       "Event " + slug,
		Description: "A weekend of building things",
		StartDate:   start,
		EndDate:     start.Add(48 * time.Hour),
		MaxTeamSize: 4,
		Status:      model.EventDraft,
		CreatorID:   creator,
	}
}

func TestOpen_RejectsShortSecret(t *testing.T) {
	_, err := Open(Config{DBPath: ":memory:", JWTSecret: "short"}, slog.Default())
	assert.Error(t, err)
}

func TestOpen_LoadsSchemas(t *testing.T) {
	b := newTestBackend(t)

	events := b.tables[baas.TableEvents]
	require.NotNil(t, events)
	assert.Equal(t, []string{"id"}, events.pk)
	assert.Equal(t, kindTime, events.byName["start_date"].kind)
	assert.Equal(t, kindInteger, events.byName["max_team_size"].kind)
	assert.Equal(t, kindJSON, events.byName["requirements"].kind)
	assert.True(t, events.byName["created_at"].nowDefault)

	members := b.tables[baas.TableTeamMembers]
	assert.ElementsMatch(t, []string{"team_id", "user_id"}, members.pk)
	assert.Equal(t, kindBool, b.tables[baas.TableTeams].byName["looking_for_members"].kind)

	_, hidden := b.tables["auth_users"]
	assert.False(t, hidden, "auth tables are not exposed")
}
