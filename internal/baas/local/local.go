// Package local is an embedded stand-in for the managed backend, built on
// SQLite. It implements the same baas.AuthAPI and baas.DataAPI contracts as
// the remote client so the application can run and be tested without a
// network dependency. It is for development and tests only.
//
// WHAT IT IS NOT:
// It is not a query engine. It supports exactly the filter subset in
// baas.Query, it reports constraint failures with the managed backend's
// error codes, and it does not enforce row-level security: the access token
// attached to a data call is accepted but not checked. Authorization rules
// that matter to the application are enforced by the services above.
package local

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/hackhub/internal/auth"
	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/model"
)

// Config configures a Backend.
type Config struct {
	// DBPath is a file path, or ":memory:" for a throwaway database.
	DBPath string
	// JWTSecret signs access tokens (at least 16 characters).
	JWTSecret string
	// SiteURL is the public origin of the server that mounts Handler. It is
	// used to build provider callback URLs and to validate redirect targets.
	SiteURL string

	GitHubClientID     string
	GitHubClientSecret string
	GoogleClientID     string
	GoogleClientSecret string

	// PasswordCost overrides the bcrypt cost. Zero means the default.
	PasswordCost int
	// RefreshTTL is how long a refresh token stays usable. Zero means 30 days.
	RefreshTTL time.Duration
}

// Backend is the SQLite-backed implementation of baas.Backend.
type Backend struct {
	conn      *sql.DB
	tables    map[string]*tableSchema
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	providers map[model.Provider]auth.Provider
	siteURL   string
	refreshTT time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// compile-time check
var _ baas.Backend = (*Backend)(nil)

// CallbackPath is where identity providers send the browser back to.
const CallbackPath = "/local-auth/callback/"

// Open creates (or opens) the database, applies migrations and loads the
// table schemas the data API relies on.
func Open(cfg Config, logger *slog.Logger) (*Backend, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("local: opening database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and ":memory:" gives
	// every connection its own empty database.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("local: pinging database: %w", err)
	}

	// Foreign keys are off by default in SQLite.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("local: %s: %w", pragma, err)
		}
	}

	if err := migrateUp(conn); err != nil {
		conn.Close()
		return nil, err
	}

	tables, err := loadSchemas(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	passwords := auth.NewPasswordService()
	if cfg.PasswordCost > 0 {
		passwords = auth.NewPasswordServiceWithCost(cfg.PasswordCost)
	}

	b := &Backend{
		conn:      conn,
		tables:    tables,
		tokens:    tokens,
		passwords: passwords,
		providers: make(map[model.Provider]auth.Provider),
		siteURL:   strings.TrimRight(cfg.SiteURL, "/"),
		refreshTT: cfg.RefreshTTL,
		logger:    logger,
		now:       time.Now,
	}
	if b.refreshTT == 0 {
		b.refreshTT = 30 * 24 * time.Hour
	}

	if cfg.GitHubClientID != "" {
		b.providers[model.ProviderGitHub] = auth.NewGitHubProvider(
			cfg.GitHubClientID, cfg.GitHubClientSecret, b.siteURL+CallbackPath+"github")
	}
	if cfg.GoogleClientID != "" {
		b.providers[model.ProviderGoogle] = auth.NewGoogleProvider(
			cfg.GoogleClientID, cfg.GoogleClientSecret, b.siteURL+CallbackPath+"google")
	}

	return b, nil
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.conn.Close()
}

// Handler serves the browser-facing half of the OAuth flow under
// /local-auth: the authorize redirect and the provider callbacks.
func (b *Backend) Handler() http.Handler {
	return b.routes()
}

// Mapping of SQLite extended result codes to the managed backend's codes.
var constraintCodes = map[int]string{
	sqlite3.SQLITE_CONSTRAINT_UNIQUE:     baas.CodeUniqueViolation,
	sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY: baas.CodeUniqueViolation,
	sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY: baas.CodeForeignKeyViolation,
	sqlite3.SQLITE_CONSTRAINT_NOTNULL:    "23502",
	sqlite3.SQLITE_CONSTRAINT_CHECK:      "23514",
}

// dataErr classifies a database error. Constraint failures become
// *baas.Error so callers can branch on them; anything else is wrapped.
func dataErr(op, table string, err error) error {
	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		code, ok := constraintCodes[sqlErr.Code()]
		if !ok && sqlErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			code, ok = constraintFromMessage(sqlErr.Error())
		}
		if ok {
			return &baas.Error{
				Service: baas.ServiceData,
				Status:  http.StatusConflict,
				Code:    code,
				Message: sqlErr.Error(),
			}
		}
	}
	return fmt.Errorf("local: %s %s: %w", op, table, err)
}

// constraintFromMessage covers connections without extended result codes.
func constraintFromMessage(msg string) (string, bool) {
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return baas.CodeUniqueViolation, true
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return baas.CodeForeignKeyViolation, true
	}
	return "", false
}
