// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → typed reads/writes against the backend tables
//
// WORKFLOWS:
// Most user actions here are multi-step writes: an ordered sequence of
// dependent backend calls with no transaction around them (create the
// identity, then its users row, then its profile row). Every workflow runs
// through Runner.Run, which
//
//   - rejects a second concurrent submission of the same action from the
//     same browser (SubmissionGuard), and always releases it afterwards
//   - records the outcome and duration in metrics
//   - logs unexpected failures, so handlers can show a generic message
//
// A workflow returns a *Result on success (including partial success) and an
// apperror kind on rejection. Any other error is unexpected.
//
// DEPENDENCY INJECTION:
// Services take repository interfaces, never the backend client, so tests
// pass in-memory fakes (see fakes_test.go).
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/hackhub/internal/apperror"
	"github.com/sakif/hackhub/internal/metrics"
	"github.com/sakif/hackhub/internal/model"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
)

// Result is the outcome of a workflow the user should see: where to go next
// and what to tell them.
type Result struct {
	Status   string `json:"status"`
	Redirect string `json:"redirect,omitempty"`
	Message  string `json:"message,omitempty"`
	Warning  string `json:"warning,omitempty"`
	Data     any    `json:"data,omitempty"`
}

func success(redirect, message string, data any) *Result {
	return &Result{Status: StatusSuccess, Redirect: redirect, Message: message, Data: data}
}

func partial(redirect, warning string, data any) *Result {
	return &Result{Status: StatusPartial, Redirect: redirect, Warning: warning, Data: data}
}

// Actor is the signed-in user a workflow runs for. ClientID identifies the
// browser; two tabs of one browser share it.
type Actor struct {
	ClientID string
	Identity model.Identity
	Role     model.RoleResult
}

// ID is the identity id, which is also the users and profiles row id.
func (a Actor) ID() string { return a.Identity.ID }

// Runner wraps every workflow with the submission guard, metrics and
// failure logging.
type Runner struct {
	guard   *SubmissionGuard
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewRunner(guard *SubmissionGuard, m *metrics.Metrics, logger *slog.Logger) *Runner {
	return &Runner{guard: guard, metrics: m, logger: logger}
}

// Run executes fn as the workflow name for clientID.
func (r *Runner) Run(ctx context.Context, clientID, name string, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	release, err := r.guard.Begin(clientID, name)
	if err != nil {
		r.metrics.ObserveWorkflow(name, metrics.OutcomeRejected, 0)
		return nil, err
	}
	defer release()

	run := xid.New().String()
	start := time.Now()
	res, err := fn(ctx)
	elapsed := time.Since(start)

	switch {
	case err == nil && res != nil && res.Status == StatusPartial:
		r.metrics.ObserveWorkflow(name, metrics.OutcomePartial, elapsed)
		r.logger.Warn("workflow partially completed",
			slog.String("workflow", name),
			slog.String("run", run),
			slog.String("warning", res.Warning),
		)
	case err == nil:
		r.metrics.ObserveWorkflow(name, metrics.OutcomeSuccess, elapsed)
	case isExpected(err):
		r.metrics.ObserveWorkflow(name, metrics.OutcomeRejected, elapsed)
	default:
		r.metrics.ObserveWorkflow(name, metrics.OutcomeFailure, elapsed)
		r.logger.Error("workflow failed",
			slog.String("workflow", name),
			slog.String("run", run),
			slog.String("error", err.Error()),
		)
	}
	return res, err
}

// isExpected reports whether err is a classified rejection rather than an
// unexpected failure.
func isExpected(err error) bool {
	for _, kind := range []error{
		apperror.ErrValidation,
		apperror.ErrConflict,
		apperror.ErrUnauthorized,
		apperror.ErrForbidden,
		apperror.ErrNotFound,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
