// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the backend client,
// repositories, services, handlers and middleware, and decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - Which background jobs run, and how everything stops
//
// DEPENDENCY INJECTION FLOW:
//
//	config → backend (remote REST client or local SQLite)
//	       → table.Store (typed repositories over the backend)
//	       → services (workflows) → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place, rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/sakif/hackhub/internal/baas"
	"github.com/sakif/hackhub/internal/baas/local"
	"github.com/sakif/hackhub/internal/baas/rest"
	"github.com/sakif/hackhub/internal/config"
	"github.com/sakif/hackhub/internal/handler"
	"github.com/sakif/hackhub/internal/metrics"
	"github.com/sakif/hackhub/internal/middleware"
	"github.com/sakif/hackhub/internal/redis"
	"github.com/sakif/hackhub/internal/repository/table"
	"github.com/sakif/hackhub/internal/service"
	"github.com/sakif/hackhub/internal/session"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the local database (in local mode), the Redis client (when
// configured), the session stores and the background jobs. Close releases
// all of them, in reverse order of creation.
type Server struct {
	router  *chi.Mux
	config  *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	backend  baas.Backend
	local    *local.Backend // nil in remote mode
	redis    *goredis.Client
	sessions *session.Manager
	limiter  *middleware.RateLimiter
	cron     *cron.Cron
	teams    *service.TeamService

	closers []func() error
}

// New creates a Server from cfg. Nothing listens until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router:  chi.NewRouter(),
		config:  cfg,
		logger:  logger,
		metrics: metrics.New(),
	}

	if err := s.openBackend(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.openRedis(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	if err := s.setupJobs(); err != nil {
		s.Close()
		return nil, fmt.Errorf("scheduling jobs: %w", err)
	}
	return s, nil
}

func (s *Server) openBackend() error {
	switch s.config.Backend.Mode {
	case config.ModeLocal:
		// DEVELOPMENT AND TESTS ONLY:
		// The embedded backend enforces no row-level security and keeps
		// every account in one SQLite file. Production runs in remote mode.
		s.logger.Warn("BAAS_MODE=local: embedded backend for development and tests only, do not deploy",
			slog.String("db", s.config.Local.DBPath),
		)
		lc := s.config.Local
		if lc.DBPath != ":memory:" {
			// Like `mkdir -p`: creates parent directories as needed.
			if err := os.MkdirAll(filepath.Dir(lc.DBPath), 0o755); err != nil {
				return fmt.Errorf("creating database directory: %w", err)
			}
		}
		b, err := local.Open(local.Config{
			DBPath:             lc.DBPath,
			JWTSecret:          lc.JWTSecret,
			SiteURL:            s.config.Server.SiteURL,
			GitHubClientID:     lc.GitHubClientID,
			GitHubClientSecret: lc.GitHubClientSecret,
			GoogleClientID:     lc.GoogleClientID,
			GoogleClientSecret: lc.GoogleClientSecret,
		}, s.logger.With("component", "local-backend"))
		if err != nil {
			return fmt.Errorf("opening local backend: %w", err)
		}
		s.local = b
		s.backend = b
		s.closers = append(s.closers, b.Close)

	default:
		s.backend = rest.New(s.config.Backend.URL, s.config.Backend.AnonKey,
			rest.WithHTTPClient(&http.Client{Timeout: s.config.Backend.Timeout}),
			rest.WithLogger(s.logger.With("component", "baas")),
		)
	}
	return nil
}

func (s *Server) openRedis() error {
	rc := s.config.Redis
	if !rc.Enabled() {
		s.logger.Warn("REDIS_ADDR not set: sessions and pending memberships are kept in memory")
		return nil
	}
	client, err := redis.NewClient(context.Background(), redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err != nil {
		return err
	}
	s.redis = client
	s.closers = append(s.closers, client.Close)
	return nil
}

// setupRoutes builds the services and mounts every route.
//
// ROUTE STRUCTURE:
// GET         /healthz, /metrics         → health checks (no session)
// *           /local-auth/*              → local backend OAuth pages (local mode)
// GET         /, /features               → landing pages
// GET|POST    /auth/login, /auth/signup  → forms + workflows (POSTs rate limited)
// POST        /auth/logout
// GET         /auth/oauth/{provider}, /auth/callback, /auth/session
// GET         /events, /events/{slug}, /jobs          → public reads
// (signed in) /dashboard, /settings, /profile, /events/create,
//
//	/events/{slug}/{register,publish}, /jobs/create, /teams/*
//
// MIDDLEWARE ORDER MATTERS:
// RequestID → RealIP → Recoverer → Logger run on everything. Sessions runs
// on the application routes only, so health checks never create a session.
// RequireAuth runs before protected handlers, so visitors are redirected
// before any data is fetched.
func (s *Server) setupRoutes() error {
	cfg := s.config
	tables := table.New(s.backend)

	guard := service.NewSubmissionGuard()
	runner := service.NewRunner(guard, s.metrics, s.logger)
	reconciler := service.NewReconciler(tables.Users(), tables.Profiles(), s.logger)
	roles := service.NewRoleResolver(tables.Profiles(), s.metrics, s.logger)

	var tokens session.TokenStore = session.NewMemoryTokenStore()
	var outbox service.MembershipOutbox = service.NewMemoryOutbox()
	if s.redis != nil {
		tokens = session.NewRedisTokenStore(s.redis, cfg.Session.TTL)
		outbox = service.NewRedisOutbox(s.redis)
	}
	s.sessions = session.NewManager(s.backend, tokens, roles, cfg.Session.IdleTimeout, s.logger)

	authSvc := service.NewAuthService(reconciler, tables.Users(), runner, cfg.Server.SiteURL, s.logger)
	eventSvc := service.NewEventService(tables.Events(), tables.Registrations(), tables.Teams(),
		tables.TeamMembers(), tables.Profiles(), reconciler, runner, s.logger)
	s.teams = service.NewTeamService(tables.Teams(), tables.TeamMembers(), tables.Events(),
		tables.Registrations(), tables.Profiles(), outbox, runner, s.metrics, s.logger)
	jobSvc := service.NewJobService(tables.Jobs(), reconciler, runner, s.logger)
	profileSvc := service.NewProfileService(tables.Users(), runner, s.logger)

	authH := handler.NewAuthHandler(authSvc, s.logger)
	pageH := handler.NewPageHandler(eventSvc, s.logger)
	eventH := handler.NewEventHandler(eventSvc, s.logger)
	teamH := handler.NewTeamHandler(s.teams, s.logger)
	jobH := handler.NewJobHandler(jobSvc, s.logger)
	profileH := handler.NewProfileHandler(profileSvc, s.logger)

	// Auth posts are rate limited per IP; AUTH_RATE_LIMIT=0 turns it off.
	limited := func(h http.HandlerFunc) http.Handler { return h }
	if cfg.RateLimit.Auth > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit.Auth)
		limited = func(h http.HandlerFunc) http.Handler { return s.limiter.Middleware(h) }
	}

	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(s.logger, s.metrics))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	if s.local != nil {
		r.Mount("/local-auth", s.local.Handler())
	}

	secure := strings.HasPrefix(cfg.Server.SiteURL, "https://")
	r.Group(func(r chi.Router) {
		r.Use(middleware.Sessions(s.sessions, secure, cfg.Session.TTL, s.logger))

		r.Get("/", pageH.HandleHome)
		r.Get("/features", pageH.HandleFeatures)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/login", authH.HandleLoginPage)
			r.Method(http.MethodPost, "/login", limited(authH.HandleLogin))
			r.Get("/signup", authH.HandleSignupPage)
			r.Method(http.MethodPost, "/signup", limited(authH.HandleSignup))
			r.Post("/logout", authH.HandleLogout)
			r.Get("/oauth/{provider}", authH.HandleOAuthStart)
			r.Get("/callback", authH.HandleCallback)
			r.Get("/session", authH.HandleSession)
		})

		r.Get("/events", eventH.HandleList)
		r.Get("/events/{slug}", eventH.HandleDetails)
		r.Get("/jobs", jobH.HandleList)

		// === Protected Routes ===
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			r.Get("/dashboard", pageH.HandleDashboard)
			r.Get("/settings", pageH.HandleSettings)
			r.Get("/profile", profileH.HandleGet)
			r.Post("/profile", profileH.HandleUpdate)

			r.Post("/events/create", eventH.HandleCreate)
			r.Post("/events/{slug}/register", eventH.HandleRegister)
			r.Delete("/events/{slug}/register", eventH.HandleCancelRegistration)
			r.Post("/events/{slug}/publish", eventH.HandlePublish)

			r.Post("/jobs/create", jobH.HandleCreate)

			r.Get("/teams/create", teamH.HandleCreatePage)
			r.Post("/teams/create", teamH.HandleCreate)
			r.Get("/teams/{id}", teamH.HandleDetails)
		})
	})

	r.NotFound(handler.NotFound)
	return nil
}

// handleHealth reports liveness plus Redis reachability when Redis is used.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(ctx).Err(); err != nil {
			status, code = "redis unavailable", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, "{\"status\":%q,\"backend\":%q}\n", status, s.config.Backend.Mode)
}

// setupJobs schedules the background work:
//   - the membership sweep, on SWEEP_SCHEDULE
//   - idle session eviction, every minute, which also feeds the
//     active_sessions gauge
func (s *Server) setupJobs() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.config.Sweep.Schedule, s.sweepMemberships); err != nil {
		return fmt.Errorf("membership sweep %q: %w", s.config.Sweep.Schedule, err)
	}
	if _, err := s.cron.AddFunc("@every 1m", s.evictSessions); err != nil {
		return err
	}
	return nil
}

func (s *Server) sweepMemberships() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	report, err := s.teams.SweepMemberships(ctx)
	if err != nil {
		s.logger.Error("membership sweep failed", slog.String("error", err.Error()))
		return
	}
	if report != (service.SweepReport{}) {
		s.logger.Info("membership sweep",
			slog.Int("resolved", report.Resolved),
			slog.Int("retried", report.Retried),
			slog.Int("abandoned", report.Abandoned),
		)
	}
}

func (s *Server) evictSessions() {
	s.sessions.Sweep()
	s.metrics.SetActiveSessions(s.sessions.Len())
}

// Handler exposes the router, for tests and for embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves HTTP and runs the background jobs until SIGINT/SIGTERM.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the jobs, waiting for a running sweep
// 4. Close sessions, Redis and the database
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("url", s.config.Server.SiteURL),
			slog.String("backend", s.config.Backend.Mode),
			slog.Bool("redis", s.redis != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()
	s.cron.Start()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// Close stops the jobs and releases every resource. It is safe to call on
// a partially built Server.
func (s *Server) Close() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.sessions != nil {
		s.sessions.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("closing resource failed", slog.String("error", err.Error()))
		}
	}
	s.closers = nil
}
