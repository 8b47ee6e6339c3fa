// Package httpserver builds the admin HTTP surface: the chi router, its
// ambient middleware, and the handlers that trigger jobs, inspect their
// status, and serve their artifacts.
package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/harvestpipe/engine/internal/auth"
	"github.com/harvestpipe/engine/pkg/artifact"
	"github.com/harvestpipe/engine/pkg/job"
	"github.com/harvestpipe/engine/pkg/tenant"
)

// TenantStore is the subset of tenant.Store the server needs.
type TenantStore interface {
	Get(ctx context.Context, id int64) (*tenant.Tenant, error)
	GetAuthTokenHash(ctx context.Context, tenantID int64) (string, error)
	SetSchedule(ctx context.Context, tenantID int64, sched tenant.Schedule) error
}

// JobStore is the subset of job.Store the server needs.
type JobStore interface {
	Get(ctx context.Context, queryID string) (*job.Job, error)
	List(ctx context.Context, tenantID int64, filter job.Filter, limit, offset int) ([]*job.Job, error)
	Count(ctx context.Context, tenantID int64, filter job.Filter) (int, error)
}

// Scheduler is the subset of scheduler.Scheduler the server needs.
type Scheduler interface {
	Register(t *tenant.Tenant, now time.Time)
	Pause(tenantID int64)
	Resume(tenantID int64, now time.Time)
	UpdateFrequency(tenantID int64, minutes int, now time.Time)
}

// Gateway triggers a new job for a tenant.
type Gateway interface {
	Trigger(ctx context.Context, runCtx context.Context, t *tenant.Tenant, platform string) (*job.Job, error)
}

// ServerConfig configures CORS and the admin secret.
type ServerConfig struct {
	CORSAllowedOrigins []string
	AdminSecret        string
}

// Server holds the HTTP server dependencies and mounts the §4.8 routes.
type Server struct {
	Router *chi.Mux

	tenants     TenantStore
	jobs        JobStore
	artifacts   *artifact.Store
	gateway     Gateway
	scheduler   Scheduler
	logger      *slog.Logger
	db          *pgxpool.Pool
	redis       *redis.Client
	runCtx      context.Context // detached context job goroutines run under
	adminSecret string
}

// NewServer builds the router and mounts every route. runCtx is the
// application's long-lived base context: triggered pipeline runs are
// spawned under it rather than under the triggering request's context, so
// they keep running after the HTTP response is written.
func NewServer(cfg ServerConfig, logger *slog.Logger, runCtx context.Context,
	db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry,
	tenants TenantStore, jobs JobStore, artifacts *artifact.Store,
	gw Gateway, sched Scheduler) *Server {

	s := &Server{
		tenants:     tenants,
		jobs:        jobs,
		artifacts:   artifacts,
		gateway:     gw,
		scheduler:   sched,
		logger:      logger,
		db:          db,
		redis:       rdb,
		runCtx:      runCtx,
		adminSecret: cfg.AdminSecret,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Metrics)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/tenants/{tenant_id}", func(tr chi.Router) {
			tr.Use(auth.RequireTenant(tenants, cfg.AdminSecret))

			tr.Post("/jobs", s.handleTriggerJob)
			tr.Get("/jobs", s.handleListJobs)
			tr.Get("/spreadsheets", s.handleSpreadsheetDescriptor)
			tr.Get("/spreadsheets/download", s.handleSpreadsheetDownload)

			tr.Get("/schedule", s.handleGetSchedule)
			tr.Put("/schedule", s.handleUpdateSchedule)
			tr.Post("/schedule/pause", s.handlePauseSchedule)
			tr.Post("/schedule/resume", s.handleResumeSchedule)
		})

		// These two don't carry tenant_id in their path — the handler
		// resolves the job's tenant first and authenticates against it.
		api.Get("/jobs/{query_id}", s.handleGetJob)
		api.Get("/jobs/{query_id}/zip", s.handleZipJob)
	})

	s.Router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("readiness check: database ping failed", "error", err)
		RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
		return
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.logger.Error("readiness check: redis ping failed", "error", err)
			RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
			return
		}
	}

	Respond(w, http.StatusOK, map[string]string{"status": "ready"})
}
