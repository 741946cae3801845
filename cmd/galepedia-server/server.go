package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/galepedia/galepedia/internal/config"
	"github.com/galepedia/galepedia/internal/domain/compounding"
	"github.com/galepedia/galepedia/internal/domain/patient"
	"github.com/galepedia/galepedia/internal/domain/planning"
	"github.com/galepedia/galepedia/internal/domain/production"
	"github.com/galepedia/galepedia/internal/jobs"
	"github.com/galepedia/galepedia/internal/platform/auth"
	"github.com/galepedia/galepedia/internal/platform/db"
	"github.com/galepedia/galepedia/internal/platform/metrics"
	"github.com/galepedia/galepedia/internal/platform/middleware"
)

// limiterCleanupEvery is how often idle rate limiter buckets are dropped.
const limiterCleanupEvery = 10 * time.Minute

func newLogger(env, level string) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if env == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return logger.Level(lvl)
}

// stores are the persistence backends selected by the configuration.
type stores struct {
	pool         *pgxpool.Pool
	appointments planning.Repository
	patients     patient.Repository
	tx           db.TxRunner
	closers      []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (s *stores) pingers() map[string]db.Pinger {
	return map[string]db.Pinger{
		"appointments": s.appointments,
		"patients":     s.patients,
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	s := &stores{tx: db.NoopTxRunner{}}

	if cfg.NeedsDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns, cfg.Timezone)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		s.closers = append(s.closers, pool.Close)
		logger.Info().Msg("connected to database")
	}

	switch cfg.AppointmentStore {
	case config.StorePostgres:
		s.appointments = planning.NewRepo(s.pool)
	case config.StoreSQLite:
		repo, err := planning.NewSQLiteRepo(cfg.SQLitePath)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.appointments = repo
		s.closers = append(s.closers, func() { _ = repo.Close() })
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened sqlite appointment store")
	default:
		s.appointments = planning.NewMemoryRepo()
	}

	switch cfg.PatientStore {
	case config.StorePostgres:
		s.patients = patient.NewRepo(s.pool)
		s.tx = db.NewTxRunner(s.pool)
	default:
		mem := patient.NewMemoryRepo()
		s.patients = mem
		s.tx = mem
	}
	return s, nil
}

// server is the assembled HTTP application with its background jobs.
type server struct {
	echo     *echo.Echo
	jobs     *jobs.Scheduler
	stores   *stores
	planning *planning.Service
}

func (s *server) Close() {
	s.jobs.Stop()
	s.stores.Close()
}

func newServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*server, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Services
	formulary := compounding.DefaultFormulary()
	book := planning.NewBook(planning.NewCalendar(loc), nil, planning.Options{
		MaxCapacity:      cfg.PlanningMaxCapacity,
		SearchAttempts:   cfg.PlanningSearchAttempts,
		SafetyBufferDays: cfg.PlanningSafetyBufferDays,
	})
	planningSvc := planning.NewService(book, st.appointments)
	patientSvc := patient.NewService(st.patients, st.tx, formulary, loc)
	planningSvc.SetPatientLookup(patientSvc)
	productionSvc := production.NewService(patientSvc, planningSvc, formulary, loc)

	if err := planningSvc.Load(ctx); err != nil {
		st.Close()
		return nil, err
	}
	logger.Info().Int("appointments", len(planningSvc.List("", ""))).Msg("appointment book loaded")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(auth.AuthSkipper))
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSecret),
			Skipper:    auth.AuthSkipper,
		}))
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	e.Use(limiter.Middleware())

	// Probes
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(st.pool, st.pingers()))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// API
	apiV1 := e.Group("/api/v1")
	compounding.NewHandler(formulary).RegisterRoutes(apiV1)
	planning.NewHandler(planningSvc).RegisterRoutes(apiV1)
	patient.NewHandler(patientSvc).RegisterRoutes(apiV1)
	production.NewHandler(productionSvc).RegisterRoutes(apiV1)

	// Background jobs
	sched := jobs.New(loc, logger)
	if err := sched.AddRenewalSweep(productionSvc, cfg.RenewalSweepAt); err != nil {
		st.Close()
		return nil, fmt.Errorf("schedule renewal sweep: %w", err)
	}
	if err := sched.AddCleanup("rate_limiter", limiter, limiterCleanupEvery); err != nil {
		st.Close()
		return nil, fmt.Errorf("schedule rate limiter cleanup: %w", err)
	}

	return &server{echo: e, jobs: sched, stores: st, planning: planningSvc}, nil
}
