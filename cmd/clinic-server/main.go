package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/domain/appointment"
	"github.com/clinic/clinic/internal/domain/booking"
	"github.com/clinic/clinic/internal/domain/clinic"
	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/db"
	"github.com/clinic/clinic/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic appointment API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	run := func(action func(ctx context.Context, m *db.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator, err := db.NewMigrator(pool, logger)
			if err != nil {
				return err
			}
			defer migrator.Close()
			return action(ctx, migrator)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: run(func(ctx context.Context, m *db.Migrator) error {
			if err := m.Up(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			version, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Database at version %d.\n", version)
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: run(func(ctx context.Context, m *db.Migrator) error {
			return m.Down(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: run(func(ctx context.Context, m *db.Migrator) error {
			return m.Status(ctx)
		}),
	})

	return cmd
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// stores bundles the repositories behind the services. health is what
// /health/db pings.
type stores struct {
	clinics      clinic.Repository
	appointments appointment.Store
	health       db.Pinger
	close        func()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		repo := clinic.NewMemoryRepo()
		store := appointment.NewMemoryStore(repo)
		repo.SetDependents(store)
		if err := seedMemory(ctx, repo, cfg); err != nil {
			return nil, err
		}
		logger.Warn().Msg("using in-memory store; data is lost on restart")
		return &stores{clinics: repo, appointments: store, health: store, close: func() {}}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("connected to database")

	clinics := clinic.NewRepoPG(pool)
	if cfg.IsDev() {
		clinicID, err := uuid.Parse(cfg.DefaultClinicID)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("DEFAULT_CLINIC_ID: %w", err)
		}
		if err := clinics.EnsureClinic(ctx, clinicID, "Development Clinic"); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ensure development clinic: %w", err)
		}
	}
	return &stores{
		clinics:      clinics,
		appointments: appointment.NewPGStore(pool),
		health:       pool,
		close:        pool.Close,
	}, nil
}

// seedMemory gives the development clinic a patient and two doctors so the
// booking form has something to choose from.
func seedMemory(ctx context.Context, repo *clinic.MemoryRepo, cfg *config.Config) error {
	clinicID, err := uuid.Parse(cfg.DefaultClinicID)
	if err != nil {
		return fmt.Errorf("DEFAULT_CLINIC_ID: %w", err)
	}
	if err := repo.EnsureClinic(ctx, clinicID, "Development Clinic"); err != nil {
		return err
	}
	if err := repo.CreatePatient(ctx, &clinic.Patient{
		ClinicID: clinicID, Name: "Ana Souza", Email: "ana@example.com", PhoneNumber: "+55 11 91234-5678", Sex: "female",
	}); err != nil {
		return err
	}
	for _, d := range []*clinic.Doctor{
		{ClinicID: clinicID, Name: "Dr. Silva", Specialty: "Cardiology", AppointmentPriceInCents: 15000},
		{ClinicID: clinicID, Name: "Dr. Costa", Specialty: "Dermatology", AppointmentPriceInCents: 20000},
	} {
		if err := repo.CreateDoctor(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// newServer wires middleware, services and routes. The returned manager
// must be run by the caller to expire drafts.
func newServer(cfg *config.Config, logger zerolog.Logger, st *stores) (*echo.Echo, *booking.Manager, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit("1M"))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(st.health, cfg.StoreDriver))

	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.AuthSigningKey)}
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg, cfg.DefaultClinicID)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1", authMW, db.ClinicMiddleware(), middleware.RateLimit(rateLimitCfg))

	clinicSvc := clinic.NewService(st.clinics, st.appointments, logger)
	apptSvc := appointment.NewService(st.appointments, loc, logger)
	drafts := booking.NewManager(clinicSvc, apptSvc, loc, cfg.DraftTTL, logger)

	clinic.NewHandler(clinicSvc).RegisterRoutes(apiV1)
	appointment.NewHandler(apptSvc).RegisterRoutes(apiV1)
	booking.NewHandler(drafts).RegisterRoutes(apiV1)

	return e, drafts, nil
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open stores")
	}
	defer st.close()

	e, drafts, err := newServer(cfg, logger, st)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}
	go drafts.Run(ctx)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
