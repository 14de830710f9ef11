package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicore/clinicore/internal/config"
	"github.com/clinicore/clinicore/internal/domain/patient"
	"github.com/clinicore/clinicore/internal/domain/person"
	"github.com/clinicore/clinicore/internal/domain/practitioner"
	"github.com/clinicore/clinicore/internal/expand"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinicore-server",
		Short: "Headless clinical API server",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	// Storage
	ctx := context.Background()
	var (
		personRepo       person.Repository
		practitionerRepo practitioner.Repository
		patientRepo      patient.Repository
	)
	switch cfg.Storage {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
		personRepo = person.NewPGRepo(pool)
		practitionerRepo = practitioner.NewPGRepo(pool)
		patientRepo = patient.NewPGRepo(pool)
	case "memory":
		logger.Warn().Msg("using in-memory storage, data will not survive restarts")
		personRepo = person.NewMemRepo()
		practitionerRepo = practitioner.NewMemRepo()
		patientRepo = patient.NewMemRepo()
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			JWKSURL:    cfg.AuthJWKSURL,
			SigningKey: []byte(cfg.AuthSecret),
		}))
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Domain routes
	apiV1 := e.Group("/api/v1")
	person.NewHandler(person.NewService(personRepo)).RegisterRoutes(apiV1)
	practitioner.NewHandler(practitioner.NewService(practitionerRepo)).RegisterRoutes(apiV1)
	patient.NewHandler(patient.NewService(patientRepo)).RegisterRoutes(apiV1)

	// Expansion: schema document -> immutable indexes -> engine mounted as
	// response interceptor. The dispatcher re-enters this same echo
	// instance, so internal resolutions run the full middleware chain.
	doc, err := expand.LoadDocument(cfg.ExpandSchemaPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.ExpandSchemaPath).Msg("failed to load expansion schema document")
	}
	meta, routes, err := expand.BuildIndexes(doc, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build expansion indexes")
	}
	resolver := expand.NewResolver(
		routes,
		expand.NewServerDispatcher(e),
		time.Duration(cfg.ExpandResolveTimeout)*time.Millisecond,
		logger,
	)
	engine := expand.NewEngine(meta, resolver, cfg.ExpandMaxFanOut, logger)
	e.Use(expand.Middleware(engine, routes, logger))
	logger.Info().Str("schema", cfg.ExpandSchemaPath).Msg("resource expansion enabled")

	// Start server with graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
