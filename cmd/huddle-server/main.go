package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/huddle/huddle/internal/config"
	"github.com/huddle/huddle/internal/domain/huddle"
	"github.com/huddle/huddle/internal/domain/schedule"
	"github.com/huddle/huddle/internal/pipeline"
	"github.com/huddle/huddle/internal/pipeline/revenue"
	"github.com/huddle/huddle/internal/pipeline/risk"
	"github.com/huddle/huddle/internal/pipeline/synthesis"
	"github.com/huddle/huddle/internal/platform/auth"
	"github.com/huddle/huddle/internal/platform/db"
	"github.com/huddle/huddle/internal/platform/middleware"
	"github.com/huddle/huddle/internal/platform/textgen"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "huddle-server",
		Short: "Morning huddle intake and analysis server",
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
		Short: "Start the huddle API server",
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.LoadServer()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Storage: Postgres when configured, in-memory otherwise (development).
	var repo huddle.Repository
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		ctx := context.Background()
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		repo = huddle.NewPGRepository(pool)
		logger.Info().Msg("connected to database")
	} else {
		repo = huddle.NewInMemoryRepository()
		logger.Warn().Msg("DATABASE_URL not set; huddle history is in-memory only")
	}

	// Summary generation: remote service when configured, deterministic
	// template renderer otherwise.
	var gen synthesis.TextGenerator
	if cfg.TextgenURL != "" {
		gen = textgen.NewHTTPGenerator(cfg.TextgenURL, cfg.TextgenAPIKey, nil)
	} else {
		gen = textgen.NewTemplateGenerator()
		logger.Warn().Msg("TEXTGEN_URL not set; using template summaries")
	}

	// Analysis pipeline
	stages := pipeline.DefaultStages(
		schedule.NewNormalizer(),
		risk.NewScanner(risk.Config{
			NoShowThreshold:  cfg.RiskNoShowThreshold,
			BalanceThreshold: cfg.RiskBalanceThreshold,
		}),
		revenue.NewDetector(revenue.Config{
			HighValueThreshold:   cfg.RevenueHighValue,
			MediumValueThreshold: cfg.RevenueMediumValue,
		}),
		synthesis.New(gen, time.Duration(cfg.TextgenTimeoutSec)*time.Second),
	)
	runner := pipeline.NewRunner(logger, stages...)

	svc := huddle.NewService(repo, runner, logger)

	// Intake credentials
	keys := auth.NewKeyStore()
	if err := keys.SeedFromPairs(cfg.IntakeAPIKeys); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed intake API keys")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.SanitizeWithLogger(logger))
	e.Use(middleware.BodyLimit("1M", "16M"))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// API group
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	apiV1.Use(auth.Middleware(keys))

	handler := huddle.NewHandler(svc)
	handler.RegisterRoutes(apiV1)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
