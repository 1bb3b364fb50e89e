package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/huddle/huddle/internal/config"
	"github.com/huddle/huddle/internal/edge/deliver"
	"github.com/huddle/huddle/internal/edge/extract"
	"github.com/huddle/huddle/internal/edge/sanitize"
)

// wirePayload is the intake contract. Appointment records carry tokenized
// patient references only; nothing in this struct may contain raw PHI.
type wirePayload struct {
	PracticeID          string            `json:"practice_id"`
	Date                string            `json:"date"`
	Appointments        []sanitize.Record `json:"appointments"`
	ExtractionTimestamp time.Time         `json:"extraction_timestamp"`
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "huddle-agent",
		Short: "On-premises schedule extraction agent",
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scheduleCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Extract, sanitize, and deliver one day's schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			dateArg, _ := cmd.Flags().GetString("date")

			logger := newLogger()
			cfg, err := config.LoadAgent()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			day := time.Now()
			if dateArg != "" {
				day, err = time.Parse("2006-01-02", dateArg)
				if err != nil {
					return fmt.Errorf("invalid --date %q: %w", dateArg, err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runOnce(ctx, cfg, logger, day)
		},
	}
	cmd.Flags().String("date", "", "Schedule date to extract (YYYY-MM-DD, default today)")
	return cmd
}

func scheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the extraction daily at the configured time",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, err := config.LoadAgent()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info().
				Int("hour", cfg.ExtractionHour).
				Int("minute", cfg.ExtractionMinute).
				Msg("daily extraction scheduled")

			for {
				next := nextRun(time.Now(), cfg.ExtractionHour, cfg.ExtractionMinute)
				logger.Info().Time("next_run", next).Msg("waiting for next extraction window")

				timer := time.NewTimer(time.Until(next))
				select {
				case <-ctx.Done():
					timer.Stop()
					logger.Info().Msg("agent stopped")
					return nil
				case <-timer.C:
				}

				if err := runOnce(ctx, cfg, logger, time.Now()); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					// A failed day must not kill the loop; tomorrow's
					// huddle still needs its extraction.
					logger.Error().Err(err).Msg("extraction run failed")
				}
			}
		},
	}
}

// nextRun returns the next daily occurrence of hour:minute after now.
func nextRun(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// runOnce performs one extract-sanitize-deliver cycle for the given day.
func runOnce(ctx context.Context, cfg *config.AgentConfig, logger zerolog.Logger, day time.Time) error {
	extractor, err := extract.New(extract.Config{
		PMSType:       cfg.PMSType,
		CSVPath:       cfg.CSVPath,
		OpenDentalDSN: cfg.OpenDentalDSN,
		EaglesoftURL:  cfg.EaglesoftURL,
	})
	if err != nil {
		return err
	}

	raw, err := extractor.ExtractDay(ctx, day)
	if err != nil {
		return fmt.Errorf("extract schedule: %w", err)
	}
	logger.Info().
		Str("pms", cfg.PMSType).
		Str("date", raw.Date).
		Int("appointments", len(raw.Appointments)).
		Msg("schedule extracted")

	policy := sanitize.DefaultPolicy()
	policy.AgeBucketYears = cfg.AgeBucketYears
	sanitizer := sanitize.New(cfg.PracticeSalt, policy)

	clean, rejects := sanitizer.SanitizeBatch(raw.Appointments)
	for _, rej := range rejects {
		// Log the record error without any field values; the reason
		// string never carries PHI.
		logger.Warn().Str("reason", rej.Reason).Msg("appointment rejected during sanitization")
	}
	logger.Info().
		Int("sanitized", len(clean)).
		Int("rejected", len(rejects)).
		Msg("schedule sanitized")

	payload := wirePayload{
		PracticeID:          cfg.PracticeID,
		Date:                raw.Date,
		Appointments:        clean,
		ExtractionTimestamp: time.Now().UTC(),
	}

	client := deliver.NewClient(deliver.Config{
		IntakeURL:      cfg.IntakeURL,
		APIKey:         cfg.IntakeAPIKey,
		MaxAttempts:    cfg.DeliveryMaxAttempts,
		BackoffFloor:   cfg.BackoffFloor(),
		BackoffCap:     cfg.BackoffCap(),
		RequestTimeout: cfg.DeliveryTimeout(),
	}, deliver.WithLogger(logger))

	ack, err := client.Deliver(ctx, payload)
	if err != nil {
		return fmt.Errorf("deliver schedule: %w", err)
	}

	logger.Info().
		Str("status", ack.Status).
		Str("huddle_id", ack.HuddleID).
		Msg("schedule delivered")
	return nil
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}
