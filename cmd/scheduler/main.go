package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/curator-agent/internal/config"
	"github.com/curator-agent/internal/httpapi"
	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/publish/webhook"
	"github.com/curator-agent/internal/scheduler"
	"github.com/curator-agent/internal/selector"
	"github.com/curator-agent/internal/source"
	"github.com/curator-agent/internal/source/rss"
	"github.com/curator-agent/internal/source/scrape"
	"github.com/curator-agent/internal/source/video"
	"github.com/curator-agent/internal/storage/sqlite"
	storesqlite "github.com/curator-agent/internal/store/sqlite"
	"github.com/curator-agent/pkg/logger"
	"github.com/curator-agent/pkg/ratelimit"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "curator-scheduler",
		Short: "Background scheduler for the content curator",
		Long: `Evaluates every configured genre on a cron tick: fetches candidates,
filters duplicates, scores quality and submits the winners to the
publishing endpoint. Run as a service for autonomous operation.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Msg("Starting Curator Scheduler")

	// Initialize storage
	repo, err := sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer repo.Close()

	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Execution locks and the candidate-count cache share the same database
	st := storesqlite.New(repo.DB())
	if err := st.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate lock tables: %w", err)
	}

	// Initialize rate limiter
	limiter := ratelimit.NewDefaultLimiter()

	retry := source.RetryPolicy{
		MaxAttempts: cfg.Sources.Retry.MaxAttempts,
		BaseDelay:   cfg.Sources.Retry.BaseDelay,
		Multiplier:  cfg.Sources.Retry.Multiplier,
	}

	// Register fetch adapters per content type. Article refs route through
	// the mux so feed URLs and "scrape+" pages can mix within one genre.
	registry := source.NewRegistry()
	registry.Register(models.ContentTypeArticle, source.NewMux(
		rss.New(limiter, retry, log),
		scrape.New(limiter, retry, log),
	))

	if cfg.Sources.YouTube.APIKey != "" {
		videoAdapter, err := video.New(cmd.Context(), video.Config{
			APIKey:     cfg.Sources.YouTube.APIKey,
			MaxResults: cfg.Sources.YouTube.MaxResults,
		}, limiter, retry, log)
		if err != nil {
			return fmt.Errorf("failed to create video source: %w", err)
		}
		registry.Register(models.ContentTypeVideo, videoAdapter)
	}

	// Initialize publisher
	pub := webhook.New(webhook.Config{
		Endpoint:     cfg.Publish.Endpoint,
		TokenURL:     cfg.Publish.TokenURL,
		ClientID:     cfg.Publish.ClientID,
		ClientSecret: cfg.Publish.ClientSecret,
		Timeout:      cfg.Publish.Timeout,
	}, limiter, log)

	// Create the orchestrator over a file-backed provider so genre policy
	// changes are picked up on the next tick without a restart.
	sel := selector.New(selector.Config{
		FetchConcurrency: cfg.Selector.FetchConcurrency,
		FetchTimeout:     cfg.Selector.FetchTimeout,
	}, log)

	orch := scheduler.New(
		config.NewFileGenreProvider(cfgFile),
		sel, registry, repo, st, st, pub,
		scheduler.Config{
			LockTTL:      cfg.Scheduler.LockTTL,
			CacheTTL:     cfg.Scheduler.CacheTTL,
			RetryBackoff: cfg.Scheduler.RetryBackoff,
		},
		log,
	)

	// Start the HTTP surface (health, manual trigger, genre status)
	server := httpapi.New(orch, repo, httpapi.Options{Port: cfg.Server.Port}, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Create cron scheduler
	c := cron.New(cron.WithLogger(cronLogger{log}))

	_, err = c.AddFunc(cfg.Scheduler.TickCron, func() {
		ctx := context.Background()
		log.Info().Msg("Running scheduled tick")

		results, err := orch.RunAll(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Scheduled tick failed")
			return
		}

		var completed, skipped, failed, published int
		for _, r := range results {
			switch r.Outcome {
			case scheduler.OutcomeCompleted:
				completed++
			case scheduler.OutcomeSkipped:
				skipped++
			case scheduler.OutcomeFailed:
				failed++
				log.Error().Err(r.Err).Str("genre", r.GenreID).Msg("Genre run failed")
			}
			published += r.Published
		}

		log.Info().
			Int("completed", completed).
			Int("skipped", skipped).
			Int("failed", failed).
			Int("published", published).
			Msg("Scheduled tick completed")
	})
	if err != nil {
		return fmt.Errorf("failed to schedule tick job: %w", err)
	}
	log.Info().Str("cron", cfg.Scheduler.TickCron).Msg("Tick job scheduled")

	// Start scheduler
	c.Start()
	log.Info().Msg("Scheduler started")

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down scheduler")
	<-c.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	return nil
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Msgf(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Msgf(msg, keysAndValues...)
}
