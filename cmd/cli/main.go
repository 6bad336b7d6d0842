package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/curator-agent/internal/config"
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
	repo    *sqlite.Repository
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "curator",
		Short: "Genre-based content curation agent",
		Long: `Curates content per genre: fetches from configured sources, filters
duplicates against publish history, scores quality and submits the best
candidates to the publishing endpoint.`,
		PersistentPreRunE: initializeApp,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/config.yaml)")

	// Add subcommands
	rootCmd.AddCommand(genresCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(selectCmd())
	rootCmd.AddCommand(sourcesCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initializeApp(cmd *cobra.Command, args []string) error {
	var err error

	// Load config
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	// Initialize storage
	repo, err = sqlite.New(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Run migrations
	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// buildRegistry wires the fetch adapters the configured genres need.
func buildRegistry(ctx context.Context, limiter *ratelimit.MultiLimiter) (*source.Registry, error) {
	retry := source.RetryPolicy{
		MaxAttempts: cfg.Sources.Retry.MaxAttempts,
		BaseDelay:   cfg.Sources.Retry.BaseDelay,
		Multiplier:  cfg.Sources.Retry.Multiplier,
	}

	registry := source.NewRegistry()
	registry.Register(models.ContentTypeArticle, source.NewMux(
		rss.New(limiter, retry, log),
		scrape.New(limiter, retry, log),
	))

	if cfg.Sources.YouTube.APIKey != "" {
		videoAdapter, err := video.New(ctx, video.Config{
			APIKey:     cfg.Sources.YouTube.APIKey,
			MaxResults: cfg.Sources.YouTube.MaxResults,
		}, limiter, retry, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create video source: %w", err)
		}
		registry.Register(models.ContentTypeVideo, videoAdapter)
	}

	return registry, nil
}

// buildOrchestrator assembles the full pipeline for one-shot runs.
func buildOrchestrator(ctx context.Context, provider scheduler.GenreProvider) (*scheduler.Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st := storesqlite.New(repo.DB())
	if err := st.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate lock tables: %w", err)
	}

	limiter := ratelimit.NewDefaultLimiter()

	registry, err := buildRegistry(ctx, limiter)
	if err != nil {
		return nil, err
	}

	pub := webhook.New(webhook.Config{
		Endpoint:     cfg.Publish.Endpoint,
		TokenURL:     cfg.Publish.TokenURL,
		ClientID:     cfg.Publish.ClientID,
		ClientSecret: cfg.Publish.ClientSecret,
		Timeout:      cfg.Publish.Timeout,
	}, limiter, log)

	sel := selector.New(selector.Config{
		FetchConcurrency: cfg.Selector.FetchConcurrency,
		FetchTimeout:     cfg.Selector.FetchTimeout,
	}, log)

	return scheduler.New(
		provider, sel, registry, repo, st, st, pub,
		scheduler.Config{
			LockTTL:      cfg.Scheduler.LockTTL,
			CacheTTL:     cfg.Scheduler.CacheTTL,
			RetryBackoff: cfg.Scheduler.RetryBackoff,
		},
		log,
	), nil
}

func findGenre(genreID string) (models.Genre, error) {
	genres, err := cfg.GenreModels()
	if err != nil {
		return models.Genre{}, err
	}
	for _, g := range genres {
		if g.ID == genreID {
			return g, nil
		}
	}
	return models.Genre{}, fmt.Errorf("genre %q is not configured", genreID)
}

// ============ GENRES COMMANDS ============

func genresCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genres",
		Short: "Configured genre management",
	}

	cmd.AddCommand(genresListCmd())
	cmd.AddCommand(genresStatusCmd())
	return cmd
}

func genresListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured genres",
		RunE: func(cmd *cobra.Command, args []string) error {
			genres, err := cfg.GenreModels()
			if err != nil {
				return err
			}

			if len(genres) == 0 {
				fmt.Println("No genres configured")
				return nil
			}

			fmt.Printf("Found %d genre(s):\n\n", len(genres))
			for _, g := range genres {
				fmt.Printf("[%s] %s\n", g.ID, g.Name)
				fmt.Printf("  Type:        %s\n", g.ContentType)
				fmt.Printf("  Keywords:    %s\n", strings.Join(g.Keywords, ", "))
				fmt.Printf("  Sources:     %d\n", len(g.Sources))
				fmt.Printf("  Schedule:    every %s", g.Schedule.Interval)
				if g.Schedule.Anchor != "" {
					fmt.Printf(" anchored at %s", g.Schedule.Anchor)
				}
				fmt.Println()
				fmt.Printf("  Daily limit: %d, max per run: %d\n", g.DailyPostLimit, g.MaxItemsPerRun)
				fmt.Printf("  Dedup:       %s over %d days\n", g.DedupStrictness, g.DedupWindowDays)
				if !g.AutoPostingEnabled {
					fmt.Println("  Auto-posting: DISABLED")
				}
				fmt.Println()
			}

			return nil
		},
	}

	return cmd
}

func genresStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show last run and publish counts per genre",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			genres, err := cfg.GenreModels()
			if err != nil {
				return err
			}

			for _, g := range genres {
				run, err := repo.GetGenreRun(ctx, g.ID)
				if err != nil {
					return fmt.Errorf("genre %s: %w", g.ID, err)
				}
				count, err := repo.CountPublishedSince(ctx, g.ID, time.Now().Add(-24*time.Hour))
				if err != nil {
					return fmt.Errorf("genre %s: %w", g.ID, err)
				}

				fmt.Printf("[%s] %s\n", g.ID, g.Name)
				if run.LastRunAt == nil {
					fmt.Println("  Last run:       never")
				} else {
					fmt.Printf("  Last run:       %s (%s)\n", run.LastRunAt.Format(time.RFC1123), run.LastOutcome)
					next := g.Schedule.NextRun(*run.LastRunAt)
					fmt.Printf("  Next run:       %s\n", next.Format(time.RFC1123))
				}
				if run.LastFailureAt != nil {
					fmt.Printf("  Last failure:   %s (%s)\n", run.LastFailureAt.Format(time.RFC1123), run.LastReason)
				}
				fmt.Printf("  Published (24h): %d of %d\n\n", count, g.DailyPostLimit)
			}

			return nil
		},
	}

	return cmd
}

// ============ RUN COMMAND ============

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [genre-id]",
		Short: "Run the curation pipeline once",
		Long: `Evaluates genres immediately, outside the cron schedule. With a genre id
only that genre runs; without one every configured genre runs. Schedule,
daily limit and lock preconditions still apply.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			genres, err := cfg.GenreModels()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				genre, err := findGenre(args[0])
				if err != nil {
					return err
				}
				genres = []models.Genre{genre}
			}

			orch, err := buildOrchestrator(ctx, config.NewStaticGenreProvider(genres))
			if err != nil {
				return err
			}

			results, err := orch.RunAll(ctx)
			if err != nil {
				return err
			}

			for _, r := range results {
				switch r.Outcome {
				case scheduler.OutcomeCompleted:
					fmt.Printf("[%s] completed: %d candidate(s), %d published\n", r.GenreID, r.Candidates, r.Published)
				case scheduler.OutcomeSkipped:
					fmt.Printf("[%s] skipped: %s\n", r.GenreID, r.SkipReason)
				case scheduler.OutcomeFailed:
					fmt.Printf("[%s] FAILED: %v\n", r.GenreID, r.Err)
				}
			}

			return nil
		},
	}

	return cmd
}

// ============ SELECT COMMAND ============

func selectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select [genre-id]",
		Short: "Dry-run candidate selection for a genre",
		Long: `Fetches, filters and ranks candidates for one genre and prints the
result without publishing anything or taking the execution lock.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			genre, err := findGenre(args[0])
			if err != nil {
				return err
			}

			limiter := ratelimit.NewDefaultLimiter()
			registry, err := buildRegistry(ctx, limiter)
			if err != nil {
				return err
			}
			adapter, err := registry.ForType(genre.ContentType)
			if err != nil {
				return err
			}

			sel := selector.New(selector.Config{
				FetchConcurrency: cfg.Selector.FetchConcurrency,
				FetchTimeout:     cfg.Selector.FetchTimeout,
			}, log)

			history := func(ctx context.Context, genreID string, windowDays int) ([]models.PublishedRecord, error) {
				return repo.ListPublished(ctx, genreID, time.Now().AddDate(0, 0, -windowDays))
			}

			result, err := sel.Select(ctx, genre, adapter.Fetch, history)
			if err != nil {
				return err
			}

			fmt.Printf("Fetched %d item(s), %d keyword-matched, %d after dedup, %d above threshold\n\n",
				result.Fetched, result.KeywordMatched, result.AfterDedup, result.AboveThreshold)

			for _, e := range result.SourceErrors {
				fmt.Printf("source error: %v\n", e)
			}
			if len(result.SourceErrors) > 0 {
				fmt.Println()
			}

			if len(result.Candidates) == 0 {
				fmt.Println("No candidates selected")
				return nil
			}

			fmt.Printf("Selected %d candidate(s):\n\n", len(result.Candidates))
			for i, c := range result.Candidates {
				fmt.Printf("%d. [%.2f] %s\n", i+1, c.QualityScore, c.Item.Title)
				fmt.Printf("   %s\n", c.Item.URL)
			}

			return nil
		},
	}

	return cmd
}

// ============ SOURCES COMMANDS ============

func sourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Source management",
	}

	cmd.AddCommand(sourcesCheckCmd())
	return cmd
}

func sourcesCheckCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Health-check every configured source",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			genres, err := cfg.GenreModels()
			if err != nil {
				return err
			}

			limiter := ratelimit.NewDefaultLimiter()
			registry, err := buildRegistry(ctx, limiter)
			if err != nil {
				return err
			}

			failures := 0
			for _, g := range genres {
				adapter, err := registry.ForType(g.ContentType)
				if err != nil {
					fmt.Printf("[%s] %v\n", g.ID, err)
					failures++
					continue
				}
				for _, ref := range g.Sources {
					if err := adapter.HealthCheck(ctx, ref); err != nil {
						fmt.Printf("[%s] FAIL %s: %v\n", g.ID, ref, err)
						failures++
					} else {
						fmt.Printf("[%s] OK   %s\n", g.ID, ref)
					}
				}
			}

			if failures > 0 {
				return fmt.Errorf("%d source(s) failed the health check", failures)
			}
			fmt.Println("\nAll sources healthy")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall health check timeout")
	return cmd
}
