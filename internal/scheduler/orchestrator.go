// Package scheduler evaluates every configured genre on each tick and runs
// the curation pipeline for the ones that are due, under a per-genre
// execution lock. Ticks may arrive concurrently from the periodic timer and
// the manual trigger; the lock is the sole guard against double runs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/publish"
	"github.com/curator-agent/internal/selector"
	"github.com/curator-agent/internal/source"
	"github.com/curator-agent/internal/store"
	"github.com/curator-agent/internal/storage"
	"github.com/curator-agent/pkg/logger"
)

// Outcome is the terminal state of one genre for one tick.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Skip reasons. Every skipped tick names exactly one.
const (
	SkipAutoPostingDisabled = "auto_posting_disabled"
	SkipScheduleNotDue      = "schedule_not_due"
	SkipRetryBackoff        = "retry_backoff"
	SkipDailyLimitReached   = "daily_limit_reached"
	SkipNoKnownCandidates   = "no_known_candidates"
	SkipLockHeld            = "lock_held"
)

// TickResult reports what happened to one genre during one tick.
type TickResult struct {
	GenreID    string
	Outcome    Outcome
	SkipReason string
	Candidates int
	Published  int
	Err        error
}

// GenreProvider supplies the genre snapshots for a tick. Implementations
// re-read the configuration so a run never acts on stale policy.
type GenreProvider interface {
	Genres(ctx context.Context) ([]models.Genre, error)
}

// Config tunes the orchestrator's TTLs and backoff.
type Config struct {
	LockTTL      time.Duration // short relative to the minimum schedule interval
	CacheTTL     time.Duration
	RetryBackoff time.Duration // minimum wait after a failed run
}

func (c Config) withDefaults() Config {
	if c.LockTTL <= 0 {
		c.LockTTL = 5 * time.Minute
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 15 * time.Minute
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Minute
	}
	return c
}

// Orchestrator drives the per-genre state machine.
type Orchestrator struct {
	genres   GenreProvider
	sel      *selector.Selector
	registry *source.Registry
	repo     storage.Repository
	locks    store.LockStore
	counts   store.CounterCache
	pub      publish.Publisher
	cfg      Config
	log      *logger.Logger
	now      func() time.Time
}

// New creates the orchestrator.
func New(
	genres GenreProvider,
	sel *selector.Selector,
	registry *source.Registry,
	repo storage.Repository,
	locks store.LockStore,
	counts store.CounterCache,
	pub publish.Publisher,
	cfg Config,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		genres:   genres,
		sel:      sel,
		registry: registry,
		repo:     repo,
		locks:    locks,
		counts:   counts,
		pub:      pub,
		cfg:      cfg.withDefaults(),
		log:      log.WithComponent("scheduler"),
		now:      time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Genres exposes the current genre snapshots, for status surfaces.
func (o *Orchestrator) Genres(ctx context.Context) ([]models.Genre, error) {
	return o.genres.Genres(ctx)
}

// RunAll evaluates every configured genre. Genres run in parallel; runs for
// the same genre are serialized by the execution lock, so concurrent RunAll
// calls (timer tick plus manual trigger) are safe.
func (o *Orchestrator) RunAll(ctx context.Context) ([]TickResult, error) {
	genres, err := o.genres.Genres(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load genres: %w", err)
	}

	results := make([]TickResult, len(genres))
	var wg sync.WaitGroup
	for i, genre := range genres {
		wg.Add(1)
		go func(i int, genre models.Genre) {
			defer wg.Done()
			results[i] = o.RunGenre(ctx, genre)
		}(i, genre)
	}
	wg.Wait()

	return results, nil
}

// RunGenre evaluates and, when eligible, executes one genre. Every skip is
// attributable to one named reason.
func (o *Orchestrator) RunGenre(ctx context.Context, genre models.Genre) TickResult {
	log := o.log.WithGenre(genre.ID)
	now := o.now()

	if !genre.AutoPostingEnabled {
		return o.skip(log, genre.ID, SkipAutoPostingDisabled)
	}

	run, err := o.repo.GetGenreRun(ctx, genre.ID)
	if err != nil {
		return o.fail(ctx, log, genre.ID, fmt.Errorf("failed to load run bookkeeping: %w", err))
	}

	if run.LastRunAt != nil && now.Before(genre.Schedule.NextRun(*run.LastRunAt)) {
		return o.skip(log, genre.ID, SkipScheduleNotDue)
	}
	if run.LastFailureAt != nil && now.Before(run.LastFailureAt.Add(o.cfg.RetryBackoff)) {
		return o.skip(log, genre.ID, SkipRetryBackoff)
	}

	publishedToday := int64(0)
	if genre.DailyPostLimit > 0 {
		publishedToday, err = o.repo.CountPublishedSince(ctx, genre.ID, now.Add(-24*time.Hour))
		if err != nil {
			return o.fail(ctx, log, genre.ID, fmt.Errorf("failed to count published posts: %w", err))
		}
		if publishedToday >= int64(genre.DailyPostLimit) {
			return o.skip(log, genre.ID, SkipDailyLimitReached)
		}
	}

	// Unknown (absent or expired) means "must check", never zero.
	if count, known, cacheErr := o.counts.Get(ctx, genre.ID); cacheErr != nil {
		log.Warn().Err(cacheErr).Msg("Candidate-count cache unavailable, checking anyway")
	} else if known && count == 0 {
		return o.skip(log, genre.ID, SkipNoKnownCandidates)
	}

	token, acquired, err := o.locks.TryAcquire(ctx, genre.ID, o.cfg.LockTTL)
	if err != nil {
		return o.fail(ctx, log, genre.ID, fmt.Errorf("failed to acquire lock: %w", err))
	}
	if !acquired {
		return o.skip(log, genre.ID, SkipLockHeld)
	}
	// Release must run on every path, including cancellation, so the genre
	// is not starved until the TTL expires.
	defer func() {
		if released, releaseErr := o.locks.Release(context.WithoutCancel(ctx), genre.ID, token); releaseErr != nil {
			log.Error().Err(releaseErr).Msg("Failed to release lock")
		} else if !released {
			log.Warn().Msg("Lock already expired at release")
		}
	}()

	return o.execute(ctx, log, genre, run, publishedToday)
}

// execute runs the locked part: select, publish, bookkeeping.
func (o *Orchestrator) execute(ctx context.Context, log *logger.Logger, genre models.Genre, run *models.GenreRun, publishedToday int64) TickResult {
	adapter, err := o.registry.ForType(genre.ContentType)
	if err != nil {
		return o.fail(ctx, log, genre.ID, err)
	}

	historyFn := func(ctx context.Context, genreID string, windowDays int) ([]models.PublishedRecord, error) {
		return o.repo.ListPublished(ctx, genreID, o.now().AddDate(0, 0, -windowDays))
	}

	result, err := o.sel.Select(ctx, genre, adapter.Fetch, historyFn)
	if err != nil {
		return o.fail(ctx, log, genre.ID, err)
	}
	for _, srcErr := range result.SourceErrors {
		log.Warn().Err(srcErr).Msg("Source fetch failed, run continued")
	}

	now := o.now()
	if len(result.Candidates) == 0 {
		// A clean empty run completes: the cached zero suppresses
		// re-checks until the cache TTL expires.
		if err := o.counts.Refresh(ctx, genre.ID, 0, o.cfg.CacheTTL); err != nil {
			log.Warn().Err(err).Msg("Failed to refresh candidate-count cache")
		}
		o.complete(ctx, log, genre.ID, run, now, "no candidates")
		return TickResult{GenreID: genre.ID, Outcome: OutcomeCompleted}
	}

	budget := -1 // unlimited
	if genre.DailyPostLimit > 0 {
		budget = genre.DailyPostLimit - int(publishedToday)
	}

	published := 0
	attempted := 0
	var publishErrs []error
	for _, candidate := range result.Candidates {
		if budget == 0 {
			log.Info().Msg("Daily post limit reached mid-batch, stopping")
			break
		}
		attempted++

		publishedID, pubErr := o.pub.Publish(ctx, genre.ID, candidate)
		if errors.Is(pubErr, publish.ErrDailyLimitReached) {
			log.Info().Msg("Publish collaborator reported daily limit, stopping")
			break
		}
		if pubErr != nil {
			log.Error().Err(pubErr).Str("title", candidate.Item.Title).Msg("Failed to publish candidate")
			publishErrs = append(publishErrs, pubErr)
			continue
		}

		record := &models.PublishedRecord{
			GenreID:       genre.ID,
			PublishedID:   publishedID,
			Title:         candidate.Item.Title,
			ExternalID:    candidate.Item.ExternalID,
			SourceChannel: candidate.Item.Channel,
			BodyExcerpt:   candidate.Item.BodyExcerpt,
			PublishedAt:   o.now(),
		}
		if err := o.repo.RecordPublished(ctx, record); err != nil {
			log.Error().Err(err).Msg("Failed to record published item")
		}

		published++
		if budget > 0 {
			budget--
		}
	}

	remaining := len(result.Candidates) - attempted
	if err := o.counts.Refresh(ctx, genre.ID, remaining, o.cfg.CacheTTL); err != nil {
		log.Warn().Err(err).Msg("Failed to refresh candidate-count cache")
	}

	if published == 0 && len(publishErrs) > 0 {
		return o.fail(ctx, log, genre.ID, fmt.Errorf("publish rejected all %d candidates: %w", attempted, errors.Join(publishErrs...)))
	}

	o.complete(ctx, log, genre.ID, run, now, "")

	log.Info().
		Int("candidates", len(result.Candidates)).
		Int("published", published).
		Int("remaining", remaining).
		Msg("Run completed")

	return TickResult{
		GenreID:    genre.ID,
		Outcome:    OutcomeCompleted,
		Candidates: len(result.Candidates),
		Published:  published,
	}
}

func (o *Orchestrator) skip(log *logger.Logger, genreID, reason string) TickResult {
	log.Debug().Str("reason", reason).Msg("Tick skipped")
	return TickResult{GenreID: genreID, Outcome: OutcomeSkipped, SkipReason: reason}
}

// fail records the failure without advancing lastRun, so the next tick may
// retry once the backoff elapses.
func (o *Orchestrator) fail(ctx context.Context, log *logger.Logger, genreID string, err error) TickResult {
	log.Error().Err(err).Msg("Run failed")

	now := o.now()
	run, loadErr := o.repo.GetGenreRun(ctx, genreID)
	if loadErr != nil {
		log.Error().Err(loadErr).Msg("Failed to load run bookkeeping for failure record")
		return TickResult{GenreID: genreID, Outcome: OutcomeFailed, Err: err}
	}
	run.LastFailureAt = &now
	run.LastOutcome = string(OutcomeFailed)
	run.LastReason = err.Error()
	if saveErr := o.repo.SaveGenreRun(ctx, run); saveErr != nil {
		log.Error().Err(saveErr).Msg("Failed to save run bookkeeping")
	}

	return TickResult{GenreID: genreID, Outcome: OutcomeFailed, Err: err}
}

func (o *Orchestrator) complete(ctx context.Context, log *logger.Logger, genreID string, run *models.GenreRun, now time.Time, reason string) {
	run.LastRunAt = &now
	run.LastFailureAt = nil
	run.LastOutcome = string(OutcomeCompleted)
	run.LastReason = reason
	if err := o.repo.SaveGenreRun(ctx, run); err != nil {
		log.Error().Err(err).Msg("Failed to save run bookkeeping")
	}
}
