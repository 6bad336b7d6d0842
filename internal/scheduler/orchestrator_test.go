package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/publish"
	"github.com/curator-agent/internal/selector"
	"github.com/curator-agent/internal/source"
	"github.com/curator-agent/internal/store/memory"
	"github.com/curator-agent/pkg/logger"
)

var testNow = time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

// --- stubs ---

type stubProvider struct {
	genres []models.Genre
}

func (p *stubProvider) Genres(_ context.Context) ([]models.Genre, error) {
	return p.genres, nil
}

type stubRepo struct {
	mu        sync.Mutex
	published []models.PublishedRecord
	runs      map[string]models.GenreRun
	countErr  error
	listErr   error
}

func newStubRepo() *stubRepo {
	return &stubRepo{runs: make(map[string]models.GenreRun)}
}

func (r *stubRepo) RecordPublished(_ context.Context, rec *models.PublishedRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, *rec)
	return nil
}

func (r *stubRepo) ListPublished(_ context.Context, genreID string, since time.Time) ([]models.PublishedRecord, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PublishedRecord
	for _, rec := range r.published {
		if rec.GenreID == genreID && !rec.PublishedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (r *stubRepo) CountPublishedSince(_ context.Context, genreID string, since time.Time) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, rec := range r.published {
		if rec.GenreID == genreID && !rec.PublishedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *stubRepo) GetGenreRun(_ context.Context, genreID string) (*models.GenreRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[genreID]
	if !ok {
		return &models.GenreRun{GenreID: genreID}, nil
	}
	copied := run
	return &copied, nil
}

func (r *stubRepo) SaveGenreRun(_ context.Context, run *models.GenreRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.GenreID] = *run
	return nil
}

func (r *stubRepo) Migrate() error { return nil }
func (r *stubRepo) Close() error   { return nil }

type stubAdapter struct {
	items map[string][]models.ContentItem
	errs  map[string]error
}

func (a *stubAdapter) Kind() string { return "stub" }

func (a *stubAdapter) Fetch(_ context.Context, ref string) ([]models.ContentItem, error) {
	if err, ok := a.errs[ref]; ok {
		return nil, err
	}
	return a.items[ref], nil
}

func (a *stubAdapter) HealthCheck(_ context.Context, _ string) error { return nil }

type stubPublisher struct {
	mu     sync.Mutex
	script []error // per-call results; nil means success
	calls  int
}

func (p *stubPublisher) Publish(_ context.Context, _ string, _ models.Candidate) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	if idx < len(p.script) && p.script[idx] != nil {
		return "", p.script[idx]
	}
	return fmt.Sprintf("pub-%d", idx), nil
}

func (p *stubPublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// --- fixtures ---

func testGenre() models.Genre {
	return models.Genre{
		ID:                 "tech",
		ContentType:        models.ContentTypeArticle,
		Keywords:           []string{"ai"},
		Sources:            []string{"src-1"},
		Schedule:           models.Schedule{Interval: time.Hour},
		DailyPostLimit:     0,
		MaxItemsPerRun:     10,
		AutoPostingEnabled: true,
		DedupStrictness:    models.StrictnessMedium,
		DedupWindowDays:    7,
	}
}

func richItem(title string) models.ContentItem {
	published := testNow.AddDate(0, 0, -1)
	return models.ContentItem{
		Title:        title,
		BodyExcerpt:  strings.Repeat("body text about artificial intelligence ", 2),
		SourceRef:    "src-1",
		ImagePresent: true,
		PublishedAt:  &published,
	}
}

type fixture struct {
	orch  *Orchestrator
	repo  *stubRepo
	store *memory.Store
	pub   *stubPublisher
	now   *time.Time
}

func newFixture(t *testing.T, genre models.Genre, adapter *stubAdapter, pub *stubPublisher) *fixture {
	t.Helper()
	now := testNow
	clock := func() time.Time { return now }

	log := logger.New(logger.Config{Level: "error", Format: "json"})
	repo := newStubRepo()
	st := memory.New().WithClock(clock)
	registry := source.NewRegistry()
	registry.Register(models.ContentTypeArticle, adapter)
	registry.Register(models.ContentTypeVideo, adapter)
	sel := selector.New(selector.Config{}, log)

	orch := New(
		&stubProvider{genres: []models.Genre{genre}},
		sel, registry, repo, st, st, pub,
		Config{LockTTL: 5 * time.Minute, CacheTTL: 15 * time.Minute, RetryBackoff: 5 * time.Minute},
		log,
	).WithClock(clock)

	return &fixture{orch: orch, repo: repo, store: st, pub: pub, now: &now}
}

// --- tests ---

func TestRunGenreCompletes(t *testing.T) {
	genre := testGenre()
	adapter := &stubAdapter{items: map[string][]models.ContentItem{
		"src-1": {richItem("AI one"), richItem("AI two")},
	}}
	pub := &stubPublisher{}
	f := newFixture(t, genre, adapter, pub)

	result := f.orch.RunGenre(context.Background(), genre)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s (%v), want completed", result.Outcome, result.Err)
	}
	if result.Published != 2 {
		t.Errorf("published = %d, want 2", result.Published)
	}
	if len(f.repo.published) != 2 {
		t.Errorf("recorded %d published items, want 2", len(f.repo.published))
	}

	run, _ := f.repo.GetGenreRun(context.Background(), genre.ID)
	if run.LastRunAt == nil || !run.LastRunAt.Equal(testNow) {
		t.Errorf("lastRun = %v, want %v", run.LastRunAt, testNow)
	}

	// Lock must be free again.
	if _, ok, _ := f.store.TryAcquire(context.Background(), genre.ID, time.Minute); !ok {
		t.Error("lock should be released after a completed run")
	}
}

func TestDailyLimitBoundsBatch(t *testing.T) {
	// Limit 2 with 3 eligible candidates: exactly two Publish calls, the
	// third candidate is never submitted.
	genre := testGenre()
	genre.DailyPostLimit = 2
	adapter := &stubAdapter{items: map[string][]models.ContentItem{
		"src-1": {richItem("AI one"), richItem("AI two"), richItem("AI three")},
	}}
	pub := &stubPublisher{}
	f := newFixture(t, genre, adapter, pub)

	result := f.orch.RunGenre(context.Background(), genre)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s (%v), want completed", result.Outcome, result.Err)
	}
	if pub.callCount() != 2 {
		t.Errorf("publish calls = %d, want exactly 2", pub.callCount())
	}
	if result.Published != 2 {
		t.Errorf("published = %d, want 2", result.Published)
	}

	// The unsubmitted candidate stays in the count cache.
	count, known, _ := f.store.Get(context.Background(), genre.ID)
	if !known || count != 1 {
		t.Errorf("cached count = (%d, %v), want (1, true)", count, known)
	}
}

func TestCollaboratorLimitStopsBatch(t *testing.T) {
	genre := testGenre()
	adapter := &stubAdapter{items: map[string][]models.ContentItem{
		"src-1": {richItem("AI one"), richItem("AI two"), richItem("AI three")},
	}}
	pub := &stubPublisher{script: []error{nil, publish.ErrDailyLimitReached}}
	f := newFixture(t, genre, adapter, pub)

	result := f.orch.RunGenre(context.Background(), genre)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s (%v), want completed", result.Outcome, result.Err)
	}
	if pub.callCount() != 2 {
		t.Errorf("publish calls = %d, want 2 (stop on limit error)", pub.callCount())
	}
	if result.Published != 1 {
		t.Errorf("published = %d, want 1", result.Published)
	}
}

func TestSkipReasons(t *testing.T) {
	ctx := context.Background()
	adapter := &stubAdapter{items: map[string][]models.ContentItem{
		"src-1": {richItem("AI one")},
	}}

	t.Run("auto posting disabled", func(t *testing.T) {
		genre := testGenre()
		genre.AutoPostingEnabled = false
		f := newFixture(t, genre, adapter, &stubPublisher{})
		result := f.orch.RunGenre(ctx, genre)
		if result.Outcome != OutcomeSkipped || result.SkipReason != SkipAutoPostingDisabled {
			t.Errorf("got (%s, %s)", result.Outcome, result.SkipReason)
		}
	})

	t.Run("schedule not due", func(t *testing.T) {
		genre := testGenre()
		f := newFixture(t, genre, adapter, &stubPublisher{})
		lastRun := testNow.Add(-30 * time.Minute) // interval is 1h
		f.repo.SaveGenreRun(ctx, &models.GenreRun{GenreID: genre.ID, LastRunAt: &lastRun})
		result := f.orch.RunGenre(ctx, genre)
		if result.Outcome != OutcomeSkipped || result.SkipReason != SkipScheduleNotDue {
			t.Errorf("got (%s, %s)", result.Outcome, result.SkipReason)
		}
	})

	t.Run("daily limit reached", func(t *testing.T) {
		genre := testGenre()
		genre.DailyPostLimit = 1
		f := newFixture(t, genre, adapter, &stubPublisher{})
		f.repo.RecordPublished(ctx, &models.PublishedRecord{
			GenreID:     genre.ID,
			Title:       "already out",
			PublishedAt: testNow.Add(-2 * time.Hour),
		})
		result := f.orch.RunGenre(ctx, genre)
		if result.Outcome != OutcomeSkipped || result.SkipReason != SkipDailyLimitReached {
			t.Errorf("got (%s, %s)", result.Outcome, result.SkipReason)
		}
	})

	t.Run("cached zero candidates", func(t *testing.T) {
		genre := testGenre()
		f := newFixture(t, genre, adapter, &stubPublisher{})
		f.store.Refresh(ctx, genre.ID, 0, time.Hour)
		result := f.orch.RunGenre(ctx, genre)
		if result.Outcome != OutcomeSkipped || result.SkipReason != SkipNoKnownCandidates {
			t.Errorf("got (%s, %s)", result.Outcome, result.SkipReason)
		}
	})

	t.Run("lock held", func(t *testing.T) {
		genre := testGenre()
		f := newFixture(t, genre, adapter, &stubPublisher{})
		if _, ok, _ := f.store.TryAcquire(ctx, genre.ID, time.Hour); !ok {
			t.Fatal("pre-acquire failed")
		}
		result := f.orch.RunGenre(ctx, genre)
		if result.Outcome != OutcomeSkipped || result.SkipReason != SkipLockHeld {
			t.Errorf("got (%s, %s)", result.Outcome, result.SkipReason)
		}
	})
}

func TestFailedRunDoesNotAdvanceLastRun(t *testing.T) {
	ctx := context.Background()
	genre := testGenre()
	adapter := &stubAdapter{errs: map[string]error{"src-1": errors.New("connection refused")}}
	f := newFixture(t, genre, adapter, &stubPublisher{})

	result := f.orch.RunGenre(ctx, genre)
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed", result.Outcome)
	}

	run, _ := f.repo.GetGenreRun(ctx, genre.ID)
	if run.LastRunAt != nil {
		t.Error("lastRun must not advance on failure")
	}
	if run.LastFailureAt == nil {
		t.Error("failure time must be recorded")
	}

	// Lock released despite the failure.
	if _, ok, _ := f.store.TryAcquire(ctx, genre.ID, time.Minute); !ok {
		t.Error("lock should be released after a failed run")
	}

	// Immediately after the failure the genre sits out the backoff.
	result = f.orch.RunGenre(ctx, genre)
	if result.Outcome != OutcomeSkipped || result.SkipReason != SkipRetryBackoff {
		t.Errorf("got (%s, %s), want retry backoff skip", result.Outcome, result.SkipReason)
	}

	// Once the backoff elapses the genre is eligible again.
	*f.now = testNow.Add(6 * time.Minute)
	adapter.errs = nil
	adapter.items = map[string][]models.ContentItem{"src-1": {richItem("AI recovered")}}
	result = f.orch.RunGenre(ctx, genre)
	if result.Outcome != OutcomeCompleted {
		t.Errorf("outcome after backoff = %s (%v), want completed", result.Outcome, result.Err)
	}
}

func TestHistoryFailureFailsClosed(t *testing.T) {
	ctx := context.Background()
	genre := testGenre()
	adapter := &stubAdapter{items: map[string][]models.ContentItem{
		"src-1": {richItem("AI one")},
	}}
	f := newFixture(t, genre, adapter, &stubPublisher{})
	f.repo.listErr = errors.New("history store unavailable")

	result := f.orch.RunGenre(ctx, genre)
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed (fail-closed on history)", result.Outcome)
	}
	if f.pub.callCount() != 0 {
		t.Error("nothing may be published without dedup history")
	}
}

func TestZeroCandidatesCompletesAndCachesZero(t *testing.T) {
	ctx := context.Background()
	genre := testGenre()
	genre.Schedule.Interval = 10 * time.Minute
	// Fetched item does not match the genre keywords.
	adapter := &stubAdapter{items: map[string][]models.ContentItem{
		"src-1": {richItem("gardening tips for late summer")},
	}}
	f := newFixture(t, genre, adapter, &stubPublisher{})

	result := f.orch.RunGenre(ctx, genre)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %s (%v), want completed", result.Outcome, result.Err)
	}

	count, known, _ := f.store.Get(ctx, genre.ID)
	if !known || count != 0 {
		t.Errorf("cached count = (%d, %v), want (0, true)", count, known)
	}

	// The cached zero short-circuits the next due tick: the schedule
	// interval has elapsed but the cache entry (15m TTL) is still fresh.
	*f.now = testNow.Add(10 * time.Minute)
	result = f.orch.RunGenre(ctx, genre)
	if result.Outcome != OutcomeSkipped || result.SkipReason != SkipNoKnownCandidates {
		t.Errorf("got (%s, %s), want no-known-candidates skip", result.Outcome, result.SkipReason)
	}
}

func TestPublishRejectsAllIsFailure(t *testing.T) {
	ctx := context.Background()
	genre := testGenre()
	adapter := &stubAdapter{items: map[string][]models.ContentItem{
		"src-1": {richItem("AI one"), richItem("AI two")},
	}}
	rejectAll := errors.New("collaborator rejected")
	pub := &stubPublisher{script: []error{rejectAll, rejectAll}}
	f := newFixture(t, genre, adapter, pub)

	result := f.orch.RunGenre(ctx, genre)
	if result.Outcome != OutcomeFailed {
		t.Fatalf("outcome = %s, want failed when every publish is rejected", result.Outcome)
	}
	run, _ := f.repo.GetGenreRun(ctx, genre.ID)
	if run.LastRunAt != nil {
		t.Error("lastRun must not advance when publish rejected everything")
	}
}

func TestRunAllEvaluatesEveryGenre(t *testing.T) {
	genreA := testGenre()
	genreA.ID = "tech"
	genreB := testGenre()
	genreB.ID = "finance"
	genreB.AutoPostingEnabled = false

	adapter := &stubAdapter{items: map[string][]models.ContentItem{
		"src-1": {richItem("AI one")},
	}}
	f := newFixture(t, genreA, adapter, &stubPublisher{})
	f.orch.genres = &stubProvider{genres: []models.Genre{genreA, genreB}}

	results, err := f.orch.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	byID := map[string]TickResult{}
	for _, r := range results {
		byID[r.GenreID] = r
	}
	if byID["tech"].Outcome != OutcomeCompleted {
		t.Errorf("tech outcome = %s (%v)", byID["tech"].Outcome, byID["tech"].Err)
	}
	if byID["finance"].SkipReason != SkipAutoPostingDisabled {
		t.Errorf("finance skip = %s", byID["finance"].SkipReason)
	}
}
