// Package selector produces the ranked, bounded candidate list for one
// genre run: fetch fan-out, keyword filtering, deduplication against
// published history, quality scoring, and truncation.
package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/curator-agent/internal/dedup"
	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/quality"
	"github.com/curator-agent/internal/source"
	"github.com/curator-agent/pkg/logger"
)

// MinQualityScore is the genre-level acceptance threshold applied after
// scoring. It lives here, not in the scorer, so the scorer stays reusable
// for diagnostics.
const MinQualityScore = 0.3

// HistoryFn supplies previously published records within the genre's
// lookback window. A failure here aborts the run (fail-closed): running
// without history risks republishing duplicates.
type HistoryFn func(ctx context.Context, genreID string, windowDays int) ([]models.PublishedRecord, error)

// Config tunes the fetch fan-out.
type Config struct {
	FetchConcurrency int           // bounded worker pool size
	FetchTimeout     time.Duration // per-source timeout
}

// Selector runs the curation pipeline for one genre at a time. It is
// stateless and safe for concurrent use across genres.
type Selector struct {
	cfg Config
	log *logger.Logger
}

// New creates a selector.
func New(cfg Config, log *logger.Logger) *Selector {
	if cfg.FetchConcurrency < 1 {
		cfg.FetchConcurrency = 4
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 60 * time.Second
	}
	return &Selector{cfg: cfg, log: log.WithComponent("selector")}
}

// Result carries the ranked candidates plus per-stage counts and the
// non-fatal per-source errors for observability.
type Result struct {
	Candidates   []models.Candidate
	SourceErrors []error

	Fetched        int
	KeywordMatched int
	AfterDedup     int
	AboveThreshold int
}

// Select runs the full pipeline. The returned error is fatal for the run:
// history lookup failed, or every configured source failed. Per-source
// fetch errors alone are aggregated in Result.SourceErrors and do not stop
// the run.
func (s *Selector) Select(ctx context.Context, genre models.Genre, fetch source.FetchFn, history HistoryFn) (*Result, error) {
	log := s.log.WithGenre(genre.ID)
	result := &Result{}

	// Dedup history first: without it the run must not proceed.
	records, err := history(ctx, genre.ID, genre.DedupWindowDays)
	if err != nil {
		return nil, fmt.Errorf("history lookup failed for genre %s: %w", genre.ID, err)
	}

	items, sourceErrors := s.fetchAll(ctx, genre, fetch)
	result.SourceErrors = sourceErrors
	result.Fetched = len(items)

	if len(genre.Sources) > 0 && len(sourceErrors) == len(genre.Sources) {
		return result, fmt.Errorf("all %d sources failed for genre %s", len(genre.Sources), genre.ID)
	}

	log.Info().
		Int("fetched", len(items)).
		Int("fetch_errors", len(sourceErrors)).
		Msg("Fetched items from sources")

	matched := filterByKeywords(items, genre.Keywords)
	result.KeywordMatched = len(matched)

	filter := dedup.New(genre)
	seen := make(map[string]bool, len(matched))
	unique := make([]models.ContentItem, 0, len(matched))
	for _, item := range matched {
		// Same-batch duplicates by external id are dropped before the
		// history comparison.
		if item.ExternalID != "" {
			if seen[item.ExternalID] {
				continue
			}
			seen[item.ExternalID] = true
		}
		if filter.IsDuplicate(item, records) {
			continue
		}
		unique = append(unique, item)
	}
	result.AfterDedup = len(unique)

	candidates := make([]models.Candidate, 0, len(unique))
	for _, item := range unique {
		score := quality.Score(item)
		if score < MinQualityScore {
			continue
		}
		candidates = append(candidates, models.Candidate{Item: item, QualityScore: score})
	}
	result.AboveThreshold = len(candidates)

	// Rank by score; the stable sort keeps original fetch order for ties.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].QualityScore > candidates[j].QualityScore
	})
	if len(candidates) > genre.MaxItemsPerRun {
		candidates = candidates[:genre.MaxItemsPerRun]
	}
	result.Candidates = candidates

	log.Info().
		Int("matched", result.KeywordMatched).
		Int("after_dedup", result.AfterDedup).
		Int("above_threshold", result.AboveThreshold).
		Int("selected", len(result.Candidates)).
		Msg("Selection completed")

	return result, nil
}

// fetchAll fans out fetch calls over a bounded worker pool, preserving
// configured source order in the combined item list. A source failure is
// recorded and does not cancel sibling fetches.
func (s *Selector) fetchAll(ctx context.Context, genre models.Genre, fetch source.FetchFn) ([]models.ContentItem, []error) {
	type sourceResult struct {
		items []models.ContentItem
		err   error
	}

	results := make([]sourceResult, len(genre.Sources))
	sem := make(chan struct{}, s.cfg.FetchConcurrency)
	var wg sync.WaitGroup

	for i, ref := range genre.Sources {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
			defer cancel()

			items, err := fetch(fetchCtx, ref)
			if err != nil {
				results[i] = sourceResult{err: fmt.Errorf("source %s: %w", ref, err)}
				return
			}
			results[i] = sourceResult{items: items}
		}(i, ref)
	}
	wg.Wait()

	var all []models.ContentItem
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		all = append(all, r.items...)
	}
	return all, errs
}

// filterByKeywords keeps items whose title or body matches at least one
// keyword, case-insensitively. An empty keyword list rejects everything
// (fail safe).
func filterByKeywords(items []models.ContentItem, keywords []string) []models.ContentItem {
	if len(keywords) == 0 {
		return nil
	}

	matched := make([]models.ContentItem, 0, len(items))
	for _, item := range items {
		haystack := strings.ToLower(item.Title + " " + item.BodyExcerpt)
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(haystack, strings.ToLower(kw)) {
				matched = append(matched, item)
				break
			}
		}
	}
	return matched
}
