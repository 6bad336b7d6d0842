// Package dedup decides whether a fetched item duplicates anything the
// genre already published. Thresholds depend on the genre's strictness and
// content type; video titles use the stricter end of each band.
package dedup

import (
	"strings"
	"time"

	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/similarity"
)

// thresholds holds the similarity cutoffs for one (strictness, content type)
// combination.
type thresholds struct {
	title   float64
	content float64
}

var articleThresholds = map[models.DedupStrictness]thresholds{
	models.StrictnessLow:    {title: 0.70, content: 0.60},
	models.StrictnessMedium: {title: 0.80, content: 0.70},
	models.StrictnessHigh:   {title: 0.90, content: 0.80},
}

var videoThresholds = map[models.DedupStrictness]thresholds{
	models.StrictnessLow:    {title: 0.75, content: 0.60},
	models.StrictnessMedium: {title: 0.85, content: 0.70},
	models.StrictnessHigh:   {title: 0.95, content: 0.80},
}

// TitleThreshold exposes the title cutoff for diagnostics and tests.
func TitleThreshold(strictness models.DedupStrictness, contentType models.ContentType) float64 {
	return thresholdsFor(strictness, contentType).title
}

func thresholdsFor(strictness models.DedupStrictness, contentType models.ContentType) thresholds {
	table := articleThresholds
	if contentType == models.ContentTypeVideo {
		table = videoThresholds
	}
	th, ok := table[strictness]
	if !ok {
		th = table[models.StrictnessMedium]
	}
	return th
}

// Filter compares candidates against a window of published history.
type Filter struct {
	strictness  models.DedupStrictness
	contentType models.ContentType
	windowDays  int
	now         func() time.Time
}

// New creates a filter for one genre's policy.
func New(genre models.Genre) *Filter {
	return &Filter{
		strictness:  genre.DedupStrictness,
		contentType: genre.ContentType,
		windowDays:  genre.DedupWindowDays,
		now:         time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (f *Filter) WithClock(now func() time.Time) *Filter {
	f.now = now
	return f
}

// IsDuplicate reports whether the candidate duplicates any history record
// within the lookback window. Checks run cheapest first and short-circuit:
// exact external id, exact normalized title, identical (channel, title)
// pair, then title similarity and body similarity scans.
func (f *Filter) IsDuplicate(candidate models.ContentItem, history []models.PublishedRecord) bool {
	cutoff := f.now().AddDate(0, 0, -f.windowDays)
	th := thresholdsFor(f.strictness, f.contentType)

	candTitle := normalizeTitle(candidate.Title)
	candChannel := strings.ToLower(strings.TrimSpace(candidate.Channel))

	for _, rec := range history {
		if rec.PublishedAt.Before(cutoff) {
			continue
		}
		if candidate.ExternalID != "" && candidate.ExternalID == rec.ExternalID {
			return true
		}
		recTitle := normalizeTitle(rec.Title)
		if candTitle != "" && candTitle == recTitle {
			return true
		}
		if candChannel != "" && candChannel == strings.ToLower(strings.TrimSpace(rec.SourceChannel)) && candTitle == recTitle {
			return true
		}
	}

	// O(n) similarity scans only after all exact checks missed.
	for _, rec := range history {
		if rec.PublishedAt.Before(cutoff) {
			continue
		}
		if similarity.TitleSimilarity(candidate.Title, rec.Title) >= th.title {
			return true
		}
		if candidate.BodyExcerpt != "" && rec.BodyExcerpt != "" &&
			similarity.ContentSimilarity(candidate.BodyExcerpt, rec.BodyExcerpt) >= th.content {
			return true
		}
	}

	return false
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
