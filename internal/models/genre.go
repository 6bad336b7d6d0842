package models

import (
	"fmt"
	"time"
)

// ContentType identifies the kind of items a genre curates.
type ContentType string

const (
	ContentTypeArticle ContentType = "article"
	ContentTypeVideo   ContentType = "video"
)

// DedupStrictness controls how aggressively duplicates are detected.
type DedupStrictness string

const (
	StrictnessLow    DedupStrictness = "low"
	StrictnessMedium DedupStrictness = "medium"
	StrictnessHigh   DedupStrictness = "high"
)

// Schedule describes when a genre becomes due for a run: a fixed interval
// between runs plus an optional time-of-day anchor ("HH:MM") the next run
// is aligned to.
type Schedule struct {
	Interval time.Duration
	Anchor   string
}

// NextRun computes the earliest time a run is allowed after lastRun.
// A zero lastRun means the genre has never run and is due immediately.
func (s Schedule) NextRun(lastRun time.Time) time.Time {
	if lastRun.IsZero() {
		return time.Time{}
	}
	next := lastRun.Add(s.Interval)
	if s.Anchor == "" {
		return next
	}
	var hh, mm int
	if _, err := fmt.Sscanf(s.Anchor, "%d:%d", &hh, &mm); err != nil {
		return next
	}
	anchored := time.Date(next.Year(), next.Month(), next.Day(), hh, mm, 0, 0, next.Location())
	if anchored.Before(next) {
		anchored = anchored.Add(24 * time.Hour)
	}
	return anchored
}

// Genre is a named content policy: what to fetch, how to filter it, and how
// often to run. Genres are read-only to the pipeline; a run operates on an
// immutable snapshot taken when the run starts.
type Genre struct {
	ID                 string
	Name               string
	ContentType        ContentType
	Keywords           []string
	Sources            []string
	Schedule           Schedule
	DailyPostLimit     int // 0 = unlimited, enforced over a rolling 24h window
	MaxItemsPerRun     int
	AutoPostingEnabled bool
	DedupStrictness    DedupStrictness
	DedupWindowDays    int
}

// Validate checks the invariants the pipeline relies on.
func (g Genre) Validate() error {
	if g.ID == "" {
		return fmt.Errorf("genre id is required")
	}
	if g.ContentType != ContentTypeArticle && g.ContentType != ContentTypeVideo {
		return fmt.Errorf("genre %s: unknown content type %q", g.ID, g.ContentType)
	}
	if g.MaxItemsPerRun < 1 {
		return fmt.Errorf("genre %s: max_items_per_run must be >= 1", g.ID)
	}
	if g.DailyPostLimit < 0 {
		return fmt.Errorf("genre %s: daily_post_limit must be >= 0", g.ID)
	}
	if g.DedupWindowDays < 1 {
		return fmt.Errorf("genre %s: dedup_window_days must be >= 1", g.ID)
	}
	switch g.DedupStrictness {
	case StrictnessLow, StrictnessMedium, StrictnessHigh:
	default:
		return fmt.Errorf("genre %s: unknown dedup strictness %q", g.ID, g.DedupStrictness)
	}
	if g.Schedule.Interval <= 0 {
		return fmt.Errorf("genre %s: schedule interval must be positive", g.ID)
	}
	return nil
}
