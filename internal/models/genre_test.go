package models

import (
	"testing"
	"time"
)

func validGenre() Genre {
	return Genre{
		ID:              "tech",
		ContentType:     ContentTypeArticle,
		MaxItemsPerRun:  3,
		DedupStrictness: StrictnessMedium,
		DedupWindowDays: 7,
		Schedule:        Schedule{Interval: time.Hour},
	}
}

func TestScheduleNextRunNeverRan(t *testing.T) {
	s := Schedule{Interval: time.Hour}
	if got := s.NextRun(time.Time{}); !got.IsZero() {
		t.Errorf("NextRun(zero) = %v, want zero (due immediately)", got)
	}
}

func TestScheduleNextRunInterval(t *testing.T) {
	lastRun := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	s := Schedule{Interval: 2 * time.Hour}
	want := lastRun.Add(2 * time.Hour)
	if got := s.NextRun(lastRun); !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestScheduleNextRunAnchor(t *testing.T) {
	lastRun := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	// Anchor later the same day: interval lands at 11:00, rolled to 18:30.
	s := Schedule{Interval: time.Hour, Anchor: "18:30"}
	want := time.Date(2026, 8, 20, 18, 30, 0, 0, time.UTC)
	if got := s.NextRun(lastRun); !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}

	// Anchor already past at the interval mark rolls to the next day.
	s = Schedule{Interval: time.Hour, Anchor: "08:30"}
	want = time.Date(2026, 8, 21, 8, 30, 0, 0, time.UTC)
	if got := s.NextRun(lastRun); !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestScheduleNextRunBadAnchorFallsBack(t *testing.T) {
	lastRun := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	s := Schedule{Interval: time.Hour, Anchor: "not-a-time"}
	want := lastRun.Add(time.Hour)
	if got := s.NextRun(lastRun); !got.Equal(want) {
		t.Errorf("NextRun = %v, want %v", got, want)
	}
}

func TestGenreValidate(t *testing.T) {
	if err := validGenre().Validate(); err != nil {
		t.Fatalf("valid genre rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Genre)
	}{
		{"missing id", func(g *Genre) { g.ID = "" }},
		{"bad content type", func(g *Genre) { g.ContentType = "podcast" }},
		{"zero max items", func(g *Genre) { g.MaxItemsPerRun = 0 }},
		{"negative daily limit", func(g *Genre) { g.DailyPostLimit = -1 }},
		{"zero window", func(g *Genre) { g.DedupWindowDays = 0 }},
		{"bad strictness", func(g *Genre) { g.DedupStrictness = "extreme" }},
		{"zero interval", func(g *Genre) { g.Schedule.Interval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := validGenre()
			tt.mutate(&g)
			if err := g.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
