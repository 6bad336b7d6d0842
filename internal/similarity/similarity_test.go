package similarity

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTitleSimilarityIdentity(t *testing.T) {
	titles := []string{"", "AI breakthrough", "  Budget 2024 announced  ", "Go 1.24 released"}
	for _, title := range titles {
		if got := TitleSimilarity(title, title); got != 1.0 {
			t.Errorf("TitleSimilarity(%q, %q) = %v, want 1.0", title, title, got)
		}
	}
}

func TestTitleSimilaritySymmetry(t *testing.T) {
	pairs := [][2]string{
		{"Budget 2024 announced", "Budget 2024 is announced"},
		{"AI breakthrough", "AI setback"},
		{"hello", "world"},
		{"", "nonempty"},
	}
	for _, p := range pairs {
		ab := TitleSimilarity(p[0], p[1])
		ba := TitleSimilarity(p[1], p[0])
		if !almostEqual(ab, ba) {
			t.Errorf("TitleSimilarity(%q, %q) = %v but reversed = %v", p[0], p[1], ab, ba)
		}
	}
}

func TestTitleSimilarityNormalization(t *testing.T) {
	if got := TitleSimilarity("  AI Breakthrough ", "ai breakthrough"); got != 1.0 {
		t.Errorf("case/whitespace-insensitive match = %v, want 1.0", got)
	}
}

func TestTitleSimilarityKnownDistance(t *testing.T) {
	// Three edits (inserting "is ") over a 24-rune title: 1 - 3/24 = 0.875.
	got := TitleSimilarity("Budget 2024 announced", "Budget 2024 is announced")
	if !almostEqual(got, 0.875) {
		t.Errorf("TitleSimilarity = %v, want 0.875", got)
	}
}

func TestTitleSimilarityBounds(t *testing.T) {
	pairs := [][2]string{
		{"abc", "xyz"},
		{"a", "completely different and much longer title"},
		{"", "x"},
	}
	for _, p := range pairs {
		got := TitleSimilarity(p[0], p[1])
		if got < 0 || got > 1 {
			t.Errorf("TitleSimilarity(%q, %q) = %v out of [0,1]", p[0], p[1], got)
		}
	}
}

func TestContentSimilarityEmpty(t *testing.T) {
	if got := ContentSimilarity("", "some words here"); got != 0 {
		t.Errorf("empty left side = %v, want 0", got)
	}
	if got := ContentSimilarity("some words here", ""); got != 0 {
		t.Errorf("empty right side = %v, want 0", got)
	}
	// Single-char tokens are ignored, so this side has no tokens at all.
	if got := ContentSimilarity("a b c", "some words here"); got != 0 {
		t.Errorf("only short tokens = %v, want 0", got)
	}
}

func TestContentSimilarityOverlap(t *testing.T) {
	// Token sets: {the, market, crashed} vs {the, market, recovered}.
	// Intersection 2, union 4 => 0.5.
	got := ContentSimilarity("the market crashed", "the market recovered")
	if !almostEqual(got, 0.5) {
		t.Errorf("ContentSimilarity = %v, want 0.5", got)
	}
}

func TestContentSimilarityIdenticalSets(t *testing.T) {
	// Duplicate tokens collapse per side before comparison.
	got := ContentSimilarity("go go gophers", "gophers go")
	if !almostEqual(got, 1.0) {
		t.Errorf("ContentSimilarity = %v, want 1.0", got)
	}
}
