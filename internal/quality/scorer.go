// Package quality scores fetched content items with fixed additive
// heuristics. The scorer carries no acceptance policy of its own; the
// selector applies the genre-level threshold so the scorer stays usable
// for diagnostics.
package quality

import (
	"strings"
	"unicode/utf8"

	"github.com/curator-agent/internal/models"
)

// Weights applied per heuristic. Missing fields simply forfeit their weight.
const (
	weightTitleLength = 0.3
	weightBodyLength  = 0.4
	weightImage       = 0.1
	weightPublishedAt = 0.1
	weightSourceRef   = 0.1

	minTitleLen = 5
	maxTitleLen = 150
	minBodyLen  = 50
)

// Score maps an item to a quality score in [0,1]. It is deterministic and
// has no error conditions.
func Score(item models.ContentItem) float64 {
	score := 0.0

	titleLen := utf8.RuneCountInString(strings.TrimSpace(item.Title))
	if titleLen >= minTitleLen && titleLen <= maxTitleLen {
		score += weightTitleLength
	}
	if utf8.RuneCountInString(strings.TrimSpace(item.BodyExcerpt)) >= minBodyLen {
		score += weightBodyLength
	}
	if item.ImagePresent {
		score += weightImage
	}
	if item.PublishedAt != nil && !item.PublishedAt.IsZero() {
		score += weightPublishedAt
	}
	if strings.TrimSpace(item.SourceRef) != "" {
		score += weightSourceRef
	}

	if score > 1 {
		score = 1
	}
	return score
}
