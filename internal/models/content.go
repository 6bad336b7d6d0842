package models

import "time"

// ContentItem is a unit fetched from a source. Items are created by fetch
// adapters, never mutated, and discarded after the run unless selected.
type ContentItem struct {
	ExternalID   string     // optional, e.g. a video id
	Title        string
	BodyExcerpt  string
	URL          string     // optional
	PublishedAt  *time.Time // optional
	SourceRef    string     // the source identifier the item came from
	ImagePresent bool
	Channel      string // optional, video only
}

// Candidate pairs a fetched item with its quality score in [0,1].
type Candidate struct {
	Item         ContentItem
	QualityScore float64
}
