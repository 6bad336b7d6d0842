package models

import "time"

// PublishedRecord is a read-only view of a previously published item, used
// by the deduplication filter for comparison within the genre's lookback
// window and by the scheduler for the rolling daily limit.
type PublishedRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	GenreID       string    `gorm:"index;not null" json:"genre_id"`
	PublishedID   string    `gorm:"index" json:"published_id"` // id assigned by the publish collaborator
	Title         string    `gorm:"not null" json:"title"`
	ExternalID    string    `gorm:"index" json:"external_id"`
	SourceChannel string    `json:"source_channel"`
	BodyExcerpt   string    `gorm:"type:text" json:"body_excerpt"`
	PublishedAt   time.Time `gorm:"index;not null" json:"published_at"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GenreRun keeps per-genre scheduler bookkeeping: when the genre last
// completed a run and when it last failed (used for retry backoff).
type GenreRun struct {
	GenreID       string     `gorm:"primaryKey" json:"genre_id"`
	LastRunAt     *time.Time `json:"last_run_at"`
	LastFailureAt *time.Time `json:"last_failure_at"`
	LastOutcome   string     `json:"last_outcome"`
	LastReason    string     `json:"last_reason"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
