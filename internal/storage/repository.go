package storage

import (
	"context"
	"time"

	"github.com/curator-agent/internal/models"
)

// Repository defines the interface for pipeline persistence: published
// history (which doubles as the dedup lookback and the rolling daily-limit
// counter) and per-genre scheduler bookkeeping.
type Repository interface {
	// Published history
	RecordPublished(ctx context.Context, rec *models.PublishedRecord) error
	ListPublished(ctx context.Context, genreID string, since time.Time) ([]models.PublishedRecord, error)
	CountPublishedSince(ctx context.Context, genreID string, since time.Time) (int64, error)

	// Scheduler bookkeeping. GetGenreRun returns a zero-valued run for
	// genres that never ran.
	GetGenreRun(ctx context.Context, genreID string) (*models.GenreRun, error)
	SaveGenreRun(ctx context.Context, run *models.GenreRun) error

	// Maintenance
	Migrate() error
	Close() error
}
