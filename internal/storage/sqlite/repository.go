package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/curator-agent/internal/models"
	"github.com/curator-agent/internal/storage"
)

// Repository implements storage.Repository using SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// DB exposes the underlying gorm connection so the lock/cache store can
// share it.
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&models.PublishedRecord{},
		&models.GenreRun{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Published history

func (r *Repository) RecordPublished(ctx context.Context, rec *models.PublishedRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *Repository) ListPublished(ctx context.Context, genreID string, since time.Time) ([]models.PublishedRecord, error) {
	var records []models.PublishedRecord
	if err := r.db.WithContext(ctx).
		Where("genre_id = ? AND published_at >= ?", genreID, since).
		Order("published_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *Repository) CountPublishedSince(ctx context.Context, genreID string, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PublishedRecord{}).
		Where("genre_id = ? AND published_at >= ?", genreID, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Scheduler bookkeeping

func (r *Repository) GetGenreRun(ctx context.Context, genreID string) (*models.GenreRun, error) {
	var run models.GenreRun
	err := r.db.WithContext(ctx).Where("genre_id = ?", genreID).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.GenreRun{GenreID: genreID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Repository) SaveGenreRun(ctx context.Context, run *models.GenreRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

// Ensure Repository implements storage.Repository
var _ storage.Repository = (*Repository)(nil)
