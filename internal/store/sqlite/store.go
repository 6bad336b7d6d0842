// Package sqlite backs the execution lock and candidate-count cache with
// SQLite so multiple processes sharing the database observe the same
// single-flight guarantee.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/curator-agent/internal/store"
)

// executionLock is the persisted lock row. One row per genre; validity is
// decided by expires_at, never by row presence alone.
type executionLock struct {
	GenreID    string    `gorm:"primaryKey"`
	Token      string    `gorm:"not null"`
	AcquiredAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"index;not null"`
}

func (executionLock) TableName() string { return "execution_locks" }

// candidateCount is the persisted counter-cache row.
type candidateCount struct {
	GenreID   string    `gorm:"primaryKey"`
	Count     int       `gorm:"not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
}

func (candidateCount) TableName() string { return "candidate_counts" }

// Store implements store.LockStore and store.CounterCache on a gorm DB.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New creates the store on an open gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates the backing tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&executionLock{}, &candidateCount{})
}

// TryAcquire implements store.LockStore. The check-and-insert runs inside a
// transaction; SQLite's single-writer model makes it a compare-and-set.
func (s *Store) TryAcquire(ctx context.Context, genreID string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// An expired lock is the same as no lock.
		if err := tx.Where("genre_id = ? AND expires_at <= ?", genreID, now).
			Delete(&executionLock{}).Error; err != nil {
			return err
		}

		var existing executionLock
		err := tx.Where("genre_id = ?", genreID).First(&existing).Error
		if err == nil {
			return errLockHeld
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		return tx.Create(&executionLock{
			GenreID:    genreID,
			Token:      token,
			AcquiredAt: now,
			ExpiresAt:  now.Add(ttl),
		}).Error
	})
	if errors.Is(err, errLockHeld) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lock for genre %s: %w", genreID, err)
	}
	return token, true, nil
}

var errLockHeld = errors.New("lock held")

// Release implements store.LockStore.
func (s *Store) Release(ctx context.Context, genreID, token string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("genre_id = ? AND token = ? AND expires_at > ?", genreID, token, s.now()).
		Delete(&executionLock{})
	if result.Error != nil {
		return false, fmt.Errorf("failed to release lock for genre %s: %w", genreID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Refresh implements store.CounterCache.
func (s *Store) Refresh(ctx context.Context, genreID string, count int, ttl time.Duration) error {
	row := candidateCount{
		GenreID:   genreID,
		Count:     count,
		ExpiresAt: s.now().Add(ttl),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

// Get implements store.CounterCache.
func (s *Store) Get(ctx context.Context, genreID string) (int, bool, error) {
	var row candidateCount
	err := s.db.WithContext(ctx).Where("genre_id = ?", genreID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !row.ExpiresAt.After(s.now()) {
		return 0, false, nil
	}
	return row.Count, true, nil
}

var (
	_ store.LockStore    = (*Store)(nil)
	_ store.CounterCache = (*Store)(nil)
)
