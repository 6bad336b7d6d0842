// Package store defines the two narrow TTL-keyed stores the scheduler
// relies on: a per-genre execution lock with compare-and-set acquisition and
// a per-genre candidate-count cache. Expired entries are indistinguishable
// from absent ones.
package store

import (
	"context"
	"time"
)

// LockStore grants at most one valid (non-expired) lock per genre at any
// time. Acquisition is atomic against the backing store; a crashed holder's
// lock heals itself by expiring.
type LockStore interface {
	// TryAcquire returns an opaque release token and ok=true when no valid
	// lock existed for the genre.
	TryAcquire(ctx context.Context, genreID string, ttl time.Duration) (token string, ok bool, err error)

	// Release removes the lock if the token still matches. ok=false means
	// the lock had already expired or was never held with that token.
	Release(ctx context.Context, genreID, token string) (bool, error)
}

// CounterCache caches the candidate count per genre. A missing or expired
// entry means "unknown", never zero; the scheduler must treat unknown as
// "must check".
type CounterCache interface {
	Refresh(ctx context.Context, genreID string, count int, ttl time.Duration) error
	Get(ctx context.Context, genreID string) (count int, known bool, err error)
}
