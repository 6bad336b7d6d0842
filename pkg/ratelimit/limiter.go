package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	return limiter.Allow()
}

// Default rate limiter names
const (
	LimiterRSS     = "rss"
	LimiterYouTube = "youtube"
	LimiterScrape  = "scrape"
	LimiterPublish = "publish"
)

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	m := NewMultiLimiter()

	// RSS: no hard quota, but be polite - 1 per second, burst 10
	m.AddLimiter(LimiterRSS, 1, 10)

	// YouTube Data API: 10k quota units per day; search costs 100 units,
	// so ~100 searches per day = ~0.0012 per second, burst 5
	m.AddLimiter(LimiterYouTube, 100.0/(24*60*60), 5)

	// HTML scraping: be conservative against origin servers
	m.AddLimiter(LimiterScrape, 0.5, 5)

	// Publish collaborator: 60 requests per minute, burst 5
	m.AddLimiter(LimiterPublish, 1, 5)

	return m
}
