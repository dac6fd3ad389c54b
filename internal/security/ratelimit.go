package security

import (
	"sync"
	"time"

	"github.com/watchkeep/watchkeep/internal/clock"
)

// RateLimiter enforces a fixed-size sliding window per string identifier.
// Counters for distinct identifiers are independent.
type RateLimiter struct {
	mu     sync.Mutex
	clock  clock.Clock
	max    int
	window time.Duration
	hits   map[string][]time.Time
}

func NewRateLimiter(clk clock.Clock, max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		clock:  clk,
		max:    max,
		window: window,
		hits:   make(map[string][]time.Time),
	}
}

// Allow records one request for identifier and reports whether it fits in
// the window. Safe for concurrent callers.
func (r *RateLimiter) Allow(identifier string) bool {
	now := r.clock.Now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	recent := r.hits[identifier][:0]
	for _, t := range r.hits[identifier] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.max {
		r.hits[identifier] = recent
		return false
	}

	r.hits[identifier] = append(recent, now)
	return true
}

// Reset drops the window for identifier, or every identifier when empty.
func (r *RateLimiter) Reset(identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identifier == "" {
		r.hits = make(map[string][]time.Time)
		return
	}
	delete(r.hits, identifier)
}
