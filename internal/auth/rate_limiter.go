package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBucketIdle is how long an unused bucket is kept before cleanup drops it
const DefaultBucketIdle = 24 * time.Hour

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per user
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	maxIdle time.Duration
	now     func() time.Time
}

// NewRateLimiter allows requestsPerMin per user with the given burst
func NewRateLimiter(requestsPerMin, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(time.Minute / time.Duration(max(requestsPerMin, 1))),
		burst:   burst,
		maxIdle: DefaultBucketIdle,
		now:     time.Now,
	}
}

// Allow consumes one token for userID
func (rl *RateLimiter) Allow(userID string) (bool, error) {
	return rl.bucket(userID).Allow(), nil
}

// Reset refills the bucket of userID
func (rl *RateLimiter) Reset(userID string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, userID)
	return nil
}

// SetMaxIdle changes how long an unused bucket survives cleanup
func (rl *RateLimiter) SetMaxIdle(d time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if d > 0 {
		rl.maxIdle = d
	}
}

// StartCleanup prunes idle buckets every interval until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()
}

// Len reports how many users currently hold a bucket
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// cleanup removes buckets untouched for longer than maxIdle and returns how many went
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.maxIdle)
	removed := 0
	for userID, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, userID)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) bucket(userID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[userID] = b
	}
	b.lastSeen = rl.now()
	return b.limiter
}
