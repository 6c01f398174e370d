package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// rateLimiterEntry tracks a rate limiter and its last access time
type rateLimiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier (IP address or user ID) rate limiting
// using a token bucket per identifier, with LRU eviction to prevent
// unbounded memory growth from identifier churn.
type RateLimiter struct {
	limiters        map[string]*list.Element // identifier -> list element
	lruList         *list.List               // LRU list of *rateLimiterEntry
	mu              sync.Mutex
	rate            int
	burst           int
	maxEntries      int
	logger          *slog.Logger
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

const defaultMaxRateLimiterEntries = 10000

// NewRateLimiter creates a new rate limiter with automatic cleanup and LRU
// eviction, tracking at most 10,000 identifiers.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(requestsPerSecond, burst, defaultMaxRateLimiterEntries, logger)
}

// NewRateLimiterWithConfig creates a new rate limiter with a custom maximum
// number of tracked identifiers. When the limit is reached, least recently
// used entries are evicted. maxEntries of 0 means unlimited.
func NewRateLimiterWithConfig(requestsPerSecond, burst, maxEntries int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxEntries < 0 {
		maxEntries = defaultMaxRateLimiterEntries
	}

	rl := &RateLimiter{
		limiters:        make(map[string]*list.Element),
		lruList:         list.New(),
		rate:            requestsPerSecond,
		burst:           burst,
		maxEntries:      maxEntries,
		logger:          logger,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow checks if a request from the given identifier is allowed.
func (rl *RateLimiter) Allow(identifier string) bool {
	now := time.Now()

	rl.mu.Lock()

	elem, ok := rl.limiters[identifier]
	if ok {
		entry := elem.Value.(*rateLimiterEntry)
		entry.lastAccess = now
		rl.lruList.MoveToFront(elem)
		limiter := entry.limiter
		rl.mu.Unlock()
		return limiter.Allow()
	}

	// Evict the least recently used entry if at capacity
	if rl.maxEntries > 0 && len(rl.limiters) >= rl.maxEntries {
		oldest := rl.lruList.Back()
		if oldest != nil {
			evicted := oldest.Value.(*rateLimiterEntry)
			delete(rl.limiters, evicted.identifier)
			rl.lruList.Remove(oldest)
			rl.logger.Debug("Evicted rate limiter entry",
				"identifier_hash", hashForLogging(evicted.identifier))
		}
	}

	limiter := rate.NewLimiter(rate.Limit(rl.rate), rl.burst)
	entry := &rateLimiterEntry{
		identifier: identifier,
		limiter:    limiter,
		lastAccess: now,
	}
	rl.limiters[identifier] = rl.lruList.PushFront(entry)
	rl.mu.Unlock()

	return limiter.Allow()
}

// Size returns the number of identifiers currently tracked
func (rl *RateLimiter) Size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Stop terminates the background cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// cleanupLoop periodically removes limiters that have been idle for longer
// than the cleanup interval.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.cleanupInterval)
	removed := 0

	rl.mu.Lock()
	for elem := rl.lruList.Back(); elem != nil; {
		entry := elem.Value.(*rateLimiterEntry)
		if entry.lastAccess.After(cutoff) {
			// List is LRU ordered; everything further forward is newer
			break
		}
		prev := elem.Prev()
		delete(rl.limiters, entry.identifier)
		rl.lruList.Remove(elem)
		removed++
		elem = prev
	}
	rl.mu.Unlock()

	if removed > 0 {
		rl.logger.Debug("Cleaned up idle rate limiters", "removed", removed)
	}
}
