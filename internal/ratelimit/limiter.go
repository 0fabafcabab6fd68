package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Verdict is the outcome of one attempted operation.
type Verdict struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter bounds how many operations a caller key may perform per rolling
// window. It is a window-by-reset approximation: counters are in-memory,
// advisory, and reset on process restart.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]*window
	now     func() time.Time
}

func NewLimiter(limit int, windowDur time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if windowDur <= 0 {
		windowDur = time.Hour
	}
	return &Limiter{
		limit:   limit,
		window:  windowDur,
		entries: make(map[string]*window),
		now:     time.Now,
	}
}

// Admit records one attempt for the key and reports the verdict. The first
// request for a key, or the first after the window elapses, starts a fresh
// window; within a window the count grows until the limit denies.
func (l *Limiter) Admit(key string) Verdict {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.entries[key]
	if !ok || !now.Before(w.resetAt) {
		l.entries[key] = &window{count: 1, resetAt: now.Add(l.window)}
		return Verdict{Allowed: true, Remaining: l.limit - 1}
	}

	if w.count >= l.limit {
		return Verdict{Allowed: false, RetryAfter: w.resetAt.Sub(now)}
	}

	w.count++
	return Verdict{Allowed: true, Remaining: l.limit - w.count}
}

// StartJanitor drops expired windows in the background so long-running kiosks
// do not accumulate one entry per visitor forever.
func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.dropExpired()
			}
		}
	}()
}

func (l *Limiter) dropExpired() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for key, w := range l.entries {
		if !now.Before(w.resetAt) {
			delete(l.entries, key)
		}
	}
}

// SetClock injects a deterministic clock for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Size reports the number of tracked keys.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
