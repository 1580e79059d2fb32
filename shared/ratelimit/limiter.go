// Package ratelimit implements client-side request admission control.
// Quotas here exist to keep Quill inside upstream provider limits, so the
// default window slides with the oldest retained request the same way the
// provider-side quotas do.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Result reports one admission decision. RetryAfter is set only on denial.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter tracks request timestamps per key inside a window.
type Limiter struct {
	limit  int
	window time.Duration
	// fixed anchors ResetAt to a window boundary instead of the oldest
	// retained timestamp; sliding is the default.
	fixed bool
	now   func() time.Time

	mu   sync.Mutex
	keys map[string][]time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// FixedWindow switches the limiter to fixed-window reset semantics.
func FixedWindow() Option {
	return func(l *Limiter) { l.fixed = true }
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a sliding-window limiter admitting at most limit requests
// per window for each key.
func New(limit int, window time.Duration, opts ...Option) *Limiter {
	l := &Limiter{
		limit:  limit,
		window: window,
		now:    time.Now,
		keys:   make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check admits or denies one request for key. On admission the request is
// recorded, so a retained list never exceeds limit entries in the window.
func (l *Limiter) Check(key string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	kept := prune(l.keys[key], now.Add(-l.window))

	if len(kept) < l.limit {
		kept = append(kept, now)
		l.keys[key] = kept
		return Result{
			Allowed:   true,
			Remaining: l.limit - len(kept),
			ResetAt:   l.resetAt(kept, now),
		}
	}

	l.keys[key] = kept
	reset := l.resetAt(kept, now)
	retry := reset.Sub(now)
	if retry < 0 {
		retry = 0
	}
	return Result{
		Allowed:    false,
		Remaining:  0,
		ResetAt:    reset,
		RetryAfter: retry,
	}
}

// Reset forgets all recorded requests for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	delete(l.keys, key)
	l.mu.Unlock()
}

// Cleanup drops keys whose retained list has emptied, bounding memory for
// long-lived limiters with churning keys.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, stamps := range l.keys {
		kept := prune(stamps, cutoff)
		if len(kept) == 0 {
			delete(l.keys, key)
			continue
		}
		l.keys[key] = kept
	}
}

func (l *Limiter) resetAt(kept []time.Time, now time.Time) time.Time {
	if len(kept) == 0 {
		return now.Add(l.window)
	}
	oldest := kept[0]
	if l.fixed {
		// Fixed variant: the whole window opens again at the boundary the
		// oldest request started.
		return oldest.Truncate(l.window).Add(l.window)
	}
	return oldest.Add(l.window)
}

func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// ── Per-category limiter set ──────────────────────────────────────────────────

// Category names one operation class with its own quota. Exhausting one
// category never blocks another.
type Category string

const (
	CategorySingle Category = "single"
	CategoryBatch  Category = "batch"
	CategoryVision Category = "vision"
)

// Default ceilings: batch is the tightest (each batch fans out several
// upstream calls), vision next, single generation the loosest.
var defaults = map[Category]struct {
	limit  int
	window time.Duration
}{
	CategorySingle: {15, time.Minute},
	CategoryVision: {8, time.Minute},
	CategoryBatch:  {3, 5 * time.Minute},
}

// Set is one limiter per category. All categories are checked under the
// same session-derived key.
type Set struct {
	limiters map[Category]*Limiter
}

// NewSet builds a Set with the default per-category quotas.
func NewSet(opts ...Option) *Set {
	s := &Set{limiters: make(map[Category]*Limiter, len(defaults))}
	for cat, d := range defaults {
		s.limiters[cat] = New(d.limit, d.window, opts...)
	}
	return s
}

// Configure overrides one category's quota. Must be called before use.
func (s *Set) Configure(cat Category, limit int, window time.Duration, opts ...Option) {
	s.limiters[cat] = New(limit, window, opts...)
}

// Check runs the admission check for one category.
func (s *Set) Check(cat Category, key string) Result {
	l, ok := s.limiters[cat]
	if !ok {
		// Unknown category: let it through rather than dead-letter the job.
		return Result{Allowed: true}
	}
	return l.Check(key)
}

// Reset clears key across every category.
func (s *Set) Reset(key string) {
	for _, l := range s.limiters {
		l.Reset(key)
	}
}

// Cleanup prunes every category.
func (s *Set) Cleanup() {
	for _, l := range s.limiters {
		l.Cleanup()
	}
}

// SessionKey derives the shared limiter key for one session.
func SessionKey(sessionID string) string {
	if sessionID == "" {
		sessionID = "anonymous"
	}
	return fmt.Sprintf("session:%s", sessionID)
}
