package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepInterval is how often the eviction loop scans for idle entries.
const sweepInterval = 5 * time.Minute

// entry holds one identifier's window state.
type entry struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

// MemoryLimiter is the process-local fixed-window limiter.
//
// Entries are created on demand and stored in a map guarded by a mutex. An
// owned background loop evicts entries untouched for more than two window
// durations, bounding memory. The limiter must be stopped with Stop when no
// longer needed; the eviction goroutine is tied to the limiter's lifetime,
// not the process's.
//
// This type is safe for concurrent use.
type MemoryLimiter struct {
	policy Policy

	mu      sync.Mutex
	entries map[string]*entry

	stop     chan struct{}
	stopOnce sync.Once

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewMemoryLimiter constructs a MemoryLimiter with the given policy and
// starts its eviction loop.
func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	if policy.MaxRequests < 1 {
		policy.MaxRequests = DefaultPolicy.MaxRequests
	}
	if policy.Window <= 0 {
		policy.Window = DefaultPolicy.Window
	}
	l := &MemoryLimiter{
		policy:  policy,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
		now:     time.Now,
	}
	go l.sweepLoop()
	return l
}

// CheckLimit admits or denies one request from identifier.
//
// A first request in a window (no entry, or an entry whose window has
// elapsed) resets the counter to 1 and is admitted. Within the window,
// requests are admitted and counted until MaxRequests is reached; beyond
// that they are denied without incrementing.
func (l *MemoryLimiter) CheckLimit(_ context.Context, identifier string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identifier]
	if !ok {
		l.entries[identifier] = &entry{count: 1, windowStart: now, lastSeen: now}
		return true
	}
	e.lastSeen = now

	if now.Sub(e.windowStart) > l.policy.Window {
		e.count = 1
		e.windowStart = now
		return true
	}
	if e.count >= l.policy.MaxRequests {
		return false
	}
	e.count++
	return true
}

// RemainingRequests reports the requests left in identifier's current
// window. Identifiers with no entry, or whose window has elapsed, have the
// full budget.
func (l *MemoryLimiter) RemainingRequests(_ context.Context, identifier string) int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[identifier]
	if !ok || now.Sub(e.windowStart) > l.policy.Window {
		return l.policy.MaxRequests
	}
	rem := l.policy.MaxRequests - e.count
	if rem < 0 {
		rem = 0
	}
	return rem
}

// Stop terminates the eviction loop. Safe to call more than once.
func (l *MemoryLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// sweepLoop periodically evicts entries idle for more than two windows.
func (l *MemoryLimiter) sweepLoop() {
	t := time.NewTicker(sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-t.C:
			l.evictIdle()
		}
	}
}

func (l *MemoryLimiter) evictIdle() {
	now := l.now()
	maxIdle := 2 * l.policy.Window

	l.mu.Lock()
	for id, e := range l.entries {
		if now.Sub(e.lastSeen) > maxIdle {
			delete(l.entries, id)
		}
	}
	l.mu.Unlock()
}
