// Package ratelimit implements per-identifier fixed-window admission
// control with two interchangeable backends:
//
//   - Memory: counters in a process-local map with an owned eviction loop.
//     Right for single-instance deployments; state dies with the process.
//   - Mongo: counters in a shared transactional collection so concurrent
//     instances enforce one global window. Fails open on storage errors.
//
// The window is a fixed window, not a true sliding window: each identifier
// keeps {count, windowStart}, the count resets when the window has elapsed,
// and requests at the boundary of two windows can briefly see up to twice
// the limit. That approximation is intentional; the limiter protects
// against abuse, not correctness.
package ratelimit

import (
	"context"
	"time"
)

// RemainingUnknown is returned by RemainingRequests when the backend cannot
// answer cheaply (the distributed variant).
const RemainingUnknown = -1

// Policy is the admission policy shared by all backends.
type Policy struct {
	MaxRequests int           // admitted requests per window
	Window      time.Duration // window length
}

// DefaultPolicy mirrors the observed production policy: 10 requests/minute.
var DefaultPolicy = Policy{MaxRequests: 10, Window: time.Minute}

// Limiter is the admission-control contract.
//
// CheckLimit reports whether one more request from identifier is admitted,
// incrementing the window counter when it is. A denied request does not
// increment.
//
// RemainingRequests reports how many more requests the identifier may make
// in the current window, or RemainingUnknown when the backend does not
// track that cheaply.
type Limiter interface {
	CheckLimit(ctx context.Context, identifier string) bool
	RemainingRequests(ctx context.Context, identifier string) int
}
