// Package blob defines the binary object store consumed by the session and
// try-on services, together with the bucket layout and retention rules the
// sweep enforces. Two implementations exist: an S3-backed store for
// production and an in-memory store for development and tests.
package blob

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when the referenced object does not exist.
var ErrNotFound = errors.New("blob not found")

// Object categories. Every stored object lives under
// {category}/{sessionID}/{filename} and inherits the category's retention.
const (
	CategoryUploads   = "uploads"
	CategoryGenerated = "generated"
	CategoryTemp      = "temp"
	CategoryCache     = "cache"
	CategoryResults   = "results"
)

// Retention returns how long objects in a category are kept before the sweep
// removes them. Unknown categories get the shortest retention.
func Retention(category string) time.Duration {
	switch category {
	case CategoryUploads:
		return 30 * 24 * time.Hour
	case CategoryGenerated:
		return 24 * time.Hour
	case CategoryTemp:
		return 7 * 24 * time.Hour
	case CategoryCache:
		return 365 * 24 * time.Hour
	case CategoryResults:
		return 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Categories lists every managed prefix, in sweep order.
var Categories = []string{
	CategoryUploads,
	CategoryGenerated,
	CategoryTemp,
	CategoryCache,
	CategoryResults,
}

// ObjectPath builds the canonical storage path for an object.
func ObjectPath(category, sessionID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", category, sessionID, filename)
}

// Store is the blob store contract. URLs returned by Put are opaque to
// callers: they are handed back unchanged to Get, Delete, and MakePublic.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put writes bytes under path and returns the object's URL.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)

	// Get resolves a URL previously returned by Put back to its bytes.
	// Returns ErrNotFound when the object does not exist.
	Get(ctx context.Context, url string) ([]byte, error)

	// Delete removes the object. It reports whether the object existed;
	// deleting a missing object is not an error.
	Delete(ctx context.Context, url string) (bool, error)

	// MakePublic marks the object readable without credentials.
	MakePublic(ctx context.Context, url string) error

	// DeleteOlderThan removes every object under prefix whose modification
	// time precedes cutoff, returning the number deleted. Used by the
	// retention sweep; per-object failures are skipped, not fatal.
	DeleteOlderThan(ctx context.Context, prefix string, cutoff time.Time) (int, error)
}
