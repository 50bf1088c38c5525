// Package sweep runs the periodic maintenance jobs: reaping expired
// sessions (with their blobs) and enforcing per-category blob retention.
//
// The sweeper is an explicitly owned, cancellable task: Run blocks until its
// context is cancelled and owns its tickers, so there is no detached timer
// outliving the component. In deployments with an external scheduler the
// individual Sweep* methods can be invoked directly instead.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-tryon-backend/internal/blob"
	"github.com/tbourn/go-tryon-backend/internal/events"
)

// SessionCleaner is the session-store surface the sweeper drives.
type SessionCleaner interface {
	// CleanupExpired deletes expired sessions and returns how many records
	// were removed.
	CleanupExpired(ctx context.Context) (int, error)
}

// Sweeper owns the periodic cleanup of sessions and aged blobs.
type Sweeper struct {
	Sessions SessionCleaner
	Blobs    blob.Store
	Events   *events.Emitter
	Log      zerolog.Logger

	// SessionEvery is the expired-session reaping cadence (e.g. hourly).
	SessionEvery time.Duration
	// BlobEvery is the blob retention cadence (e.g. every 6 hours).
	BlobEvery time.Duration
}

// Run executes both sweeps on their cadences until ctx is cancelled. Each
// tick is independent; a failing sweep is logged and the loop continues.
func (s *Sweeper) Run(ctx context.Context) {
	sessions := time.NewTicker(s.SessionEvery)
	defer sessions.Stop()
	blobs := time.NewTicker(s.BlobEvery)
	defer blobs.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sessions.C:
			s.SweepSessions(ctx)
		case <-blobs.C:
			s.SweepBlobs(ctx)
		}
	}
}

// SweepSessions reaps expired sessions once.
func (s *Sweeper) SweepSessions(ctx context.Context) {
	deleted, err := s.Sessions.CleanupExpired(ctx)
	if err != nil {
		s.Log.Error().Err(err).Msg("session sweep failed")
		return
	}
	s.Log.Info().Int("deleted", deleted).Msg("session sweep complete")
}

// SweepBlobs enforces retention for every blob category once. Failures are
// per-category; one bad prefix does not stop the others.
func (s *Sweeper) SweepBlobs(ctx context.Context) {
	now := time.Now().UTC()
	total := 0
	for _, category := range blob.Categories {
		cutoff := now.Add(-blob.Retention(category))
		n, err := s.Blobs.DeleteOlderThan(ctx, category+"/", cutoff)
		total += n
		if err != nil {
			s.Log.Error().Err(err).Str("category", category).Msg("blob sweep failed")
			continue
		}
	}
	s.Events.Emit(events.StorageCleanup, "", "Sweeper.SweepBlobs", map[string]any{
		"deleted_count": total,
	})
	s.Log.Info().Int("deleted", total).Msg("blob sweep complete")
}
