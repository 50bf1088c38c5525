// Package services – SessionService
//
// This file implements SessionService, which owns the lifecycle of anonymous
// try-on sessions: creation, lazy-expiry reads, atomic photo appends, expiry
// extension, cascading deletion, and the expired-session sweep. Every
// lifecycle change emits a typed pipeline event.
//
// Expiry is evaluated lazily: a session whose expiry has passed is reported
// as absent by every read path, even while the physical record survives
// until the sweep removes it. No read path ever trusts "exists in storage"
// as "is valid".
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-tryon-backend/internal/blob"
	"github.com/tbourn/go-tryon-backend/internal/domain"
	"github.com/tbourn/go-tryon-backend/internal/events"
	"github.com/tbourn/go-tryon-backend/internal/repo"
)

// SessionRepo defines the repository contract required by SessionService.
// Implementations are responsible for persistence of session aggregates.
type SessionRepo interface {
	// CreateSession inserts a new active session expiring after lifetime.
	CreateSession(ctx context.Context, db *gorm.DB, lifetime time.Duration) (*domain.Session, error)

	// GetSession fetches a live session; expired records are ErrNotFound.
	GetSession(ctx context.Context, db *gorm.DB, id string, now time.Time) (*domain.Session, error)

	// AddPhoto appends one photo row to the session's collection.
	AddPhoto(ctx context.Context, db *gorm.DB, sessionID string, photo domain.SessionPhoto) (*domain.SessionPhoto, error)

	// ListPhotos returns the session's photos in upload order.
	ListPhotos(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.SessionPhoto, error)

	// ExtendSession advances the expiry by delta and returns the new expiry.
	ExtendSession(ctx context.Context, db *gorm.DB, id string, delta time.Duration, now time.Time) (time.Time, error)

	// ListExpired returns not-yet-deleted sessions whose expiry has passed.
	ListExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Session, error)

	// DeleteSession removes the session record and its photo rows.
	DeleteSession(ctx context.Context, db *gorm.DB, id string) error
}

// SessionService provides session lifecycle operations. It coordinates the
// record store, the blob store (for cascading deletion), and the event
// emitter.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the session repository used by this service.
	Repo SessionRepo
	// Blobs is used to cascade-delete uploaded objects with their session.
	Blobs blob.Store
	// Events receives lifecycle events; may be nil.
	Events *events.Emitter

	// Lifetime is the initial duration of a new session.
	Lifetime time.Duration

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewSessionService constructs a SessionService with the given collaborators.
func NewSessionService(db *gorm.DB, r SessionRepo, blobs blob.Store, em *events.Emitter, lifetime time.Duration) *SessionService {
	return &SessionService{
		DB:       db,
		Repo:     r,
		Blobs:    blobs,
		Events:   em,
		Lifetime: lifetime,
		now:      time.Now,
	}
}

// Create starts a new anonymous session and returns it along with the number
// of seconds until it expires.
func (s *SessionService) Create(ctx context.Context) (*domain.Session, int, error) {
	sess, err := s.Repo.CreateSession(ctx, s.DB, s.Lifetime)
	if err != nil {
		return nil, 0, &StorageError{Op: "create session", Err: err}
	}
	s.Events.Emit(events.SessionCreated, sess.ID, "SessionService.Create", map[string]any{
		"expires_in_seconds": int(s.Lifetime.Seconds()),
	})
	return sess, int(s.Lifetime.Seconds()), nil
}

// Get returns the session identified by id, or ErrSessionNotFound when it is
// absent or expired. Callers cannot distinguish the two cases.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("session.id", id)),
	)
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return nil, ErrSessionNotFound
	}
	sess, err := s.Repo.GetSession(ctx, s.DB, id, s.timeNow())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, &StorageError{Op: "get session", Err: err}
	}
	return sess, nil
}

// IsValid reports whether the session exists and has not expired.
func (s *SessionService) IsValid(ctx context.Context, id string) bool {
	_, err := s.Get(ctx, id)
	return err == nil
}

// AddPhoto appends a photo reference to a live session. The append is a
// child-row insert, so concurrent uploads to the same session are all
// durably recorded. Fails with ErrInvalidSession when the session is absent
// or expired, and ErrInvalidArgument on malformed input.
func (s *SessionService) AddPhoto(ctx context.Context, id string, photo domain.SessionPhoto) (*domain.SessionPhoto, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "AddPhoto",
		trace.WithAttributes(
			attribute.String("session.id", id),
			attribute.String("photo.type", photo.Type),
		),
	)
	defer span.End()

	if strings.TrimSpace(photo.URL) == "" {
		return nil, ErrInvalidArgument
	}
	switch photo.Type {
	case domain.PhotoTypeUser, domain.PhotoTypeGarment:
	default:
		return nil, ErrInvalidArgument
	}
	switch photo.View {
	case "", domain.ViewFront, domain.ViewSide, domain.ViewBack:
	default:
		return nil, ErrInvalidArgument
	}

	if _, err := s.Get(ctx, id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	added, err := s.Repo.AddPhoto(ctx, s.DB, id, photo)
	if err != nil {
		return nil, &StorageError{Op: "add photo", Err: err}
	}
	s.Events.Emit(events.PhotoUploaded, id, "SessionService.AddPhoto", map[string]any{
		"photo_type": added.Type,
		"photo_view": added.View,
	})
	return added, nil
}

// Extend pushes the session's expiry forward by additional and returns the
// new expiry. The expiry only ever moves forward; there is no way to shorten
// a session. Fails with ErrSessionNotFound when the session is absent or
// expired, and ErrInvalidArgument for non-positive extensions.
func (s *SessionService) Extend(ctx context.Context, id string, additional time.Duration) (time.Time, error) {
	if additional <= 0 {
		return time.Time{}, ErrInvalidArgument
	}
	next, err := s.Repo.ExtendSession(ctx, s.DB, id, additional, s.timeNow())
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return time.Time{}, ErrSessionNotFound
		}
		return time.Time{}, &StorageError{Op: "extend session", Err: err}
	}
	return next, nil
}

// Photos returns the session's photo references in upload order. An absent
// or expired session yields an empty list, not an error.
func (s *SessionService) Photos(ctx context.Context, id string) ([]domain.SessionPhoto, error) {
	if _, err := s.Get(ctx, id); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return []domain.SessionPhoto{}, nil
		}
		return nil, err
	}
	photos, err := s.Repo.ListPhotos(ctx, s.DB, id)
	if err != nil {
		return nil, &StorageError{Op: "list photos", Err: err}
	}
	return photos, nil
}

// Delete removes the session and cascades deletion of every blob its photos
// reference. Blob deletion is best-effort: individual failures are recorded
// but do not abort the rest. It reports true only when the record deletion
// itself succeeded.
func (s *SessionService) Delete(ctx context.Context, id string) (bool, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.String("session.id", id)),
	)
	defer span.End()

	photos, err := s.Repo.ListPhotos(ctx, s.DB, id)
	if err != nil {
		return false, &StorageError{Op: "list photos for delete", Err: err}
	}
	blobFailures := s.deleteBlobs(ctx, photos)

	if err := s.Repo.DeleteSession(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, &StorageError{Op: "delete session", Err: err}
	}
	s.Events.Emit(events.SessionDeleted, id, "SessionService.Delete", map[string]any{
		"photo_count":   len(photos),
		"blob_failures": blobFailures,
	})
	return true, nil
}

// CleanupExpired deletes every expired session and its blobs, returning the
// number of session records deleted. Failures on individual sessions are
// recorded and skipped; one bad session never aborts the sweep of the rest.
// Designed to be invoked on a fixed interval by the sweeper.
func (s *SessionService) CleanupExpired(ctx context.Context) (int, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "CleanupExpired")
	defer span.End()

	start := s.timeNow()
	expired, err := s.Repo.ListExpired(ctx, s.DB, start)
	if err != nil {
		return 0, &StorageError{Op: "list expired sessions", Err: err}
	}

	deleted := 0
	for _, sess := range expired {
		s.deleteBlobs(ctx, sess.Photos)
		if err := s.Repo.DeleteSession(ctx, s.DB, sess.ID); err != nil {
			s.Events.Emit(events.Error, sess.ID, "SessionService.CleanupExpired", map[string]any{
				"error": err.Error(),
			})
			continue
		}
		deleted++
	}

	s.Events.Emit(events.StorageCleanup, "", "SessionService.CleanupExpired", map[string]any{
		"deleted_count": deleted,
		"expired_count": len(expired),
		"duration":      s.timeNow().Sub(start),
	})
	return deleted, nil
}

// deleteBlobs removes every referenced blob, returning the failure count.
// Failures are emitted as events and otherwise swallowed.
func (s *SessionService) deleteBlobs(ctx context.Context, photos []domain.SessionPhoto) int {
	failures := 0
	for _, p := range photos {
		if _, err := s.Blobs.Delete(ctx, p.URL); err != nil {
			failures++
			s.Events.Emit(events.Error, p.SessionID, "SessionService.deleteBlobs", map[string]any{
				"url":   p.URL,
				"error": err.Error(),
			})
		}
	}
	return failures
}

func (s *SessionService) timeNow() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
