// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for Session and
// SessionPhoto records.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a session is not found OR its expiry has already passed,
//     read functions return gorm.ErrRecordNotFound (exported here as
//     ErrNotFound). Callers cannot distinguish "never existed" from
//     "expired"; that is deliberate, the distinction would leak session
//     history.
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// The photo collection is append-only: AddPhoto inserts a child row, which
// is the atomic append primitive. Two concurrent uploads are two inserts;
// neither can overwrite the other.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-tryon-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist or has
// expired. It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateSession inserts a new active session expiring after lifetime.
// The session ID is a randomly generated UUID (string), and CreatedAt is set
// to UTC. On success, it returns the persisted Session.
func CreateSession(ctx context.Context, db *gorm.DB, lifetime time.Duration) (*domain.Session, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:        uuid.NewString(),
		Status:    domain.SessionActive,
		CreatedAt: now,
		ExpiresAt: now.Add(lifetime),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a single live session by ID, preloading its photos in
// upload order. Sessions whose expiry has passed are reported as ErrNotFound
// even while the row physically exists (lazy expiry): the expiry check is in
// the query itself, never left to the caller.
func GetSession(ctx context.Context, db *gorm.DB, id string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := db.WithContext(ctx).
		Preload("Photos", func(q *gorm.DB) *gorm.DB { return q.Order("uploaded_at asc") }).
		Where("id = ? AND status = ? AND expires_at > ?", id, domain.SessionActive, now).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AddPhoto appends a photo reference to the session's collection by inserting
// a child row. The caller is responsible for having validated the session
// first; the insert itself does not re-check expiry.
func AddPhoto(ctx context.Context, db *gorm.DB, sessionID string, photo domain.SessionPhoto) (*domain.SessionPhoto, error) {
	photo.ID = uuid.NewString()
	photo.SessionID = sessionID
	if photo.UploadedAt.IsZero() {
		photo.UploadedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(&photo).Error; err != nil {
		return nil, err
	}
	return &photo, nil
}

// ListPhotos returns the session's photos in upload order. It returns an
// empty slice when the session has no photos or does not exist; existence
// checks belong to the caller.
func ListPhotos(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.SessionPhoto, error) {
	var out []domain.SessionPhoto
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("uploaded_at asc").
		Find(&out).Error
	return out, err
}

// ExtendSession advances the session's expiry by delta and returns the new
// expiry. The update is guarded on the previously read expiry so two
// concurrent extensions apply in sequence rather than losing one; a lost
// race is retried against the fresh expiry instead of being reported as an
// absent session. Returns ErrNotFound when the session is absent or already
// expired.
func ExtendSession(ctx context.Context, db *gorm.DB, id string, delta time.Duration, now time.Time) (time.Time, error) {
	const attempts = 3

	for i := 0; i < attempts; i++ {
		var s domain.Session
		err := db.WithContext(ctx).
			Where("id = ? AND status = ? AND expires_at > ?", id, domain.SessionActive, now).
			First(&s).Error
		if err != nil {
			return time.Time{}, err
		}

		next := s.ExpiresAt.Add(delta)
		res := db.WithContext(ctx).
			Model(&domain.Session{}).
			Where("id = ? AND expires_at = ?", id, s.ExpiresAt).
			Update("expires_at", next)
		if res.Error != nil {
			return time.Time{}, res.Error
		}
		if res.RowsAffected == 0 {
			// Raced with a concurrent extension; re-read and reapply.
			continue
		}
		return next, nil
	}
	return time.Time{}, gorm.ErrRecordNotFound
}

// ListExpired returns sessions whose expiry has passed and that have not yet
// been deleted, with photos preloaded so the caller can cascade blob deletion.
func ListExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Preload("Photos").
		Where("expires_at < ? AND status <> ?", now, domain.SessionDeleted).
		Find(&out).Error
	return out, err
}

// DeleteSession marks the session deleted and removes it together with its
// photo rows in one transaction. Returns ErrNotFound when no such record
// exists (including already-deleted sessions).
func DeleteSession(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Session{}).
			Where("id = ? AND status <> ?", id, domain.SessionDeleted).
			Update("status", domain.SessionDeleted)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if err := tx.Where("session_id = ?", id).Delete(&domain.SessionPhoto{}).Error; err != nil {
			return err
		}
		return tx.Delete(&domain.Session{ID: id}).Error
	})
}
