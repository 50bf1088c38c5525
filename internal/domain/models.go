// Package domain defines the persistence models for anonymous try-on
// sessions and their uploaded photo references. These types are mapped with
// GORM and form the core data layer of the application.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Session status values. A session is "active" until its expiry passes,
// after which every read must treat it as absent even while the row still
// exists; expiry is enforced lazily against ExpiresAt and never written
// back as a status. "deleted" is terminal, set by the sweep or an explicit
// delete.
const (
	SessionActive  = "active"
	SessionDeleted = "deleted"
)

// Photo type values distinguishing the wearer from the garment.
const (
	PhotoTypeUser    = "user"
	PhotoTypeGarment = "garment"
)

// Photo view values. View is optional; an empty string means unspecified.
const (
	ViewFront = "front"
	ViewSide  = "side"
	ViewBack  = "back"
)

// Session represents one anonymous user's working set of uploaded photos.
// Sessions are identified only by their opaque ID; there is no account or
// authentication attached to them.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), never reused.
//   - Status: active | deleted (deleted is terminal; expiry is a
//     comparison against ExpiresAt, not a status).
//   - CreatedAt / ExpiresAt: lifetime bounds; ExpiresAt only ever moves
//     forward (extension), never backward.
//   - Photos: append-only child rows; a row insert is the atomic
//     "append to collection" primitive, so concurrent uploads never
//     clobber each other.
type Session struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Status    string         `json:"status"     gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','deleted')"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	ExpiresAt time.Time      `json:"expires_at" gorm:"not null;index"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	Photos []SessionPhoto `json:"user_photos" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// SessionPhoto is one uploaded photo reference inside a session. Rows are
// immutable once inserted; they are only ever appended, and removed solely
// through cascading session deletion.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - SessionID: foreign key to the owning session (indexed).
//   - URL: opaque reference into the blob store.
//   - Type: "user" or "garment" (enforced by DB constraint).
//   - View: optional "front" | "side" | "back".
//   - UploadedAt: server-side upload timestamp; orders the collection.
type SessionPhoto struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	SessionID  string    `json:"session_id"  gorm:"type:char(36);not null;index:idx_session_photos,priority:1"`
	URL        string    `json:"url"         gorm:"type:text;not null"`
	Type       string    `json:"type"        gorm:"type:varchar(16);not null;check:type IN ('user','garment')"`
	View       string    `json:"view,omitempty" gorm:"type:varchar(16)"`
	UploadedAt time.Time `json:"uploaded_at" gorm:"index:idx_session_photos,priority:2"`

	// Session is the parent record. Photos are cascade-deleted when their
	// session is removed.
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for SessionPhoto.
func (SessionPhoto) TableName() string { return "session_photos" }
