// Session HTTP handlers.
//
// This file exposes REST endpoints for session resources:
//   - POST   /sessions               (create)
//   - GET    /sessions/{id}          (read, lazy expiry)
//   - POST   /sessions/{id}/photos   (multipart upload, rate limited)
//   - GET    /sessions/{id}/photos   (list references)
//   - PUT    /sessions/{id}/extend   (push expiry forward)
//   - DELETE /sessions/{id}          (cascade delete)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses. Absent and expired
// sessions are both rendered as 404; the API never reveals which it was.
package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-tryon-backend/internal/blob"
	"github.com/tbourn/go-tryon-backend/internal/domain"
	"github.com/tbourn/go-tryon-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// SessionService defines session lifecycle operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context for cancellation and timeouts.
type SessionService interface {
	// Create starts a new anonymous session.
	Create(ctx context.Context) (*domain.Session, int, error)
	// Get returns a live session or services.ErrSessionNotFound.
	Get(ctx context.Context, id string) (*domain.Session, error)
	// AddPhoto appends a photo reference to a live session.
	AddPhoto(ctx context.Context, id string, photo domain.SessionPhoto) (*domain.SessionPhoto, error)
	// Photos lists the session's photo references (empty when absent).
	Photos(ctx context.Context, id string) ([]domain.SessionPhoto, error)
	// Extend pushes the session expiry forward and returns the new expiry.
	Extend(ctx context.Context, id string, additional time.Duration) (time.Time, error)
	// Delete removes the session and its blobs, reporting record deletion.
	Delete(ctx context.Context, id string) (bool, error)
}

// TryOnService defines the generation operation consumed by HTTP handlers.
type TryOnService interface {
	// GenerateAll produces every pose for the session, all-or-nothing.
	GenerateAll(ctx context.Context, sessionID, garmentURL string) ([]domain.PoseResult, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for sessions and try-on generation.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	sessions SessionService
	tryon    TryOnService
	blobs    blob.Store

	maxUpload int64
}

// New constructs a Handlers instance bound to the given services.
func New(sessions SessionService, tryon TryOnService, blobs blob.Store, maxUpload int64) *Handlers {
	return &Handlers{sessions: sessions, tryon: tryon, blobs: blobs, maxUpload: maxUpload}
}

// createSessionResponse is the payload for POST /sessions.
type createSessionResponse struct {
	SessionID string `json:"session_id"`
	ExpiresIn int    `json:"expires_in_seconds"`
	ExpiresAt string `json:"expires_at"`
}

// CreateSession handles POST /sessions.
func (h *Handlers) CreateSession(c *gin.Context) {
	sess, expiresIn, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not create session")
		return
	}
	ok(c, http.StatusCreated, createSessionResponse{
		SessionID: sess.ID,
		ExpiresIn: expiresIn,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// GetSession handles GET /sessions/:id.
func (h *Handlers) GetSession(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not read session")
		return
	}
	ok(c, http.StatusOK, sess)
}

// UploadPhoto handles POST /sessions/:id/photos. The request is multipart:
// a "photo" file plus "type" (user|garment) and optional "view" fields. The
// file is written to the blob store under the session's uploads prefix and
// its reference appended to the session.
func (h *Handlers) UploadPhoto(c *gin.Context) {
	id := c.Param("id")

	file, header, err := c.Request.FormFile("photo")
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing photo file")
		return
	}
	defer file.Close()

	photoType := strings.TrimSpace(c.PostForm("type"))
	view := strings.TrimSpace(c.PostForm("view"))

	data, contentType, err := readUpload(file, header, h.maxUpload)
	if err != nil {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadLarge, "photo exceeds upload limit")
		return
	}

	objPath := blob.ObjectPath(blob.CategoryUploads, id,
		uuid.NewString()+extensionFor(contentType))
	url, err := h.blobs.Put(c.Request.Context(), objPath, data, contentType)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeUploadFailed, "could not store photo")
		return
	}

	added, err := h.sessions.AddPhoto(c.Request.Context(), id, domain.SessionPhoto{
		URL:  url,
		Type: photoType,
		View: view,
	})
	if err != nil {
		// The blob is orphaned on failure; the retention sweep reclaims it.
		switch {
		case errors.Is(err, services.ErrInvalidArgument):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid photo type or view")
		case errors.Is(err, services.ErrInvalidSession):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not record photo")
		}
		return
	}
	ok(c, http.StatusCreated, added)
}

// ListPhotos handles GET /sessions/:id/photos. An absent or expired session
// yields an empty list, not an error.
func (h *Handlers) ListPhotos(c *gin.Context) {
	photos, err := h.sessions.Photos(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not list photos")
		return
	}
	ok(c, http.StatusOK, gin.H{"photos": photos})
}

// extendRequest is the payload for PUT /sessions/:id/extend.
type extendRequest struct {
	AdditionalMinutes int `json:"additional_minutes" binding:"required"`
}

// ExtendSession handles PUT /sessions/:id/extend.
func (h *Handlers) ExtendSession(c *gin.Context) {
	var req extendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AdditionalMinutes <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "additional_minutes must be a positive integer")
		return
	}
	next, err := h.sessions.Extend(c.Request.Context(), c.Param("id"),
		time.Duration(req.AdditionalMinutes)*time.Minute)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not extend session")
		return
	}
	ok(c, http.StatusOK, gin.H{"expires_at": next.UTC().Format(time.RFC3339)})
}

// DeleteSession handles DELETE /sessions/:id.
func (h *Handlers) DeleteSession(c *gin.Context) {
	deleted, err := h.sessions.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not delete session")
		return
	}
	if !deleted {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		return
	}
	noContent(c)
}

// readUpload drains the uploaded file, enforcing maxBytes, and sniffs a
// content type when the client did not send one.
func readUpload(file multipart.File, header *multipart.FileHeader, maxBytes int64) ([]byte, string, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxBytes {
		return nil, "", errors.New("upload too large")
	}
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return data, contentType, nil
}

// extensionFor maps an image content type to a file extension, defaulting
// to the type's subtype.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		if i := strings.LastIndex(contentType, "/"); i >= 0 {
			return "." + path.Base(contentType[i+1:])
		}
		return ".bin"
	}
}
