// Try-on HTTP handler.
//
// POST /sessions/{id}/tryon runs the full generation pipeline for a session
// and returns either every pose or a single typed failure. There is no
// partial-success shape: "2 of 2 poses" is success, anything less is an
// error response.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-tryon-backend/internal/services"
)

// tryOnRequest is the optional payload for POST /sessions/:id/tryon.
// GarmentURL overrides the session's most recent garment photo; when empty,
// that photo is used.
type tryOnRequest struct {
	GarmentURL string `json:"garment_url"`
}

// TryOn handles POST /sessions/:id/tryon.
func (h *Handlers) TryOn(c *gin.Context) {
	var req tryOnRequest
	// The body is optional; ignore absent or empty payloads.
	_ = c.ShouldBindJSON(&req)

	results, err := h.tryon.GenerateAll(c.Request.Context(), c.Param("id"), req.GarmentURL)
	if err != nil {
		var genErr *services.GenerationError
		switch {
		case errors.Is(err, services.ErrInvalidSession):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, services.ErrInvalidArgument):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session needs a user photo and a garment photo")
		case errors.As(err, &genErr):
			fail(c, http.StatusBadGateway, ErrCodeGenerationFailed, genErr.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "generation failed")
		}
		return
	}
	ok(c, http.StatusOK, gin.H{"results": results})
}
