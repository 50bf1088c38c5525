package handlers

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/go-tryon-backend/internal/blob"
	"github.com/tbourn/go-tryon-backend/internal/domain"
	"github.com/tbourn/go-tryon-backend/internal/services"
)

func TestTryOn_ReturnsAllPoseResults(t *testing.T) {
	now := time.Now().UTC()
	svc := &fakeTryOnSvc{results: []domain.PoseResult{
		{SessionID: "s1", Pose: domain.PoseStanding, ImageURL: "mem://generated/s1/standing.png", Confidence: 0.95, GeneratedAt: now},
		{SessionID: "s1", Pose: domain.PoseSitting, ImageURL: "mem://generated/s1/sitting.png", Confidence: 0.95, GeneratedAt: now},
	}}
	r := newTestRouter(&fakeSessionSvc{}, svc, blob.NewMemoryStore())

	w := doJSON(t, r, http.MethodPost, "/sessions/s1/tryon", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200\n%s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	results, ok := body["results"].([]any)
	if !ok || len(results) != 2 {
		t.Fatalf("results = %v", body["results"])
	}
	if svc.sessionID != "s1" || svc.garmentURL != "" {
		t.Fatalf("service got (%q, %q)", svc.sessionID, svc.garmentURL)
	}
}

func TestTryOn_ForwardsGarmentOverride(t *testing.T) {
	svc := &fakeTryOnSvc{results: []domain.PoseResult{}}
	r := newTestRouter(&fakeSessionSvc{}, svc, blob.NewMemoryStore())

	w := doJSON(t, r, http.MethodPost, "/sessions/s1/tryon",
		map[string]any{"garment_url": "mem://uploads/s1/dress.png"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200", w.Code)
	}
	if svc.garmentURL != "mem://uploads/s1/dress.png" {
		t.Fatalf("garmentURL = %q", svc.garmentURL)
	}
}

func TestTryOn_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"dead session", services.ErrInvalidSession, http.StatusNotFound, ErrCodeNotFound},
		{"missing photos", services.ErrInvalidArgument, http.StatusBadRequest, ErrCodeBadRequest},
		{"model failure", &services.GenerationError{Pose: "standing", Message: "no image"}, http.StatusBadGateway, ErrCodeGenerationFailed},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeTryOnSvc{err: tc.err}
			r := newTestRouter(&fakeSessionSvc{}, svc, blob.NewMemoryStore())

			w := doJSON(t, r, http.MethodPost, "/sessions/s1/tryon", nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d; want %d", w.Code, tc.wantStatus)
			}
			body := decodeBody(t, w)
			if body["code"] != tc.wantCode {
				t.Fatalf("code = %v; want %s", body["code"], tc.wantCode)
			}
		})
	}
}

// A wrapped generation error must still map to 502, not fall through to 500.
func TestTryOn_WrappedGenerationErrorStill502(t *testing.T) {
	inner := &services.GenerationError{Pose: "sitting", Err: errors.New("rpc timeout")}
	svc := &fakeTryOnSvc{err: inner}
	r := newTestRouter(&fakeSessionSvc{}, svc, blob.NewMemoryStore())

	w := doJSON(t, r, http.MethodPost, "/sessions/s1/tryon", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d; want 502", w.Code)
	}
}
