// Package services – TryOnService
//
// This file implements the try-on generation orchestrator. One invocation
// runs FETCH_INPUTS → SUGGEST_SCENE → GENERATE (all poses, concurrently) →
// PERSIST, emitting a pipeline event at every phase transition. Nothing is
// persisted about the invocation itself; it is a single in-flight request,
// not a durable workflow.
//
// Failure policy: the pose fan-out is all-or-nothing. If any one pose fails,
// the whole request fails and no partial result is returned — callers must
// never display a half-finished outfit set. The only stage with a fallback
// is scene suggestion, which is cosmetic and substitutes a fixed default
// scene on any error.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-tryon-backend/internal/blob"
	"github.com/tbourn/go-tryon-backend/internal/domain"
	"github.com/tbourn/go-tryon-backend/internal/events"
	"github.com/tbourn/go-tryon-backend/internal/gemini"
)

const (
	// defaultScene is substituted whenever scene suggestion fails or
	// returns nothing.
	defaultScene = "a bright, minimalist photo studio with soft natural light"

	// poseConfidence is the confidence reported on every successful pose.
	// It is a fixed constant, not a score derived from the model response.
	poseConfidence = 0.95

	// maxSceneRunes caps the scene description taken from the model.
	maxSceneRunes = 200
)

// placeholderPNG is a 1x1 transparent PNG substituted for empty or
// unresolvable image references, so malformed legacy references degrade one
// input instead of aborting the pipeline.
var placeholderPNG = func() []byte {
	b, err := base64.StdEncoding.DecodeString(
		"iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")
	if err != nil {
		panic(err)
	}
	return b
}()

// ModelClient is the generative model contract consumed by TryOnService.
// Implementations must be safe for concurrent use; the fan-out calls
// Generate from multiple goroutines.
type ModelClient interface {
	Generate(ctx context.Context, prompt string, images []gemini.ImagePart) (*gemini.Response, error)
}

// SessionSource is the session read surface the orchestrator depends on.
type SessionSource interface {
	// Get returns a live session or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*domain.Session, error)
	// Photos returns the session's photo references in upload order.
	Photos(ctx context.Context, id string) ([]domain.SessionPhoto, error)
}

// TryOnService orchestrates try-on generation against the external model
// and persists successful artifacts to the blob store.
type TryOnService struct {
	// Sessions resolves the caller's uploaded photo references.
	Sessions SessionSource
	// Blobs fetches input bytes and persists generated artifacts.
	Blobs blob.Store
	// Model is the external generative model.
	Model ModelClient
	// Events receives phase-transition events; may be nil.
	Events *events.Emitter

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// NewTryOnService constructs a TryOnService with the given collaborators.
func NewTryOnService(sessions SessionSource, blobs blob.Store, model ModelClient, em *events.Emitter) *TryOnService {
	return &TryOnService{
		Sessions: sessions,
		Blobs:    blobs,
		Model:    model,
		Events:   em,
		now:      time.Now,
	}
}

// GenerateAll produces every pose for the session wearing the garment.
//
// The user image is the session's most recent "user" photo; garmentURL
// overrides the session's most recent "garment" photo when non-empty. Scene
// suggestion runs once, then all poses are generated concurrently. A failing
// pose does not cancel in-flight siblings (the model offers no mid-flight
// cancel and letting them finish avoids leaking artifacts), but its error
// fails the whole call: no partial list is ever returned.
func (s *TryOnService) GenerateAll(ctx context.Context, sessionID, garmentURL string) ([]domain.PoseResult, error) {
	tr := otel.Tracer("services/TryOnService")
	ctx, span := tr.Start(ctx, "GenerateAll",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()

	start := s.timeNow()

	if _, err := s.Sessions.Get(ctx, sessionID); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	photos, err := s.Sessions.Photos(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	userURL := latestPhotoURL(photos, domain.PhotoTypeUser)
	if garmentURL == "" {
		garmentURL = latestPhotoURL(photos, domain.PhotoTypeGarment)
	}
	if userURL == "" || garmentURL == "" {
		return nil, ErrInvalidArgument
	}

	s.Events.Emit(events.GenerationStarted, sessionID, "TryOnService.GenerateAll", map[string]any{
		"poses": len(domain.AllPoses),
	})

	// FETCH_INPUTS: unresolvable references degrade to a placeholder
	// rather than aborting the pipeline.
	userImg := s.fetchInput(ctx, userURL)
	garmentImg := s.fetchInput(ctx, garmentURL)

	// SUGGEST_SCENE: the one stage with a fallback.
	scene := s.suggestScene(ctx, sessionID, garmentImg)

	// GENERATE: all poses concurrently, joined at a barrier. The group
	// carries no cancelable context on purpose — a failing pose must not
	// cancel its siblings.
	results := make([]domain.PoseResult, len(domain.AllPoses))
	var g errgroup.Group
	for i, pose := range domain.AllPoses {
		g.Go(func() error {
			res, err := s.GeneratePose(ctx, userImg, garmentImg, pose, scene, sessionID)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.Events.Emit(events.GenerationFailed, sessionID, "TryOnService.GenerateAll", map[string]any{
			"error":    err.Error(),
			"duration": s.timeNow().Sub(start),
		})
		return nil, err
	}

	s.Events.Emit(events.GenerationCompleted, sessionID, "TryOnService.GenerateAll", map[string]any{
		"poses":      len(results),
		"confidence": poseConfidence,
		"duration":   s.timeNow().Sub(start),
	})
	return results, nil
}

// GeneratePose generates and persists a single pose. A model response
// without an image payload is a hard failure for the pose, never a degraded
// success.
func (s *TryOnService) GeneratePose(ctx context.Context, userImg, garmentImg []byte, pose domain.Pose, scene, sessionID string) (domain.PoseResult, error) {
	start := s.timeNow()

	prompt := posePrompt(pose, scene)
	s.Events.Emit(events.ModelRequest, sessionID, "TryOnService.GeneratePose", map[string]any{
		"pose": string(pose),
	})

	resp, err := s.Model.Generate(ctx, prompt, []gemini.ImagePart{
		{MIME: "png", Data: userImg},
		{MIME: "png", Data: garmentImg},
	})
	if err != nil {
		return domain.PoseResult{}, &GenerationError{Pose: string(pose), Err: err}
	}

	s.Events.Emit(events.ModelResponse, sessionID, "TryOnService.GeneratePose", map[string]any{
		"pose":      string(pose),
		"has_image": resp.HasImage(),
		"duration":  s.timeNow().Sub(start),
	})
	if !resp.HasImage() {
		return domain.PoseResult{}, &GenerationError{
			Pose:    string(pose),
			Message: firstNonEmpty(resp.FirstText(), "model returned no image payload"),
		}
	}

	// PERSIST: deterministic path per session and pose, made public.
	now := s.timeNow()
	path := blob.ObjectPath(blob.CategoryGenerated, sessionID,
		fmt.Sprintf("%s-%d.png", pose, now.UnixMilli()))
	url, err := s.Blobs.Put(ctx, path, resp.Images[0], "image/png")
	if err != nil {
		return domain.PoseResult{}, &StorageError{Op: "persist pose artifact", Err: err}
	}
	if err := s.Blobs.MakePublic(ctx, url); err != nil {
		return domain.PoseResult{}, &StorageError{Op: "publish pose artifact", Err: err}
	}

	return domain.PoseResult{
		SessionID:   sessionID,
		Pose:        pose,
		ImageURL:    url,
		Description: resp.FirstText(),
		Confidence:  poseConfidence,
		GeneratedAt: now,
	}, nil
}

// fetchInput resolves an image reference to raw bytes. Empty or
// unresolvable references yield the placeholder image; that silently
// degrades the one input but keeps malformed legacy references from
// aborting the whole pipeline.
func (s *TryOnService) fetchInput(ctx context.Context, url string) []byte {
	if url == "" {
		return placeholderPNG
	}
	data, err := s.Blobs.Get(ctx, url)
	if err != nil || len(data) == 0 {
		return placeholderPNG
	}
	return data
}

// suggestScene asks the model for a short background description of the
// garment's setting. Any error or empty answer falls back to defaultScene.
func (s *TryOnService) suggestScene(ctx context.Context, sessionID string, garmentImg []byte) string {
	start := s.timeNow()
	s.Events.Emit(events.ModelRequest, sessionID, "TryOnService.suggestScene", map[string]any{
		"purpose": "scene_suggestion",
	})
	resp, err := s.Model.Generate(ctx,
		"Suggest a short background setting, in one sentence, that would suit a photo "+
			"of a person wearing this garment. Reply with the setting only.",
		[]gemini.ImagePart{{MIME: "png", Data: garmentImg}},
	)
	scene := ""
	if err == nil {
		scene = strings.TrimSpace(resp.FirstText())
	}
	if scene == "" {
		scene = defaultScene
	}
	if runes := []rune(scene); len(runes) > maxSceneRunes {
		scene = string(runes[:maxSceneRunes])
	}
	s.Events.Emit(events.ModelResponse, sessionID, "TryOnService.suggestScene", map[string]any{
		"fallback": err != nil || scene == defaultScene,
		"duration": s.timeNow().Sub(start),
	})
	return scene
}

// posePrompt builds the generation instruction for one pose. The wording
// leans hard on subject-identity and garment-fidelity preservation.
func posePrompt(pose domain.Pose, scene string) string {
	return fmt.Sprintf(
		"Generate a photorealistic image of the person from the first image wearing the "+
			"garment from the second image, %s. Preserve the person's face, body shape, skin "+
			"tone, and hair exactly as in their photo; do not replace them with another person. "+
			"Preserve the garment's color, pattern, texture, and fit exactly as photographed. "+
			"Setting: %s. Return the generated image.",
		poseInstruction(pose), scene)
}

func poseInstruction(pose domain.Pose) string {
	switch pose {
	case domain.PoseSitting:
		return "seated naturally on a stool with a relaxed posture"
	default:
		return "standing upright in a natural, relaxed pose"
	}
}

// latestPhotoURL returns the URL of the most recently uploaded photo of the
// given type, or "" when none exists.
func latestPhotoURL(photos []domain.SessionPhoto, photoType string) string {
	for i := len(photos) - 1; i >= 0; i-- {
		if photos[i].Type == photoType {
			return photos[i].URL
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *TryOnService) timeNow() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
