// Package domain defines the core models shared across the repository and
// service layers. This file holds the try-on generation vocabulary; these
// types describe a single in-flight orchestration and are not persisted.
package domain

import "time"

// Pose identifies one requested variant of the generated composite image.
type Pose string

// Poses generated for every try-on request.
const (
	PoseStanding Pose = "standing"
	PoseSitting  Pose = "sitting"
)

// AllPoses is the fixed fan-out set for a try-on request, in output order.
var AllPoses = []Pose{PoseStanding, PoseSitting}

// PoseResult is the outcome of one successful pose generation: a reference
// to the persisted artifact plus the model's textual description. Confidence
// is a fixed constant today, not a computed score.
type PoseResult struct {
	SessionID   string    `json:"session_id"`
	Pose        Pose      `json:"pose"`
	ImageURL    string    `json:"image_url"`
	Description string    `json:"description"`
	Confidence  float64   `json:"confidence"`
	GeneratedAt time.Time `json:"generated_at"`
}
