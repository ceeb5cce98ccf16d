package pose

import (
	"context"
	"errors"

	"github.com/matchsight/matchsight-be/internal/video"
)

// ErrModelUnavailable is returned when the pose capability cannot be reached
// or failed to initialize. Callers should surface this once per session and
// not retry per frame.
var ErrModelUnavailable = errors.New("pose model unavailable")

// Keypoint is a single named anatomical point in frame pixel space.
type Keypoint struct {
	Name  string  `json:"name"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"`
}

// Subject is one detected body in a single frame. Subjects are ephemeral and
// recomputed per query; only a chosen index or centroid survives across frames.
type Subject struct {
	Keypoints []Keypoint `json:"keypoints"`
}

// Keypoint returns the named keypoint, or false if the model did not emit it.
func (s Subject) Keypoint(name string) (Keypoint, bool) {
	for _, kp := range s.Keypoints {
		if kp.Name == name {
			return kp, true
		}
	}
	return Keypoint{}, false
}

// Centroid returns the mean position of all keypoints scoring above minScore.
// Returns false when no keypoint qualifies.
func (s Subject) Centroid(minScore float64) (x, y float64, ok bool) {
	var sumX, sumY float64
	var n int
	for _, kp := range s.Keypoints {
		if kp.Score > minScore {
			sumX += kp.X
			sumY += kp.Y
			n++
		}
	}
	if n == 0 {
		return 0, 0, false
	}
	return sumX / float64(n), sumY / float64(n), true
}

// Estimator is the opaque multi-subject pose detection capability. Detect must
// be idempotent for a given frame and have no side effects.
type Estimator interface {
	// Detect returns zero or more subjects found in the frame.
	Detect(ctx context.Context, frame video.Frame) ([]Subject, error)
}
