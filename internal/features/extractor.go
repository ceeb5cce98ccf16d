package features

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/matchsight/matchsight-be/internal/pose"
	"github.com/matchsight/matchsight-be/internal/video"
)

// Keypoint names used by the sampling heuristics (pose-model naming).
const (
	keypointLeftWrist    = "left_wrist"
	keypointLeftShoulder = "left_shoulder"
	keypointLeftHip      = "left_hip"
	keypointRightHip     = "right_hip"
)

// EventServeDetected marks a sample where the tracked player's wrist rose
// above the shoulder.
const EventServeDetected = "Serve Detected"

// trackScoreThreshold is the minimum keypoint confidence used when computing
// a subject's centroid for cross-frame tracking.
const trackScoreThreshold = 0.4

// Event is one timestamped observation appended during the sampling pass.
type Event struct {
	Time  int    `json:"time"`
	Event string `json:"event"`
}

// Payload is the compact per-video feature summary handed to inference.
type Payload struct {
	DurationSeconds int     `json:"duration_seconds"`
	ServeCount      int     `json:"serve_count"`
	AvgBalance      float64 `json:"avg_balance"`
	Events          []Event `json:"events"`
}

// Extractor reduces a video and a selected subject into a Payload by sampling
// one frame per whole second and applying fixed biomechanical heuristics.
type Extractor struct {
	logger    *slog.Logger
	estimator pose.Estimator
}

// NewExtractor creates an extractor around the given pose capability.
func NewExtractor(estimator pose.Estimator, logger *slog.Logger) *Extractor {
	return &Extractor{
		logger:    logger,
		estimator: estimator,
	}
}

// subjectTrack carries the selected subject's identity across frames. The
// picker resolves a positional index on one frame only; detection order is not
// stable between frames, so the previous frame's centroid is matched against
// the next frame's candidates, falling back to the positional index on total
// loss of track.
type subjectTrack struct {
	index  int
	x, y   float64
	active bool
}

// follow picks the tracked subject out of this frame's detection list.
// Returns false when no subject can be attributed to the track this frame.
func (t *subjectTrack) follow(subjects []pose.Subject) (pose.Subject, bool) {
	if len(subjects) == 0 {
		return pose.Subject{}, false
	}

	if t.active {
		bestIdx := -1
		bestDist := math.Inf(1)
		var bestX, bestY float64
		for i, subject := range subjects {
			cx, cy, ok := subject.Centroid(trackScoreThreshold)
			if !ok {
				continue
			}
			dx := cx - t.x
			dy := cy - t.y
			d2 := dx*dx + dy*dy
			if d2 < bestDist {
				bestIdx = i
				bestDist = d2
				bestX, bestY = cx, cy
			}
		}
		if bestIdx >= 0 {
			t.x, t.y = bestX, bestY
			return subjects[bestIdx], true
		}
		// Total loss of track this frame; fall through to positional pick.
	}

	if t.index >= len(subjects) {
		return pose.Subject{}, false
	}

	subject := subjects[t.index]
	if cx, cy, ok := subject.Centroid(trackScoreThreshold); ok {
		t.x, t.y = cx, cy
		t.active = true
	}
	return subject, true
}

// Extract performs one sequential pass over the video at one-second
// granularity: for each integer second t in [0, floor(duration)] it seeks,
// detects, follows the selected subject, and applies the heuristics.
// Per-sample failures (seek errors, lost subject, missing keypoints) are
// absorbed by skipping the sample; only a cancelled context or an unavailable
// pose model aborts the pass.
func (e *Extractor) Extract(ctx context.Context, source video.Source, subjectIndex int) (*Payload, error) {
	if subjectIndex < 0 {
		return nil, fmt.Errorf("subject index must be non-negative, got %d", subjectIndex)
	}

	duration, err := source.Duration(ctx)
	if err != nil {
		return nil, fmt.Errorf("probing video duration: %w", err)
	}

	total := int(math.Floor(duration))
	track := subjectTrack{index: subjectIndex}

	events := make([]Event, 0)
	var balances []float64

	for t := 0; t <= total; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := source.FrameAt(ctx, float64(t))
		if err != nil {
			e.logger.Debug("Skipping sample, seek failed",
				slog.Int("second", t),
				slog.String("error", err.Error()),
			)
			continue
		}

		subjects, err := e.estimator.Detect(ctx, frame)
		if err != nil {
			if errors.Is(err, pose.ErrModelUnavailable) {
				return nil, err
			}
			e.logger.Debug("Skipping sample, detection failed",
				slog.Int("second", t),
				slog.String("error", err.Error()),
			)
			continue
		}

		subject, ok := track.follow(subjects)
		if !ok {
			continue
		}

		// Serve heuristic: wrist above shoulder (smaller y is higher on frame).
		lw, hasWrist := subject.Keypoint(keypointLeftWrist)
		ls, hasShoulder := subject.Keypoint(keypointLeftShoulder)
		if hasWrist && hasShoulder && lw.Y < ls.Y {
			events = append(events, Event{Time: t, Event: EventServeDetected})
		}

		// Balance heuristic: horizontal hip displacement.
		lh, hasLeftHip := subject.Keypoint(keypointLeftHip)
		rh, hasRightHip := subject.Keypoint(keypointRightHip)
		if hasLeftHip && hasRightHip {
			balances = append(balances, math.Abs(lh.X-rh.X))
		}
	}

	payload := &Payload{
		DurationSeconds: total,
		ServeCount:      countEvents(events, EventServeDetected),
		AvgBalance:      mean(balances),
		Events:          events,
	}

	e.logger.Info("Feature extraction complete",
		slog.Int("duration_seconds", payload.DurationSeconds),
		slog.Int("serve_count", payload.ServeCount),
		slog.Int("event_count", len(payload.Events)),
	)

	return payload, nil
}

func countEvents(events []Event, label string) int {
	n := 0
	for _, ev := range events {
		if ev.Event == label {
			n++
		}
	}
	return n
}

// mean of zero samples is defined as 0, never NaN.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
