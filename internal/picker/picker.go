package picker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/matchsight/matchsight-be/internal/pose"
	"github.com/matchsight/matchsight-be/internal/video"
)

// State identifies where a picker session is in its lifecycle.
type State string

const (
	StateIdle              State = "idle"
	StateAwaitingTimestamp State = "awaiting_timestamp"
	StateDetecting         State = "detecting"
	StateAwaitingSelection State = "awaiting_selection"
	StateResolved          State = "resolved"
	StateCancelled         State = "cancelled"
)

// selectionScoreThreshold is the minimum keypoint confidence for a keypoint to
// participate in click matching and overlay rendering.
const selectionScoreThreshold = 0.4

var (
	// ErrNoSelection is returned when Confirm is called before any subject was
	// chosen. Callers should re-prompt, never default to index 0.
	ErrNoSelection = errors.New("no subject selected")

	// ErrNoCandidate is returned when a click resolves against a frame with no
	// selectable subject.
	ErrNoCandidate = errors.New("no selectable subject in frame")

	// ErrSessionFinished is returned when operating on a resolved or cancelled
	// session.
	ErrSessionFinished = errors.New("picker session finished")
)

// Picker runs one interactive subject-selection session over a video: the user
// scrubs to a timestamp, detection runs on that frame, and the user picks one
// of the detected subjects by index or by clicking near it.
type Picker struct {
	logger    *slog.Logger
	source    video.Source
	estimator pose.Estimator

	state    State
	duration float64
	frame    video.Frame
	subjects []pose.Subject
	selected int
}

// New creates an idle picker session.
func New(source video.Source, estimator pose.Estimator, logger *slog.Logger) *Picker {
	return &Picker{
		logger:    logger,
		source:    source,
		estimator: estimator,
		state:     StateIdle,
		selected:  -1,
	}
}

// Load probes the video and readies the session for scrubbing.
func (p *Picker) Load(ctx context.Context) error {
	if p.finished() {
		return ErrSessionFinished
	}

	duration, err := p.source.Duration(ctx)
	if err != nil {
		return fmt.Errorf("loading video: %w", err)
	}

	p.duration = duration
	p.state = StateAwaitingTimestamp

	p.logger.Debug("Picker session loaded",
		slog.Float64("duration_seconds", duration),
	)

	return nil
}

// Duration returns the probed video duration in seconds.
func (p *Picker) Duration() float64 {
	return p.duration
}

// State returns the current session state.
func (p *Picker) State() State {
	return p.state
}

// DetectAt seeks to the given timestamp, runs detection on that frame, and
// moves to awaiting selection. Any previous selection is discarded because the
// subject list is specific to one frame. An empty result is not an error.
func (p *Picker) DetectAt(ctx context.Context, seconds float64) ([]pose.Subject, error) {
	if p.finished() {
		return nil, ErrSessionFinished
	}
	if p.state == StateIdle {
		return nil, fmt.Errorf("picker not loaded")
	}

	seconds = clamp(seconds, 0, p.duration)
	p.state = StateDetecting
	p.selected = -1

	frame, err := p.source.FrameAt(ctx, seconds)
	if err != nil {
		p.state = StateAwaitingTimestamp
		return nil, fmt.Errorf("seeking to %.1fs: %w", seconds, err)
	}

	subjects, err := p.estimator.Detect(ctx, frame)
	if err != nil {
		p.state = StateAwaitingTimestamp
		return nil, fmt.Errorf("detecting subjects at %.1fs: %w", seconds, err)
	}

	p.frame = frame
	p.subjects = subjects
	p.state = StateAwaitingSelection

	p.logger.Debug("Subjects detected",
		slog.Float64("timestamp", seconds),
		slog.Int("subject_count", len(subjects)),
	)

	return subjects, nil
}

// Subjects returns the subjects detected on the current frame.
func (p *Picker) Subjects() []pose.Subject {
	return p.subjects
}

// Select chooses a subject by its index in the current detection list.
func (p *Picker) Select(index int) error {
	if p.state != StateAwaitingSelection {
		return fmt.Errorf("cannot select in state %s", p.state)
	}
	if index < 0 || index >= len(p.subjects) {
		return fmt.Errorf("subject index %d out of range [0,%d)", index, len(p.subjects))
	}
	p.selected = index
	return nil
}

// SelectAt resolves a click in canvas coordinates to the nearest subject: for
// each subject, the mean position of keypoints above the confidence threshold
// is scaled into canvas space, and the subject at minimum squared distance
// from the click wins. Subjects with no qualifying keypoints are excluded.
func (p *Picker) SelectAt(clickX, clickY, canvasW, canvasH float64) (int, error) {
	if p.state != StateAwaitingSelection {
		return -1, fmt.Errorf("cannot select in state %s", p.state)
	}

	scaleX, scaleY := 1.0, 1.0
	if p.frame.Width > 0 {
		scaleX = canvasW / float64(p.frame.Width)
	}
	if p.frame.Height > 0 {
		scaleY = canvasH / float64(p.frame.Height)
	}

	bestIdx := -1
	bestDist := math.Inf(1)
	for i, subject := range p.subjects {
		cx, cy, ok := subject.Centroid(selectionScoreThreshold)
		if !ok {
			continue
		}
		dx := cx*scaleX - clickX
		dy := cy*scaleY - clickY
		d2 := dx*dx + dy*dy
		if d2 < bestDist {
			bestIdx = i
			bestDist = d2
		}
	}

	if bestIdx == -1 {
		return -1, ErrNoCandidate
	}

	p.selected = bestIdx
	return bestIdx, nil
}

// Confirm resolves the session with the chosen subject index.
func (p *Picker) Confirm() (int, error) {
	if p.finished() {
		return -1, ErrSessionFinished
	}
	if p.selected < 0 {
		return -1, ErrNoSelection
	}

	index := p.selected
	p.state = StateResolved

	p.logger.Info("Subject selection resolved",
		slog.Int("subject_index", index),
	)

	return index, nil
}

// Cancel terminates the session with no output and releases the video source.
func (p *Picker) Cancel() error {
	if p.finished() {
		return ErrSessionFinished
	}

	p.state = StateCancelled
	if err := p.source.Close(); err != nil {
		return fmt.Errorf("releasing video source: %w", err)
	}
	return nil
}

func (p *Picker) finished() bool {
	return p.state == StateResolved || p.state == StateCancelled
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
