package picker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchsight/matchsight-be/internal/pose"
	"github.com/matchsight/matchsight-be/internal/pose/mock"
	"github.com/matchsight/matchsight-be/internal/video"
	"github.com/matchsight/matchsight-be/shared/logger"
)

type fakeSource struct {
	duration float64
	frameErr error
	closed   bool
}

func (s *fakeSource) Duration(ctx context.Context) (float64, error) {
	return s.duration, nil
}

func (s *fakeSource) FrameAt(ctx context.Context, seconds float64) (video.Frame, error) {
	if s.frameErr != nil {
		return video.Frame{}, s.frameErr
	}
	return video.Frame{Data: []byte{0xff, 0xd8}, Width: 1280, Height: 720}, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

func subjectNear(x, y float64) pose.Subject {
	return pose.Subject{
		Keypoints: []pose.Keypoint{
			{Name: "nose", X: x, Y: y - 10, Score: 0.9},
			{Name: "left_hip", X: x - 5, Y: y + 10, Score: 0.9},
			{Name: "right_hip", X: x + 5, Y: y + 10, Score: 0.9},
		},
	}
}

func newTestPicker(t *testing.T, source video.Source, estimator pose.Estimator) *Picker {
	t.Helper()
	p := New(source, estimator, logger.NewDefault().Logger)
	require.NoError(t, p.Load(context.Background()))
	return p
}

func TestPicker_Lifecycle(t *testing.T) {
	source := &fakeSource{duration: 42.5}
	estimator := mock.NewStatic([]pose.Subject{subjectNear(100, 100)})

	p := New(source, estimator, logger.NewDefault().Logger)
	assert.Equal(t, StateIdle, p.State())

	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, StateAwaitingTimestamp, p.State())
	assert.Equal(t, 42.5, p.Duration())

	subjects, err := p.DetectAt(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, subjects, 1)
	assert.Equal(t, StateAwaitingSelection, p.State())

	require.NoError(t, p.Select(0))

	idx, err := p.Confirm()
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, StateResolved, p.State())
}

func TestPicker_DetectBeforeLoadFails(t *testing.T) {
	p := New(&fakeSource{duration: 10}, mock.NewStatic(nil), logger.NewDefault().Logger)

	_, err := p.DetectAt(context.Background(), 1)
	require.Error(t, err)
}

func TestPicker_ConfirmWithoutSelection(t *testing.T) {
	p := newTestPicker(t, &fakeSource{duration: 10}, mock.NewStatic([]pose.Subject{subjectNear(50, 50)}))

	_, err := p.DetectAt(context.Background(), 3)
	require.NoError(t, err)

	// Confirm with nothing picked must not default to index 0
	_, err = p.Confirm()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoSelection)

	// The session is still usable
	assert.Equal(t, StateAwaitingSelection, p.State())
	require.NoError(t, p.Select(0))
	_, err = p.Confirm()
	require.NoError(t, err)
}

func TestPicker_DetectAtClampsTimestamp(t *testing.T) {
	estimator := mock.NewStatic([]pose.Subject{subjectNear(10, 10)})
	p := newTestPicker(t, &fakeSource{duration: 5}, estimator)

	_, err := p.DetectAt(context.Background(), 100)
	require.NoError(t, err)

	_, err = p.DetectAt(context.Background(), -3)
	require.NoError(t, err)
}

func TestPicker_EmptyDetectionIsNotAnError(t *testing.T) {
	p := newTestPicker(t, &fakeSource{duration: 10}, mock.NewStatic(nil))

	subjects, err := p.DetectAt(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, subjects)
	assert.Equal(t, StateAwaitingSelection, p.State())

	// Selecting from an empty list fails, the user must scrub elsewhere
	require.Error(t, p.Select(0))

	_, err = p.DetectAt(context.Background(), 7)
	require.NoError(t, err)
}

func TestPicker_DetectionFailureRevertsToScrubbing(t *testing.T) {
	estimator := mock.NewFailing(errors.New("decode error"))
	p := newTestPicker(t, &fakeSource{duration: 10}, estimator)

	_, err := p.DetectAt(context.Background(), 4)
	require.Error(t, err)
	assert.Equal(t, StateAwaitingTimestamp, p.State())
}

func TestPicker_SeekFailureRevertsToScrubbing(t *testing.T) {
	source := &fakeSource{duration: 10, frameErr: video.ErrSeekFailed}
	p := newTestPicker(t, source, mock.NewStatic(nil))

	_, err := p.DetectAt(context.Background(), 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, video.ErrSeekFailed)
	assert.Equal(t, StateAwaitingTimestamp, p.State())
}

func TestPicker_NewDetectionDiscardsSelection(t *testing.T) {
	p := newTestPicker(t, &fakeSource{duration: 10}, mock.NewStatic([]pose.Subject{subjectNear(30, 30)}))

	_, err := p.DetectAt(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, p.Select(0))

	// Scrubbing again invalidates the frame-specific choice
	_, err = p.DetectAt(context.Background(), 2)
	require.NoError(t, err)

	_, err = p.Confirm()
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestPicker_SelectAt(t *testing.T) {
	left := subjectNear(100, 360)
	right := subjectNear(1000, 360)
	p := newTestPicker(t, &fakeSource{duration: 10}, mock.NewStatic([]pose.Subject{left, right}))

	_, err := p.DetectAt(context.Background(), 5)
	require.NoError(t, err)

	// Canvas is half the frame size, so frame x=1000 lands near canvas x=500
	idx, err := p.SelectAt(495, 180, 640, 360)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = p.SelectAt(55, 180, 640, 360)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	_, err = p.Confirm()
	require.NoError(t, err)
}

func TestPicker_SelectAtNoQualifyingSubject(t *testing.T) {
	// All keypoints below the confidence threshold
	weak := pose.Subject{
		Keypoints: []pose.Keypoint{
			{Name: "nose", X: 50, Y: 50, Score: 0.1},
		},
	}
	p := newTestPicker(t, &fakeSource{duration: 10}, mock.NewStatic([]pose.Subject{weak}))

	_, err := p.DetectAt(context.Background(), 1)
	require.NoError(t, err)

	_, err = p.SelectAt(50, 50, 1280, 720)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCandidate)
}

func TestPicker_SelectOutOfRange(t *testing.T) {
	p := newTestPicker(t, &fakeSource{duration: 10}, mock.NewStatic([]pose.Subject{subjectNear(10, 10)}))

	_, err := p.DetectAt(context.Background(), 1)
	require.NoError(t, err)

	assert.Error(t, p.Select(-1))
	assert.Error(t, p.Select(1))
	assert.NoError(t, p.Select(0))
}

func TestPicker_CancelReleasesSource(t *testing.T) {
	source := &fakeSource{duration: 10}
	p := newTestPicker(t, source, mock.NewStatic(nil))

	require.NoError(t, p.Cancel())
	assert.Equal(t, StateCancelled, p.State())
	assert.True(t, source.closed)

	// Finished sessions reject further use
	_, err := p.DetectAt(context.Background(), 1)
	assert.ErrorIs(t, err, ErrSessionFinished)
	_, err = p.Confirm()
	assert.ErrorIs(t, err, ErrSessionFinished)
	assert.ErrorIs(t, p.Cancel(), ErrSessionFinished)
}

func TestPicker_DeterministicForSameFrame(t *testing.T) {
	subjects := []pose.Subject{subjectNear(100, 100), subjectNear(400, 300)}
	p := newTestPicker(t, &fakeSource{duration: 10}, mock.NewStatic(subjects))

	first, err := p.DetectAt(context.Background(), 5)
	require.NoError(t, err)

	second, err := p.DetectAt(context.Background(), 5)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
