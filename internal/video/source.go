package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

var (
	// ErrSourceClosed is returned when a frame is requested after Close.
	ErrSourceClosed = errors.New("video source closed")

	// ErrSeekFailed is returned when a frame cannot be decoded at the requested time.
	ErrSeekFailed = errors.New("seek failed")
)

// Frame is a single decoded video frame (JPEG bytes plus pixel dimensions).
type Frame struct {
	Data   []byte
	Width  int
	Height int
}

// Source exposes timed read access to a video file. Implementations are not
// required to be safe for concurrent use; the extraction loop is sequential.
type Source interface {
	// Duration returns the video duration in seconds.
	Duration(ctx context.Context) (float64, error)
	// FrameAt seeks to the given second and returns the frame at that position.
	FrameAt(ctx context.Context, seconds float64) (Frame, error)
	// Close releases any resources held by the source.
	Close() error
}

// commandResult captures one external command invocation.
type commandResult struct {
	Stdout   []byte
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// FileSource reads frames from a video file using ffprobe and ffmpeg.
type FileSource struct {
	path        string
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner

	// probed lazily on first Duration/FrameAt call
	duration float64
	width    int
	height   int
	probed   bool
	closed   bool
}

// NewFileSource creates a source for the video at path. The file must exist.
func NewFileSource(path string) (*FileSource, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("video path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot access video file %s: %w", path, err)
	}

	return &FileSource{
		path:        path,
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      &execRunner{},
	}, nil
}

func (s *FileSource) Duration(ctx context.Context) (float64, error) {
	if s.closed {
		return 0, ErrSourceClosed
	}
	if err := s.probe(ctx); err != nil {
		return 0, err
	}
	return s.duration, nil
}

// FrameAt extracts a single JPEG frame at the given timestamp. ffmpeg's -ss
// before -i seeks on the demuxer, which is fast and accurate enough for
// one-second sampling granularity.
func (s *FileSource) FrameAt(ctx context.Context, seconds float64) (Frame, error) {
	if s.closed {
		return Frame{}, ErrSourceClosed
	}
	if seconds < 0 {
		return Frame{}, fmt.Errorf("%w: negative timestamp %f", ErrSeekFailed, seconds)
	}
	if err := s.probe(ctx); err != nil {
		return Frame{}, err
	}

	result, err := s.runner.Run(ctx, s.ffmpegPath,
		"-v", "error",
		"-ss", formatSeconds(seconds),
		"-i", s.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-",
	)
	if err != nil {
		return Frame{}, fmt.Errorf("%w at %s: %s", ErrSeekFailed, formatSeconds(seconds), strings.TrimSpace(result.Stderr))
	}
	if len(result.Stdout) == 0 {
		// Seeking past the last frame produces empty output with exit code 0.
		return Frame{}, fmt.Errorf("%w: no frame at %s", ErrSeekFailed, formatSeconds(seconds))
	}

	return Frame{
		Data:   result.Stdout,
		Width:  s.width,
		Height: s.height,
	}, nil
}

func (s *FileSource) Close() error {
	s.closed = true
	return nil
}

// probe reads duration and dimensions once per source.
func (s *FileSource) probe(ctx context.Context) error {
	if s.probed {
		return nil
	}

	durOut, err := s.runner.Run(ctx, s.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		s.path,
	)
	if err != nil {
		return fmt.Errorf("probing duration of %s: %s", s.path, strings.TrimSpace(durOut.Stderr))
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(durOut.Stdout)), 64)
	if err != nil {
		return fmt.Errorf("parsing probed duration %q: %w", strings.TrimSpace(string(durOut.Stdout)), err)
	}

	dimOut, err := s.runner.Run(ctx, s.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		s.path,
	)
	if err != nil {
		return fmt.Errorf("probing dimensions of %s: %s", s.path, strings.TrimSpace(dimOut.Stderr))
	}

	width, height, err := parseDimensions(strings.TrimSpace(string(dimOut.Stdout)))
	if err != nil {
		return err
	}

	s.duration = duration
	s.width = width
	s.height = height
	s.probed = true
	return nil
}

func parseDimensions(out string) (int, int, error) {
	parts := strings.Split(out, "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected dimension output %q", out)
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing frame width %q: %w", parts[0], err)
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("parsing frame height %q: %w", parts[1], err)
	}
	return width, height, nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
