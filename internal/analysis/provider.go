package analysis

import (
	"context"
	"errors"
)

var (
	// ErrProviderUnavailable indicates the text-completion collaborator could
	// not be reached.
	ErrProviderUnavailable = errors.New("completion provider unavailable")

	// ErrInvalidCompletion indicates the collaborator answered but the response
	// carried no usable completion.
	ErrInvalidCompletion = errors.New("completion provider returned invalid response")
)

// CompletionProvider is the opaque text-completion capability. Never call a
// specific vendor client directly; inject this interface.
type CompletionProvider interface {
	// Complete sends one instruction and returns the raw completion text.
	Complete(ctx context.Context, prompt string) (string, error)
	// Name returns the provider identifier (e.g. "openai").
	Name() string
}
