package mock

import (
	"context"

	"github.com/matchsight/matchsight-be/internal/analysis"
)

// Provider satisfies analysis.CompletionProvider for testing.
type Provider struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
}

func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

func (p *Provider) Complete(ctx context.Context, prompt string) (string, error) {
	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, prompt)
	}
	return "", nil
}

// NewStatic returns a provider that always answers with the given completion.
func NewStatic(completion string) *Provider {
	return &Provider{
		CompleteFunc: func(_ context.Context, _ string) (string, error) {
			return completion, nil
		},
	}
}

// NewFailing returns a provider that always returns the given error.
func NewFailing(err error) *Provider {
	return &Provider{
		ProviderName: "mock-failing",
		CompleteFunc: func(_ context.Context, _ string) (string, error) {
			return "", err
		},
	}
}

var _ analysis.CompletionProvider = (*Provider)(nil)
