package ai

import (
	"context"
	"fmt"

	"github.com/zhouzirui/promptdesk/internal/config"
	"github.com/zhouzirui/promptdesk/internal/model/catalog"
)

// Generator is the external text-generation service: one blocking call taking a
// model identifier and a prompt and returning the generated text.
type Generator interface {
	Generate(ctx context.Context, modelID, prompt string) (string, error)
}

// Factory builds a Generator bound to a credential. It fails when the credential
// cannot be used to construct a client.
type Factory func(ctx context.Context, apiKey string) (Generator, error)

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, modelID, prompt string) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	return f(ctx, modelID, prompt)
}

// NewFactory returns the Factory for the configured provider.
func NewFactory(cfg config.AIConfig) (Factory, error) {
	switch cfg.Provider {
	case catalog.ProviderGemini:
		return NewGeminiFactory(cfg), nil
	case catalog.ProviderOpenAI:
		return NewOpenAIFactory(cfg), nil
	case catalog.ProviderArk:
		return NewArkFactory(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}
