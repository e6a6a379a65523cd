package ai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/zhouzirui/promptdesk/internal/config"
	"github.com/zhouzirui/promptdesk/internal/model/catalog"
)

// geminiModels is the subset of *genai.Models used for generation.
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type geminiGenerator struct {
	models geminiModels
	config *genai.GenerateContentConfig
}

// NewGeminiFactory returns a Factory building Gemini API clients.
func NewGeminiFactory(cfg config.AIConfig) Factory {
	genCfg := geminiContentConfig(cfg)

	return func(ctx context.Context, apiKey string) (Generator, error) {
		clientCfg := &genai.ClientConfig{
			APIKey:  apiKey,
			Backend: genai.BackendGeminiAPI,
		}
		if cfg.BaseURL != "" {
			clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
		}

		client, err := genai.NewClient(ctx, clientCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		return &geminiGenerator{models: client.Models, config: genCfg}, nil
	}
}

func (g *geminiGenerator) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	resp, err := g.models.GenerateContent(ctx, modelID, genai.Text(prompt), g.config)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", emptyGeminiResponse(resp)
	}
	return resp.Text(), nil
}

// emptyGeminiResponse reports a response without candidates, which Gemini sends
// when the prompt itself was blocked.
func emptyGeminiResponse(resp *genai.GenerateContentResponse) error {
	if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		message := fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			message += " (" + resp.PromptFeedback.BlockReasonMessage + ")"
		}
		return &Error{Kind: ErrInvalidRequest, Provider: catalog.ProviderGemini, Message: message}
	}
	return &Error{Kind: ErrServer, Provider: catalog.ProviderGemini, Message: "response contained no candidates"}
}

// geminiContentConfig returns nil when nothing is configured so requests carry
// the service defaults.
func geminiContentConfig(cfg config.AIConfig) *genai.GenerateContentConfig {
	if cfg.SystemPrompt == "" && cfg.Temperature == nil && cfg.TopP == nil && cfg.MaxTokens == nil {
		return nil
	}

	out := &genai.GenerateContentConfig{}
	if cfg.SystemPrompt != "" {
		out.SystemInstruction = genai.NewContentFromText(cfg.SystemPrompt, genai.RoleUser)
	}
	if cfg.Temperature != nil {
		out.Temperature = genai.Ptr(float32(*cfg.Temperature))
	}
	if cfg.TopP != nil {
		out.TopP = genai.Ptr(float32(*cfg.TopP))
	}
	if cfg.MaxTokens != nil {
		out.MaxOutputTokens = int32(*cfg.MaxTokens)
	}
	return out
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &apiErrPtr):
		apiErr = *apiErrPtr
	default:
		return AsError(catalog.ProviderGemini, err)
	}

	kind := kindFromStatus(apiErr.Code)
	if kind == ErrUnknown {
		kind = classifyMessage(err)
	}
	message := apiErr.Message
	if message == "" {
		message = err.Error()
	}
	return &Error{Kind: kind, Provider: catalog.ProviderGemini, Message: message, Cause: err}
}
