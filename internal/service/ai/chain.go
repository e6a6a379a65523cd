package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ChatModelBuilder creates the eino chat model serving one model identifier.
type ChatModelBuilder func(ctx context.Context, modelID string) (model.BaseChatModel, error)

// ChainGenerator runs prompts through an eino chain (chat template followed by a
// chat model). Compiled chains are cached per model identifier.
type ChainGenerator struct {
	provider     string
	build        ChatModelBuilder
	systemPrompt string

	mu     sync.Mutex
	chains map[string]compose.Runnable[map[string]any, *schema.Message]
}

// NewChainGenerator returns a Generator backed by chat models from build.
func NewChainGenerator(provider string, build ChatModelBuilder, systemPrompt string) *ChainGenerator {
	return &ChainGenerator{
		provider:     provider,
		build:        build,
		systemPrompt: systemPrompt,
		chains:       make(map[string]compose.Runnable[map[string]any, *schema.Message]),
	}
}

// Generate runs the prompt through the chain for modelID.
func (g *ChainGenerator) Generate(ctx context.Context, modelID, prompt string) (string, error) {
	runnable, err := g.chain(ctx, modelID)
	if err != nil {
		return "", AsError(g.provider, err)
	}

	response, err := runnable.Invoke(ctx, g.chainInput(prompt))
	if err != nil {
		return "", AsError(g.provider, err)
	}
	if response == nil {
		return "", &Error{Kind: ErrServer, Provider: g.provider, Message: "empty response from chat model"}
	}
	return response.Content, nil
}

func (g *ChainGenerator) chainInput(prompt string) map[string]any {
	input := map[string]any{"query": prompt}
	if g.systemPrompt != "" {
		input["system"] = g.systemPrompt
	}
	return input
}

func (g *ChainGenerator) chain(ctx context.Context, modelID string) (compose.Runnable[map[string]any, *schema.Message], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if runnable, ok := g.chains[modelID]; ok {
		return runnable, nil
	}

	chatModel, err := g.build(ctx, modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model %q: %w", modelID, err)
	}

	templates := make([]schema.MessagesTemplate, 0, 2)
	if g.systemPrompt != "" {
		templates = append(templates, schema.SystemMessage("{system}"))
	}
	templates = append(templates, schema.UserMessage("{query}"))

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(prompt.FromMessages(schema.FString, templates...))
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	g.chains[modelID] = runnable
	return runnable, nil
}
