package chat_test

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/promptdesk/internal/service/ai"
)

// stubGenerator records calls and answers through reply.
type stubGenerator struct {
	mu     sync.Mutex
	calls  int
	models []string
	reply  func(modelID, prompt string) (string, error)
}

func (g *stubGenerator) Generate(_ context.Context, modelID, prompt string) (string, error) {
	g.mu.Lock()
	g.calls++
	g.models = append(g.models, modelID)
	g.mu.Unlock()
	return g.reply(modelID, prompt)
}

func (g *stubGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func echoGenerator() *stubGenerator {
	return &stubGenerator{reply: func(_, prompt string) (string, error) {
		return "ECHO:" + prompt, nil
	}}
}

// countingFactory hands out gen and counts how many clients were built per key.
type countingFactory struct {
	mu     sync.Mutex
	gen    ai.Generator
	builds map[string]int
	reject map[string]bool
}

func newCountingFactory(gen ai.Generator) *countingFactory {
	return &countingFactory{gen: gen, builds: map[string]int{}, reject: map[string]bool{}}
}

func (f *countingFactory) Build(_ context.Context, apiKey string) (ai.Generator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reject[apiKey] {
		return nil, errors.New("malformed api key")
	}
	f.builds[apiKey]++
	return f.gen, nil
}

func (f *countingFactory) Builds(apiKey string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds[apiKey]
}
