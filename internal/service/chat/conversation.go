package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/promptdesk/internal/model/chat"
	"github.com/zhouzirui/promptdesk/internal/service/ai"
)

var (
	ErrMissingCredential = errors.New("api key is required")
	ErrEmptyPrompt       = errors.New("prompt is empty")
)

// Request is one submission from the user. It is never stored.
type Request struct {
	Prompt  string
	ModelID string
	APIKey  string
}

// Conversation owns the history of one session and talks to the external
// generation service on its behalf.
//
// Submissions are serialized; a failed submission leaves the history untouched.
// Reads never wait for an in-flight call.
type Conversation struct {
	factory ai.Factory
	now     func() time.Time

	// submitMu serializes Submit and guards client and clientKey.
	submitMu  sync.Mutex
	client    ai.Generator
	clientKey string

	mu      sync.RWMutex
	history []chat.Turn
}

// NewConversation returns an empty conversation using factory to build clients.
func NewConversation(factory ai.Factory) *Conversation {
	return &Conversation{
		factory: factory,
		now:     func() time.Time { return time.Now().UTC() },
		history: make([]chat.Turn, 0, 16),
	}
}

// Submit validates req, calls the external service once and on success appends
// the user turn and the bot turn, in that order. It returns ErrMissingCredential,
// ErrEmptyPrompt or an *ai.Error.
func (c *Conversation) Submit(ctx context.Context, req Request) error {
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	client, err := c.clientFor(ctx, req.APIKey)
	if err != nil {
		return err
	}

	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}

	text, err := client.Generate(ctx, req.ModelID, req.Prompt)
	if err != nil {
		return ai.AsError("", err)
	}

	now := c.now()
	user := chat.Turn{ID: uuid.NewString(), Role: chat.RoleUser, Content: req.Prompt, CreatedAt: now}
	bot := chat.Turn{ID: uuid.NewString(), Role: chat.RoleBot, Content: text, CreatedAt: now}

	c.mu.Lock()
	c.history = append(c.history, user, bot)
	c.mu.Unlock()
	return nil
}

// clientFor returns the cached client, rebuilding it when the key changes.
// Callers hold submitMu.
func (c *Conversation) clientFor(ctx context.Context, apiKey string) (ai.Generator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingCredential
	}
	if c.client != nil && c.clientKey == apiKey {
		return c.client, nil
	}

	client, err := c.factory(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingCredential, err)
	}
	c.client = client
	c.clientKey = apiKey
	return client, nil
}

// Render yields the turns in chronological order. Each iteration reads a
// snapshot taken when it starts, so the sequence can be ranged over again.
func (c *Conversation) Render() iter.Seq[chat.Turn] {
	return func(yield func(chat.Turn) bool) {
		for _, turn := range c.Turns() {
			if !yield(turn) {
				return
			}
		}
	}
}

// Turns returns a copy of the history.
func (c *Conversation) Turns() []chat.Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()

	copied := make([]chat.Turn, len(c.history))
	copy(copied, c.history)
	return copied
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.history)
}

// Reset drops the history. The cached client is kept.
func (c *Conversation) Reset() {
	c.mu.Lock()
	c.history = make([]chat.Turn, 0, 16)
	c.mu.Unlock()
}
