package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/promptdesk/internal/model/chat"
	"github.com/zhouzirui/promptdesk/internal/service/ai"
)

var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	session      chat.Session
	settings     chat.Settings
	conversation *Conversation
	lastSeen     time.Time
	notice       chat.Notice
}

// Service keeps every live session and its conversation in memory.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	factory ai.Factory
	idleTTL time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithIdleTTL evicts sessions idle for longer than ttl. Zero keeps them forever.
func WithIdleTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.idleTTL = ttl
	}
}

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService bootstraps the in-memory chat service.
func NewService(factory ai.Factory, opts ...Option) *Service {
	s := &Service{
		sessions: make(map[string]*entry),
		factory:  factory,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateSession provisions an anonymous session with an empty conversation.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	now := s.now()
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
	}

	conversation := NewConversation(s.factory)
	conversation.now = s.now

	s.mu.Lock()
	s.sessions[session.ID] = &entry{
		session:      session,
		conversation: conversation,
		lastSeen:     now,
	}
	s.mu.Unlock()

	s.logger.Debug("session created", zap.String("session_id", session.ID))
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.touch(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return e.session, nil
}

// Conversation returns the conversation bound to a session.
func (s *Service) Conversation(_ context.Context, sessionID string) (*Conversation, error) {
	e, err := s.touch(sessionID)
	if err != nil {
		return nil, err
	}
	return e.conversation, nil
}

// Settings returns the stored sidebar settings of a session.
func (s *Service) Settings(_ context.Context, sessionID string) (chat.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return chat.Settings{}, ErrSessionNotFound
	}
	return e.settings, nil
}

// UpdateSettings replaces the stored sidebar settings of a session.
func (s *Service) UpdateSettings(_ context.Context, sessionID string, settings chat.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	e.settings = settings
	e.lastSeen = s.now()
	return nil
}

// Submit forwards a prompt to the session's conversation. Empty model or key
// fields fall back to the stored settings; non-empty ones are remembered.
func (s *Service) Submit(ctx context.Context, sessionID string, req Request) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return ErrSessionNotFound
	}
	if req.APIKey == "" {
		req.APIKey = e.settings.APIKey
	} else {
		e.settings.APIKey = req.APIKey
	}
	if req.ModelID == "" {
		req.ModelID = e.settings.ModelID
	} else {
		e.settings.ModelID = req.ModelID
	}
	e.lastSeen = s.now()
	conversation := e.conversation
	s.mu.Unlock()

	start := s.now()
	err := conversation.Submit(ctx, req)
	if err != nil {
		s.logger.Info("submission rejected",
			zap.String("session_id", sessionID),
			zap.String("model", req.ModelID),
			zap.Error(err),
		)
		return err
	}

	s.logger.Info("generated response",
		zap.String("session_id", sessionID),
		zap.String("model", req.ModelID),
		zap.Int("turns", conversation.Len()),
		zap.Duration("elapsed", s.now().Sub(start)),
	)
	return nil
}

// LoadTranscript returns the turns of the provided session.
func (s *Service) LoadTranscript(ctx context.Context, sessionID string) ([]chat.Turn, error) {
	conversation, err := s.Conversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return conversation.Turns(), nil
}

// DeleteSession ends a session and drops its history.
func (s *Service) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, sessionID)
	return nil
}

// SetNotice stores a one-shot message to show on the next page render.
func (s *Service) SetNotice(_ context.Context, sessionID string, notice chat.Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	e.notice = notice
	return nil
}

// TakeNotice returns and clears the pending notice.
func (s *Service) TakeNotice(_ context.Context, sessionID string) chat.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return chat.Notice{}
	}
	notice := e.notice
	e.notice = chat.Notice{}
	return notice
}

// Prune removes sessions idle since before now minus the idle TTL and returns how
// many were removed.
func (s *Service) Prune(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}

	cutoff := now.Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunJanitor prunes idle sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Prune(s.now()); removed > 0 {
				s.logger.Info("pruned idle sessions", zap.Int("removed", removed))
			}
		}
	}
}

// Count returns the number of live sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Service) touch(sessionID string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = s.now()
	return e, nil
}
