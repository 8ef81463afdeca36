package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/onedevai/ai-chatbot/internal/metrics"
	"github.com/onedevai/ai-chatbot/internal/model/chat"
	"github.com/onedevai/ai-chatbot/internal/service/conversation"
	"github.com/onedevai/ai-chatbot/internal/service/dispatch"
)

var ErrSessionNotFound = errors.New("session not found")

type entry struct {
	session    chat.Session
	dispatcher *dispatch.Dispatcher
}

// Service keeps the server-held conversations in memory.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*entry

	fetcher  dispatch.Fetcher
	timeout  time.Duration
	darkMode bool
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// Option customises the Service.
type Option func(*Service)

// WithTimeout bounds every outbound call made for a session.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithDefaultDarkMode sets the theme new sessions start with.
func WithDefaultDarkMode(dark bool) Option {
	return func(s *Service) { s.darkMode = dark }
}

// WithLogger sets the logger handed to each dispatcher.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithMetrics records cycles and session counts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService bootstraps the registry. Every session sends its prompts through fetcher.
func NewService(fetcher dispatch.Fetcher, opts ...Option) *Service {
	s := &Service{
		sessions: make(map[string]*entry),
		fetcher:  fetcher,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession provisions an anonymous conversation.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	store := conversation.NewStore(
		conversation.WithSessionID(session.ID),
		conversation.WithDarkMode(s.darkMode),
	)
	d := dispatch.New(store, s.fetcher,
		dispatch.WithTimeout(s.timeout),
		dispatch.WithMetrics(s.metrics),
		dispatch.WithLogger(s.logger.With().Str("session_id", session.ID).Logger()),
	)

	s.mu.Lock()
	s.sessions[session.ID] = &entry{session: session, dispatcher: d}
	s.mu.Unlock()

	s.metrics.SessionOpened()
	s.logger.Debug().Str("session_id", session.ID).Msg("session created")
	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return e.session, nil
}

// Store returns the conversation held for sessionID.
func (s *Service) Store(_ context.Context, sessionID string) (*conversation.Store, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.dispatcher.Store(), nil
}

// Dispatcher returns the dispatcher bound to sessionID.
func (s *Service) Dispatcher(_ context.Context, sessionID string) (*dispatch.Dispatcher, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.dispatcher, nil
}

// EndSession discards the conversation and detaches its listeners.
func (s *Service) EndSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	e.dispatcher.Store().Close()
	s.metrics.SessionClosed()
	s.logger.Debug().Str("session_id", sessionID).Msg("session ended")
	return nil
}

// ListSessions returns the live sessions, oldest first.
func (s *Service) ListSessions(_ context.Context) []chat.Session {
	s.mu.RLock()
	sessions := make([]chat.Session, 0, len(s.sessions))
	for _, e := range s.sessions {
		sessions = append(sessions, e.session)
	}
	s.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

// Close ends every session.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for range sessions {
		s.metrics.SessionClosed()
	}
	for _, e := range sessions {
		e.dispatcher.Store().Close()
	}
}

// lookup takes the read lock; callers must not hold s.mu.
func (s *Service) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}
