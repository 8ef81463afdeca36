// Package conversation holds the append-only chat history of a single
// conversation together with its transient UI flags.
package conversation

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/onedevai/ai-chatbot/internal/model/chat"
)

// ErrorText is the fixed entry appended when a cycle fails.
const ErrorText = "Error: Unable to fetch response."

const subscriberBuffer = 32

// Store is the only owner of a conversation's state. All mutation goes through
// its methods; readers receive copies.
type Store struct {
	mu           sync.Mutex
	sessionID    string
	history      []chat.Message
	pendingInput string
	inFlight     bool
	darkMode     bool
	now          func() time.Time

	subs    map[int]chan chat.Event
	nextSub int
	dropped atomic.Int64
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSessionID tags emitted events with the owning session.
func WithSessionID(id string) Option {
	return func(s *Store) { s.sessionID = id }
}

// WithDarkMode sets the initial theme.
func WithDarkMode(dark bool) Option {
	return func(s *Store) { s.darkMode = dark }
}

// NewStore returns an empty conversation.
func NewStore(opts ...Option) *Store {
	s := &Store{
		history: make([]chat.Message, 0, 16),
		now:     time.Now,
		subs:    make(map[int]chan chat.Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AppendUserMessage records a submitted prompt and marks the conversation in
// flight. It is a no-op returning false when text is blank or a request is
// already outstanding.
func (s *Store) AppendUserMessage(text string) (chat.Message, bool) {
	if strings.TrimSpace(text) == "" {
		return chat.Message{}, false
	}

	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return chat.Message{}, false
	}
	msg := s.newMessage(chat.SenderUser, text, false)
	s.history = append(s.history, msg)
	s.pendingInput = ""
	s.inFlight = true
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(chat.Event{Type: chat.EventMessage, Message: &msg})
	s.publish(chat.Event{Type: chat.EventState, State: &state})
	return msg, true
}

// AppendBotMessage records a reply and ends the in-flight period.
func (s *Store) AppendBotMessage(text string) chat.Message {
	return s.appendBot(text, false)
}

// AppendErrorMessage records the fixed error entry and ends the in-flight period.
func (s *Store) AppendErrorMessage() chat.Message {
	return s.appendBot(ErrorText, true)
}

func (s *Store) appendBot(text string, isErr bool) chat.Message {
	s.mu.Lock()
	msg := s.newMessage(chat.SenderBot, text, isErr)
	s.history = append(s.history, msg)
	s.inFlight = false
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(chat.Event{Type: chat.EventMessage, Message: &msg})
	s.publish(chat.Event{Type: chat.EventState, State: &state})
	return msg
}

// SetPendingInput replaces the current draft.
func (s *Store) SetPendingInput(text string) {
	s.mu.Lock()
	if s.pendingInput == text {
		s.mu.Unlock()
		return
	}
	s.pendingInput = text
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(chat.Event{Type: chat.EventState, State: &state})
}

// ToggleTheme flips the theme flag and returns the new value.
func (s *Store) ToggleTheme() bool {
	s.mu.Lock()
	s.darkMode = !s.darkMode
	dark := s.darkMode
	state := s.snapshotLocked()
	s.mu.Unlock()

	s.publish(chat.Event{Type: chat.EventState, State: &state})
	return dark
}

// Snapshot returns a copy of the whole conversation state.
func (s *Store) Snapshot() chat.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// History returns a copy of the ordered entries.
func (s *Store) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]chat.Message(nil), s.history...)
}

// InFlight reports whether a request is outstanding.
func (s *Store) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// DarkMode reports the theme flag.
func (s *Store) DarkMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.darkMode
}

// Subscribe registers a listener for conversation events. The returned cancel
// function must be called to release it; it closes the channel.
func (s *Store) Subscribe() (<-chan chat.Event, func()) {
	ch := make(chan chat.Event, subscriberBuffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
}

// Close detaches every subscriber. The store remains readable.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// DroppedEvents counts events discarded because a subscriber was too slow.
func (s *Store) DroppedEvents() int64 {
	return s.dropped.Load()
}

func (s *Store) newMessage(sender chat.Sender, text string, isErr bool) chat.Message {
	now := s.now()
	return chat.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		Time:      now.Format(chat.ClockLayout),
		CreatedAt: now.UTC(),
		Error:     isErr,
	}
}

func (s *Store) snapshotLocked() chat.State {
	return chat.State{
		History:      append(make([]chat.Message, 0, len(s.history)), s.history...),
		PendingInput: s.pendingInput,
		InFlight:     s.inFlight,
		DarkMode:     s.darkMode,
	}
}

// publish delivers without blocking. Sends happen under the lock so a
// concurrent cancel cannot close a channel mid-send.
func (s *Store) publish(ev chat.Event) {
	ev.SessionID = s.sessionID

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.dropped.Add(1)
		}
	}
}
