package chat

import "time"

// Sender identifies who authored a conversation entry.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ClockLayout is the human readable timestamp attached to every entry.
const ClockLayout = "15:04:05"

// Message is one entry of a conversation. Entries are never mutated once appended.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Time      string    `json:"time"`
	CreatedAt time.Time `json:"createdAt"`
	Error     bool      `json:"error,omitempty"`
}

// IsBot reports whether the entry was produced by the dispatcher.
func (m Message) IsBot() bool {
	return m.Sender == SenderBot
}
