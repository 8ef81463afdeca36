package chat

// State is a point-in-time copy of a conversation and its transient UI flags.
type State struct {
	History      []Message `json:"history"`
	PendingInput string    `json:"pendingInput"`
	InFlight     bool      `json:"inFlight"`
	DarkMode     bool      `json:"darkMode"`
}

// LastBotMessage returns the most recent bot entry, if any.
func (s State) LastBotMessage() (Message, bool) {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].IsBot() {
			return s.History[i], true
		}
	}
	return Message{}, false
}
