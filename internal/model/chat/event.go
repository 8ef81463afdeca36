package chat

// EventType tags conversation change notifications.
type EventType string

const (
	// EventSnapshot carries the full state; sent once when a feed opens.
	EventSnapshot EventType = "snapshot"
	// EventMessage announces an appended entry.
	EventMessage EventType = "message"
	// EventState announces a change of inFlight, theme or draft.
	EventState EventType = "state"
)

// Event is pushed to conversation subscribers.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	State     *State    `json:"state,omitempty"`
}
