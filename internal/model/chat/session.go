package chat

import "time"

// Session captures a transient anonymous conversation held by the server.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}
