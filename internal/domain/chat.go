package domain

import "time"

// ChatTurn is one answered chat exchange kept as a short-lived transcript.
type ChatTurn struct {
	UserID    string    `json:"user_id"`
	RequestID string    `json:"request_id"`
	Message   string    `json:"message"`
	Reply     string    `json:"reply"`
	CreatedAt time.Time `json:"created_at"`
}
