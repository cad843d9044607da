package domain

import "time"

// Audit is a home energy audit submitted by a user. Only the most recent
// audit per user feeds the chat context.
type Audit struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Timestamp time.Time      `json:"timestamp"`
	Answers   map[string]any `json:"answers"`
}
