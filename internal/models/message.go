package models

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one line of the assistant conversation.
type ChatMessage struct {
	ID        int64     `json:"id" db:"id"`
	Role      string    `json:"role" db:"role"`
	Content   string    `json:"content" db:"content"`
	IsError   bool      `json:"is_error,omitempty" db:"is_error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
