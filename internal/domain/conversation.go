package domain

import (
	"time"
)

// Role identifies who produced a conversation message.
type Role string

const (
	// RoleUser marks a message that mirrors a user utterance.
	RoleUser Role = "user"
	// RoleAssistant marks assistant output.
	RoleAssistant Role = "assistant"
)

// ConversationMessage is one entry in the chat timeline. User messages mirror
// an Utterance and carry its current status; assistant messages have no status.
type ConversationMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Status    Status    `json:"status,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
