package models

import "time"

// Message roles as sent to the chat provider.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ValidRole reports whether role is one of the accepted conversation roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message is a single conversation turn. Insertion order is chronological
// order.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Bot is a user-owned chatbot with its bounded conversation log. Bots are
// embedded in the owning user and are not independently addressable.
type Bot struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`        // At most 100 characters.
	Personality   string    `json:"personality"` // System prompt, at most 5000 characters.
	Model         string    `json:"model"`
	Conversations []Message `json:"conversations"` // Capped at the plan history limit, oldest evicted first.
	CreatedAt     time.Time `json:"created_at"`
}
