// Package botchat manages a user's embedded bot list and each bot's bounded
// conversation log: creation, lookup, turn appends, client-history merge,
// and plan-capped truncation.
package botchat

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"

	"github.com/chatforge-app/chatforge/internal/models"
)

// Field length caps carried over from the original system.
const (
	MaxNameLen        = 100
	MaxPersonalityLen = 5000
	MaxMessageLen     = 10000
)

// historyWarnBuffer is how close to the history cap the near-limit warning
// fires.
const historyWarnBuffer = 4

// ErrBotNotFound indicates no bot with the given id belongs to the user.
var ErrBotNotFound = errors.New("botchat: bot not found")

// NewBot builds a bot with a fresh id and empty conversation log. Length and
// model checks are the caller's responsibility.
func NewBot(name, personality, model string, now time.Time) models.Bot {
	return models.Bot{
		ID:            uuid.NewString(),
		Name:          name,
		Personality:   personality,
		Model:         model,
		Conversations: []models.Message{},
		CreatedAt:     now.UTC(),
	}
}

// ValidateBot checks the creation fields against the length caps.
func ValidateBot(name, personality string) error {
	if name == "" || personality == "" {
		return errors.New("botchat: name and personality are required")
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("botchat: name too long (max %d characters)", MaxNameLen)
	}
	if len(personality) > MaxPersonalityLen {
		return fmt.Errorf("botchat: personality too long (max %d characters)", MaxPersonalityLen)
	}
	return nil
}

// FindBot returns a pointer into the user's bot list, or nil.
func FindBot(user *models.User, botID string) *models.Bot {
	for i := range user.Bots {
		if user.Bots[i].ID == botID {
			return &user.Bots[i]
		}
	}
	return nil
}

// RemoveBot deletes the bot from the user's list, reporting whether it was
// present.
func RemoveBot(user *models.User, botID string) bool {
	for i := range user.Bots {
		if user.Bots[i].ID == botID {
			user.Bots = append(user.Bots[:i], user.Bots[i+1:]...)
			return true
		}
	}
	return false
}

// AppendTurn appends a conversation turn with a fresh id and timestamp and
// returns it.
func AppendTurn(bot *models.Bot, role, content string, now time.Time) models.Message {
	msg := models.Message{
		ID:        ksuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: now.UTC(),
	}
	bot.Conversations = append(bot.Conversations, msg)
	return msg
}

// MergeHistory appends client-submitted entries to the server-held history
// when their id is not already present server-side. Entries without an id
// are always treated as new. This reconciles a client that sent messages the
// server never recorded.
func MergeHistory(server, client []models.Message) []models.Message {
	seen := make(map[string]struct{}, len(server))
	for _, msg := range server {
		if msg.ID != "" {
			seen[msg.ID] = struct{}{}
		}
	}
	merged := server
	for _, msg := range client {
		if msg.ID != "" {
			if _, dup := seen[msg.ID]; dup {
				continue
			}
			seen[msg.ID] = struct{}{}
		}
		if len(msg.Content) > MaxMessageLen {
			msg.Content = msg.Content[:MaxMessageLen]
		}
		merged = append(merged, msg)
	}
	return merged
}

// Truncate keeps only the most recent cap entries, dropping oldest first.
func Truncate(msgs []models.Message, cap int) []models.Message {
	if cap <= 0 || len(msgs) <= cap {
		return msgs
	}
	return msgs[len(msgs)-cap:]
}

// ContextWindow returns the slice of the most recent cap entries to send to
// the provider. It is a view over the log, not a mutation of it.
func ContextWindow(msgs []models.Message, cap int) []models.Message {
	if cap <= 0 || len(msgs) <= cap {
		return msgs
	}
	return msgs[len(msgs)-cap:]
}

// NearHistoryLimit reports whether the conversation is within the warning
// buffer of the plan's history cap.
func NearHistoryLimit(count, cap int) bool {
	return cap > 0 && count >= cap-historyWarnBuffer
}
