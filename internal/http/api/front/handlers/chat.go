package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/chatforge-app/chatforge/internal/botchat"
	"github.com/chatforge-app/chatforge/internal/models"
	"github.com/chatforge-app/chatforge/internal/openai"
	"github.com/chatforge-app/chatforge/internal/quota"
	"github.com/chatforge-app/chatforge/internal/ratelimit"
)

// sendMessage runs one chat turn: rate check, quota check, provider call,
// then a single locked persist of both conversation turns and the usage
// increment. Local state is only mutated after the provider call has
// definitively succeeded.
func (h *Handler) sendMessage(c *gin.Context, raw []byte, userID string) {
	var req struct {
		BotID   string           `json:"botId" validate:"required"`
		Message string           `json:"message" validate:"required"`
		APIKey  string           `json:"apiKey"`
		History []models.Message `json:"history"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "bot ID and message are required")
		return
	}

	message := sanitize(req.Message)
	if message == "" {
		failure(c, http.StatusBadRequest, "bot ID and message are required")
		return
	}
	if len(message) > botchat.MaxMessageLen {
		failure(c, http.StatusBadRequest, "message too long (max 10000 characters)")
		return
	}
	clientHistory := sanitizeHistory(req.History)

	ctx := c.Request.Context()
	now := h.nowFn()

	check, errCheck := h.limiter.Check(ctx, userID, ratelimit.ActionMessage)
	if errCheck != nil {
		failure(c, http.StatusInternalServerError, "message failed")
		return
	}
	if !check.Allowed {
		rateFailure(c, check.Reset, now, "message rate limit exceeded, try again later")
		return
	}

	// Pre-flight on an unlocked snapshot: quota and bot existence. The
	// authoritative re-check happens inside the locked persist below.
	snapshot, errFind := h.users.FindByID(ctx, userID)
	if errFind != nil {
		failure(c, http.StatusNotFound, "user not found")
		return
	}
	quota.ResetIfNeeded(&snapshot, now)
	if !quota.CanSendMessage(&snapshot) {
		failure(c, http.StatusForbidden, "message limit reached for your plan")
		return
	}
	bot := botchat.FindBot(&snapshot, req.BotID)
	if bot == nil {
		failure(c, http.StatusNotFound, "bot not found")
		return
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = h.openAI.APIKey
	}

	historyCap := quota.HistoryLimit(snapshot.Plan)
	window := botchat.ContextWindow(botchat.MergeHistory(bot.Conversations, clientHistory), historyCap)

	reply, errReply := h.chat.GenerateReply(ctx, openai.ChatRequest{
		SystemPrompt: bot.Personality,
		History:      window,
		UserMessage:  message,
		Model:        bot.Model,
		APIKey:       apiKey,
	})
	if errReply != nil {
		respondProviderError(c, errReply)
		return
	}

	// Provider call succeeded: apply the whole mutation in one exclusive
	// section so concurrent requests never observe a half-applied turn.
	var usage models.Usage
	var conversation []models.Message
	var nearLimit, nearQuota bool
	errUpdate := h.users.Update(ctx, userID, func(user *models.User) error {
		quota.ResetIfNeeded(user, now)
		target := botchat.FindBot(user, req.BotID)
		if target == nil {
			return botchat.ErrBotNotFound
		}
		target.Conversations = botchat.MergeHistory(target.Conversations, clientHistory)
		botchat.AppendTurn(target, models.RoleUser, message, now)
		botchat.AppendTurn(target, models.RoleAssistant, reply, now)

		cap := quota.HistoryLimit(user.Plan)
		nearLimit = botchat.NearHistoryLimit(len(target.Conversations), cap)
		target.Conversations = botchat.Truncate(target.Conversations, cap)

		user.Usage.Messages++
		usage = user.Usage
		conversation = target.Conversations
		nearQuota = quota.NearQuota(user)
		return nil
	})
	if errUpdate != nil {
		if errors.Is(errUpdate, botchat.ErrBotNotFound) {
			failure(c, http.StatusNotFound, "bot not found")
			return
		}
		failure(c, http.StatusInternalServerError, "message failed")
		return
	}

	if errRecord := h.limiter.Record(ctx, userID, ratelimit.ActionMessage); errRecord != nil {
		log.WithError(errRecord).Warn("record message rate event failed")
	}

	success(c, gin.H{
		"response":     reply,
		"usage":        usage,
		"conversation": conversation,
		"nearLimit":    nearLimit,
		"nearQuota":    nearQuota,
	})
}

// sanitizeHistory filters client-submitted history down to entries with a
// valid role, trimming over-long content and bounding ids, as the original
// validateHistory did.
func sanitizeHistory(history []models.Message) []models.Message {
	if len(history) == 0 {
		return nil
	}
	out := make([]models.Message, 0, len(history))
	for _, entry := range history {
		if !models.ValidRole(entry.Role) || entry.Content == "" {
			continue
		}
		if len(entry.Content) > botchat.MaxMessageLen {
			entry.Content = entry.Content[:botchat.MaxMessageLen]
		}
		if len(entry.ID) > 128 {
			entry.ID = entry.ID[:128]
		}
		out = append(out, entry)
	}
	return out
}

// respondProviderError maps provider failures onto the response taxonomy.
// No local state has been mutated at this point.
func respondProviderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, openai.ErrMissingAPIKey):
		failure(c, http.StatusBadRequest, "API key not configured")
	case errors.Is(err, openai.ErrUnauthorized):
		failure(c, http.StatusBadGateway, "provider rejected the API key")
	case errors.Is(err, openai.ErrRateLimited):
		failure(c, http.StatusBadGateway, "provider rate limit reached, try again later")
	default:
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			failure(c, http.StatusBadGateway, apiErr.Error())
			return
		}
		log.WithError(err).Warn("provider call failed")
		failure(c, http.StatusBadGateway, "provider request failed")
	}
}
