package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chatforge-app/chatforge/internal/botchat"
	"github.com/chatforge-app/chatforge/internal/models"
	"github.com/chatforge-app/chatforge/internal/quota"
)

// defaultChatModel is used when bot creation omits a model.
const defaultChatModel = "gpt-4o-mini"

// createBot adds a bot to the user's list after plan and length checks.
func (h *Handler) createBot(c *gin.Context, raw []byte, userID string) {
	var req struct {
		Name        string `json:"name" validate:"required"`
		Personality string `json:"personality" validate:"required"`
		Model       string `json:"model"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "name and personality are required")
		return
	}

	name := sanitize(req.Name)
	personality := sanitize(req.Personality)
	if errValidate := botchat.ValidateBot(name, personality); errValidate != nil {
		failure(c, http.StatusBadRequest, strings.TrimPrefix(errValidate.Error(), "botchat: "))
		return
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = defaultChatModel
	}

	ctx := c.Request.Context()
	now := h.nowFn()
	var created models.Bot
	errUpdate := h.users.Update(ctx, userID, func(user *models.User) error {
		if !quota.IsModelAllowed(user.Plan, model) {
			return fmt.Errorf("model %q is not available on the %s plan", model, user.Plan)
		}
		created = botchat.NewBot(name, personality, model, now)
		user.Bots = append(user.Bots, created)
		return nil
	})
	if errUpdate != nil {
		failure(c, http.StatusForbidden, errUpdate.Error())
		return
	}
	success(c, gin.H{"bot": created})
}

// getBots lists the user's bots.
func (h *Handler) getBots(c *gin.Context, _ []byte, userID string) {
	user, errFind := h.users.FindByID(c.Request.Context(), userID)
	if errFind != nil {
		failure(c, http.StatusNotFound, "user not found")
		return
	}
	bots := user.Bots
	if bots == nil {
		bots = []models.Bot{}
	}
	success(c, gin.H{"bots": bots})
}

// getBot returns a single bot with its conversation log.
func (h *Handler) getBot(c *gin.Context, raw []byte, userID string) {
	var req struct {
		BotID string `json:"botId" validate:"required"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "bot ID is required")
		return
	}

	user, errFind := h.users.FindByID(c.Request.Context(), userID)
	if errFind != nil {
		failure(c, http.StatusNotFound, "user not found")
		return
	}
	bot := botchat.FindBot(&user, req.BotID)
	if bot == nil {
		failure(c, http.StatusNotFound, "bot not found")
		return
	}
	success(c, gin.H{"bot": bot})
}

// deleteBot removes a bot and its conversation log.
func (h *Handler) deleteBot(c *gin.Context, raw []byte, userID string) {
	var req struct {
		BotID string `json:"botId" validate:"required"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "bot ID is required")
		return
	}

	errUpdate := h.users.Update(c.Request.Context(), userID, func(user *models.User) error {
		if !botchat.RemoveBot(user, req.BotID) {
			return botchat.ErrBotNotFound
		}
		return nil
	})
	if errUpdate != nil {
		if errors.Is(errUpdate, botchat.ErrBotNotFound) {
			failure(c, http.StatusNotFound, "bot not found")
			return
		}
		failure(c, http.StatusInternalServerError, "delete failed")
		return
	}
	success(c, nil)
}

// exportConversation streams a bot's conversation log as a plain-text
// attachment. Premium only.
func (h *Handler) exportConversation(c *gin.Context, raw []byte, userID string) {
	var req struct {
		BotID string `json:"botId" validate:"required"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "bot ID is required")
		return
	}

	user, errFind := h.users.FindByID(c.Request.Context(), userID)
	if errFind != nil {
		failure(c, http.StatusNotFound, "user not found")
		return
	}
	if user.Plan != models.PlanPremium {
		failure(c, http.StatusForbidden, "conversation export requires the premium plan")
		return
	}
	bot := botchat.FindBot(&user, req.BotID)
	if bot == nil {
		failure(c, http.StatusNotFound, "bot not found")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Conversation with %s (%s)\n\n", bot.Name, bot.Model)
	for _, msg := range bot.Conversations {
		stamp := ""
		if !msg.Timestamp.IsZero() {
			stamp = msg.Timestamp.UTC().Format("2006-01-02 15:04:05") + " "
		}
		fmt.Fprintf(&sb, "%s%s: %s\n", stamp, msg.Role, msg.Content)
	}

	filename := fmt.Sprintf("conversation-%s.txt", bot.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(sb.String()))
}
