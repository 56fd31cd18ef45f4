package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/chatforge-app/chatforge/internal/models"
	"github.com/chatforge-app/chatforge/internal/quota"
	"github.com/chatforge-app/chatforge/internal/ratelimit"
)

// maxImagePromptLen bounds the prompt forwarded to the provider.
const maxImagePromptLen = 4000

// generateImage produces one image for the user's prompt. Premium plans skip
// the per-plan daily quota but the per-user rate window still applies.
func (h *Handler) generateImage(c *gin.Context, raw []byte, userID string) {
	var req struct {
		Prompt string `json:"prompt" validate:"required"`
		APIKey string `json:"apiKey"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "prompt is required")
		return
	}

	prompt := sanitize(req.Prompt)
	if prompt == "" {
		failure(c, http.StatusBadRequest, "prompt is required")
		return
	}
	if len(prompt) > maxImagePromptLen {
		failure(c, http.StatusBadRequest, "prompt too long (max 4000 characters)")
		return
	}

	ctx := c.Request.Context()
	now := h.nowFn()

	check, errCheck := h.limiter.Check(ctx, userID, ratelimit.ActionImage)
	if errCheck != nil {
		failure(c, http.StatusInternalServerError, "image generation failed")
		return
	}
	if !check.Allowed {
		rateFailure(c, check.Reset, now, "daily image rate limit exceeded, try again tomorrow")
		return
	}

	snapshot, errFind := h.users.FindByID(ctx, userID)
	if errFind != nil {
		failure(c, http.StatusNotFound, "user not found")
		return
	}
	if !quota.CanGenerateImage(&snapshot, now) {
		failure(c, http.StatusForbidden, "image limit reached for your plan")
		return
	}

	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		apiKey = h.openAI.APIKey
	}

	imageURL, errImage := h.images.GenerateImage(ctx, prompt, apiKey)
	if errImage != nil {
		respondProviderError(c, errImage)
		return
	}

	var usage models.Usage
	errUpdate := h.users.Update(ctx, userID, func(user *models.User) error {
		quota.ResetIfNeeded(user, now)
		user.Usage.Images++
		usage = user.Usage
		return nil
	})
	if errUpdate != nil {
		failure(c, http.StatusInternalServerError, "image generation failed")
		return
	}

	if errRecord := h.limiter.Record(ctx, userID, ratelimit.ActionImage); errRecord != nil {
		log.WithError(errRecord).Warn("record image rate event failed")
	}

	success(c, gin.H{
		"imageUrl": imageURL,
		"usage":    usage,
	})
}
