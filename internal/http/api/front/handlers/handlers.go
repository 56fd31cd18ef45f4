// Package handlers implements the action surface exposed to the transport
// layer. Every action arrives as a JSON body on a single endpoint and is
// dispatched by its action name, mirroring the original API contract.
package handlers

import (
	"encoding/json"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/chatforge-app/chatforge/internal/config"
	"github.com/chatforge-app/chatforge/internal/mailer"
	"github.com/chatforge-app/chatforge/internal/openai"
	"github.com/chatforge-app/chatforge/internal/payments"
	"github.com/chatforge-app/chatforge/internal/ratelimit"
	"github.com/chatforge-app/chatforge/internal/repository"
	"github.com/chatforge-app/chatforge/internal/security"
)

// SessionCookie is the name of the session token cookie.
const SessionCookie = "cf_session"

// Handler carries the injected dependencies for every action. There is no
// ambient global state; everything flows through here.
type Handler struct {
	users    *repository.Users
	limiter  *ratelimit.Limiter
	chat     openai.ChatClient
	images   openai.ImageClient
	mail     mailer.Sender
	checkout *payments.Checkout
	jwtCfg   config.JWTConfig
	openAI   config.OpenAIConfig
	validate *validator.Validate
	nowFn    func() time.Time

	actions map[string]actionEntry
}

// actionEntry binds an action name to its handler and auth requirement.
type actionEntry struct {
	fn       func(c *gin.Context, raw []byte, userID string)
	authOnly bool
}

// New constructs a Handler. nowFn defaults to time.Now.
func New(
	users *repository.Users,
	limiter *ratelimit.Limiter,
	chat openai.ChatClient,
	images openai.ImageClient,
	mail mailer.Sender,
	checkout *payments.Checkout,
	jwtCfg config.JWTConfig,
	openAICfg config.OpenAIConfig,
	nowFn func() time.Time,
) *Handler {
	if nowFn == nil {
		nowFn = time.Now
	}
	h := &Handler{
		users:    users,
		limiter:  limiter,
		chat:     chat,
		images:   images,
		mail:     mail,
		checkout: checkout,
		jwtCfg:   jwtCfg,
		openAI:   openAICfg,
		validate: validator.New(),
		nowFn:    nowFn,
	}
	h.actions = map[string]actionEntry{
		"register":           {fn: h.register},
		"verifyOtp":          {fn: h.verifyOTP},
		"forgotPassword":     {fn: h.forgotPassword},
		"resetPassword":      {fn: h.resetPassword},
		"login":              {fn: h.login},
		"logout":             {fn: h.logout},
		"checkAuth":          {fn: h.checkAuth, authOnly: true},
		"createBot":          {fn: h.createBot, authOnly: true},
		"getBots":            {fn: h.getBots, authOnly: true},
		"getBot":             {fn: h.getBot, authOnly: true},
		"deleteBot":          {fn: h.deleteBot, authOnly: true},
		"sendMessage":        {fn: h.sendMessage, authOnly: true},
		"generateImage":      {fn: h.generateImage, authOnly: true},
		"exportConversation": {fn: h.exportConversation, authOnly: true},
		"upgradePlan":        {fn: h.upgradePlan, authOnly: true},
		"initiatePayment":    {fn: h.initiatePayment, authOnly: true},
		"deleteAccount":      {fn: h.deleteAccount, authOnly: true},
	}
	return h
}

// Dispatch routes the request to the named action. Unauthenticated calls to
// auth-only actions are rejected before the action body is decoded.
func (h *Handler) Dispatch(c *gin.Context) {
	raw, errRead := c.GetRawData()
	if errRead != nil {
		failure(c, http.StatusBadRequest, "unreadable request body")
		return
	}

	var envelope struct {
		Action string `json:"action"`
	}
	if errUnmarshal := json.Unmarshal(raw, &envelope); errUnmarshal != nil {
		failure(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	entry, ok := h.actions[envelope.Action]
	if !ok {
		failure(c, http.StatusBadRequest, "invalid action")
		return
	}

	userID := ""
	if entry.authOnly {
		id, errAuth := h.subject(c)
		if errAuth != nil {
			failure(c, http.StatusUnauthorized, "not authenticated")
			return
		}
		userID = id
	}
	entry.fn(c, raw, userID)
}

// Healthz reports liveness.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// subject resolves the authenticated user id from the session cookie.
func (h *Handler) subject(c *gin.Context) (string, error) {
	token, errCookie := c.Cookie(SessionCookie)
	if errCookie != nil {
		return "", errCookie
	}
	claims, errParse := security.ParseSessionToken(h.jwtCfg.Secret, token)
	if errParse != nil {
		return "", errParse
	}
	return claims.UserID, nil
}

// setSession issues a session cookie for the user.
func (h *Handler) setSession(c *gin.Context, userID string) error {
	token, errSign := security.SignSessionToken(h.jwtCfg.Secret, userID, h.jwtCfg.Expiry)
	if errSign != nil {
		return errSign
	}
	c.SetCookie(SessionCookie, token, int(h.jwtCfg.Expiry.Seconds()), "/", "", false, true)
	return nil
}

// clearSession drops the session cookie.
func (h *Handler) clearSession(c *gin.Context) {
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
}

// decode unmarshals the action body into req and runs validation.
func (h *Handler) decode(raw []byte, req any) error {
	if errUnmarshal := json.Unmarshal(raw, req); errUnmarshal != nil {
		return errUnmarshal
	}
	return h.validate.Struct(req)
}

// sanitize trims and HTML-escapes a free-text field, as the original system
// did for every user-supplied string.
func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

// failure writes a structured error response.
func failure(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}

// rateFailure writes a limit-exceeded response with a retry-after hint.
func rateFailure(c *gin.Context, reset time.Time, now time.Time, message string) {
	retryAfter := int(reset.Sub(now).Seconds())
	if retryAfter < 0 {
		retryAfter = 0
	}
	c.JSON(http.StatusTooManyRequests, gin.H{
		"success":    false,
		"message":    message,
		"retryAfter": retryAfter,
	})
}

// success writes a success response with the given extra fields.
func success(c *gin.Context, fields gin.H) {
	out := gin.H{"success": true}
	for k, v := range fields {
		out[k] = v
	}
	c.JSON(http.StatusOK, out)
}
