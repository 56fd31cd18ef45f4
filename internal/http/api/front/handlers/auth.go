package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/chatforge-app/chatforge/internal/models"
	"github.com/chatforge-app/chatforge/internal/quota"
	"github.com/chatforge-app/chatforge/internal/ratelimit"
	"github.com/chatforge-app/chatforge/internal/repository"
	"github.com/chatforge-app/chatforge/internal/security"
)

// register creates a pending account and mails its verification code.
func (h *Handler) register(c *gin.Context, raw []byte, _ string) {
	var req struct {
		Name     string `json:"name" validate:"required,max=100"`
		Email    string `json:"email" validate:"required,email,max=254"`
		Password string `json:"password" validate:"required,min=8,max=128"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "name, email and a password of at least 8 characters are required")
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()
	check, errCheck := h.limiter.Check(ctx, ip, ratelimit.ActionRegister)
	if errCheck != nil {
		failure(c, http.StatusInternalServerError, "registration failed")
		return
	}
	if !check.Allowed {
		rateFailure(c, check.Reset, h.nowFn(), "too many registrations, try again later")
		return
	}

	code, errOTP := security.GenerateOTP()
	if errOTP != nil {
		failure(c, http.StatusInternalServerError, "registration failed")
		return
	}
	hash, errHash := security.HashPassword(req.Password)
	if errHash != nil {
		failure(c, http.StatusInternalServerError, "registration failed")
		return
	}

	now := h.nowFn().UTC()
	expiry := now.Add(security.OTPValidity)
	user := models.User{
		ID:       uuid.NewString(),
		Name:     sanitize(req.Name),
		Email:    sanitize(req.Email),
		Password: hash,
		Plan:     models.PlanFree,
		Status:   models.StatusPending,
		Usage: models.Usage{
			LastReset:        now.Format("2006-01-02"),
			LastMessageReset: now.Format("2006-01-02"),
		},
		Bots:      []models.Bot{},
		OTP:       code,
		OTPExpiry: &expiry,
		CreatedAt: now,
	}

	if errInsert := h.users.Insert(ctx, user); errInsert != nil {
		if errors.Is(errInsert, repository.ErrDuplicateEmail) {
			failure(c, http.StatusConflict, "email already registered")
			return
		}
		failure(c, http.StatusInternalServerError, "registration failed")
		return
	}
	if errRecord := h.limiter.Record(ctx, ip, ratelimit.ActionRegister); errRecord != nil {
		log.WithError(errRecord).Warn("record register rate event failed")
	}

	h.sendOTP(ctx, user.Email, user.Name, code)
	success(c, gin.H{"message": "registered, check your email for the verification code"})
}

// verifyOTP activates a pending account when the code matches before expiry.
func (h *Handler) verifyOTP(c *gin.Context, raw []byte, _ string) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
		OTP   string `json:"otp" validate:"required,len=6,numeric"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "email and a 6-digit code are required")
		return
	}

	ctx := c.Request.Context()
	email := sanitize(req.Email)
	target, errFind := h.users.FindByEmail(ctx, email)
	if errFind != nil {
		failure(c, http.StatusBadRequest, "invalid or expired code")
		return
	}

	now := h.nowFn().UTC()
	errUpdate := h.users.Update(ctx, target.ID, func(user *models.User) error {
		if user.OTP == "" || user.OTP != req.OTP || user.OTPExpiry == nil || now.After(*user.OTPExpiry) {
			return errInvalidOTP
		}
		user.Status = models.StatusActive
		user.OTP = ""
		user.OTPExpiry = nil
		return nil
	})
	if errUpdate != nil {
		failure(c, http.StatusBadRequest, "invalid or expired code")
		return
	}
	success(c, gin.H{"message": "account verified"})
}

var errInvalidOTP = errors.New("invalid or expired code")

// forgotPassword issues a reset code. The response does not reveal whether
// the account exists.
func (h *Handler) forgotPassword(c *gin.Context, raw []byte, _ string) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "email is required")
		return
	}

	ctx := c.Request.Context()
	email := sanitize(req.Email)
	check, errCheck := h.limiter.Check(ctx, email, ratelimit.ActionOTP)
	if errCheck != nil {
		failure(c, http.StatusInternalServerError, "request failed")
		return
	}
	if !check.Allowed {
		rateFailure(c, check.Reset, h.nowFn(), "too many code requests, try again later")
		return
	}

	target, errFind := h.users.FindByEmail(ctx, email)
	if errFind == nil {
		code, errOTP := security.GenerateOTP()
		if errOTP == nil {
			now := h.nowFn().UTC()
			expiry := now.Add(security.OTPValidity)
			errUpdate := h.users.Update(ctx, target.ID, func(user *models.User) error {
				user.OTP = code
				user.OTPExpiry = &expiry
				return nil
			})
			if errUpdate == nil {
				if errRecord := h.limiter.Record(ctx, email, ratelimit.ActionOTP); errRecord != nil {
					log.WithError(errRecord).Warn("record otp rate event failed")
				}
				h.sendOTP(ctx, target.Email, target.Name, code)
			}
		}
	}
	success(c, gin.H{"message": "if the account exists, a reset code has been sent"})
}

// resetPassword sets a new password when the reset code matches.
func (h *Handler) resetPassword(c *gin.Context, raw []byte, _ string) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		OTP      string `json:"otp" validate:"required,len=6,numeric"`
		Password string `json:"password" validate:"required,min=8,max=128"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "email, code and a password of at least 8 characters are required")
		return
	}

	ctx := c.Request.Context()
	target, errFind := h.users.FindByEmail(ctx, sanitize(req.Email))
	if errFind != nil {
		failure(c, http.StatusBadRequest, "invalid or expired code")
		return
	}

	hash, errHash := security.HashPassword(req.Password)
	if errHash != nil {
		failure(c, http.StatusInternalServerError, "reset failed")
		return
	}

	now := h.nowFn().UTC()
	errUpdate := h.users.Update(ctx, target.ID, func(user *models.User) error {
		if user.OTP == "" || user.OTP != req.OTP || user.OTPExpiry == nil || now.After(*user.OTPExpiry) {
			return errInvalidOTP
		}
		user.Password = hash
		user.OTP = ""
		user.OTPExpiry = nil
		return nil
	})
	if errUpdate != nil {
		failure(c, http.StatusBadRequest, "invalid or expired code")
		return
	}

	if errClear := h.limiter.ClearLoginFailures(ctx, target.Email); errClear != nil {
		log.WithError(errClear).Warn("clear login failures after reset failed")
	}
	success(c, gin.H{"message": "password updated"})
}

// login authenticates by email and password, enforcing brute-force lockout.
func (h *Handler) login(c *gin.Context, raw []byte, _ string) {
	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "email and password are required")
		return
	}

	ctx := c.Request.Context()
	ip := c.ClientIP()
	email := sanitize(req.Email)

	check, errCheck := h.limiter.Check(ctx, ip, ratelimit.ActionLogin)
	if errCheck != nil {
		failure(c, http.StatusInternalServerError, "login failed")
		return
	}
	if !check.Allowed {
		rateFailure(c, check.Reset, h.nowFn(), "too many login attempts, try again later")
		return
	}

	locked, until, errLocked := h.limiter.LoginLocked(ctx, email)
	if errLocked != nil {
		failure(c, http.StatusInternalServerError, "login failed")
		return
	}
	if locked {
		rateFailure(c, until, h.nowFn(), "account temporarily locked, try again later")
		return
	}

	if errRecord := h.limiter.Record(ctx, ip, ratelimit.ActionLogin); errRecord != nil {
		log.WithError(errRecord).Warn("record login rate event failed")
	}

	target, errFind := h.users.FindByEmail(ctx, email)
	if errFind != nil || !security.CheckPassword(target.Password, req.Password) {
		if errFail := h.limiter.RecordLoginFailure(ctx, email); errFail != nil {
			log.WithError(errFail).Warn("record login failure failed")
		}
		failure(c, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if target.Status != models.StatusActive {
		failure(c, http.StatusUnauthorized, "account not verified")
		return
	}

	if errClear := h.limiter.ClearLoginFailures(ctx, email); errClear != nil {
		log.WithError(errClear).Warn("clear login failures failed")
	}

	// Lazy usage reset on login, persisted when it changed anything.
	now := h.nowFn()
	var fresh models.User
	errUpdate := h.users.Update(ctx, target.ID, func(user *models.User) error {
		quota.ResetIfNeeded(user, now)
		fresh = *user
		return nil
	})
	if errUpdate != nil {
		failure(c, http.StatusInternalServerError, "login failed")
		return
	}

	if errSession := h.setSession(c, target.ID); errSession != nil {
		log.WithError(errSession).Error("issue session token failed")
		failure(c, http.StatusInternalServerError, "login failed")
		return
	}
	success(c, gin.H{"user": fresh.Sanitized()})
}

// logout clears the session cookie.
func (h *Handler) logout(c *gin.Context, _ []byte, _ string) {
	h.clearSession(c)
	success(c, nil)
}

// checkAuth returns the authenticated user with lazily reset counters.
func (h *Handler) checkAuth(c *gin.Context, _ []byte, userID string) {
	ctx := c.Request.Context()
	now := h.nowFn()

	var fresh models.User
	errUpdate := h.users.Update(ctx, userID, func(user *models.User) error {
		quota.ResetIfNeeded(user, now)
		fresh = *user
		return nil
	})
	if errUpdate != nil {
		h.clearSession(c)
		failure(c, http.StatusUnauthorized, "not authenticated")
		return
	}
	success(c, gin.H{"user": fresh.Sanitized()})
}

// sendOTP delivers the code without blocking the response path.
func (h *Handler) sendOTP(ctx context.Context, email, name, code string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	go func() {
		defer cancel()
		if errSend := h.mail.SendOTP(sendCtx, email, name, code); errSend != nil {
			log.WithError(errSend).WithField("email", email).Warn("otp delivery failed")
		}
	}()
}
