package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/chatforge-app/chatforge/internal/models"
)

// upgradePlan switches the user to a paid plan directly, for deployments
// that settle payment out of band.
func (h *Handler) upgradePlan(c *gin.Context, raw []byte, userID string) {
	var req struct {
		Plan string `json:"plan" validate:"required,oneof=basic premium"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "plan must be basic or premium")
		return
	}

	plan := models.Plan(req.Plan)
	now := h.nowFn().UTC()
	var fresh models.User
	errUpdate := h.users.Update(c.Request.Context(), userID, func(user *models.User) error {
		user.Plan = plan
		user.Subscription = &models.Subscription{
			Plan:      plan,
			Status:    "active",
			UpdatedAt: now,
		}
		fresh = *user
		return nil
	})
	if errUpdate != nil {
		failure(c, http.StatusInternalServerError, "upgrade failed")
		return
	}
	success(c, gin.H{"user": fresh.Sanitized()})
}

// initiatePayment starts a hosted checkout for a paid plan and records the
// pending session on the user.
func (h *Handler) initiatePayment(c *gin.Context, raw []byte, userID string) {
	var req struct {
		Plan string `json:"plan" validate:"required,oneof=basic premium"`
	}
	if errDecode := h.decode(raw, &req); errDecode != nil {
		failure(c, http.StatusBadRequest, "plan must be basic or premium")
		return
	}
	if h.checkout == nil {
		failure(c, http.StatusServiceUnavailable, "payments not configured")
		return
	}

	ctx := c.Request.Context()
	user, errFind := h.users.FindByID(ctx, userID)
	if errFind != nil {
		failure(c, http.StatusNotFound, "user not found")
		return
	}

	plan := models.Plan(req.Plan)
	url, sessionID, errSession := h.checkout.CreateSession(ctx, user, plan)
	if errSession != nil {
		log.WithError(errSession).Warn("create checkout session failed")
		failure(c, http.StatusBadGateway, "payment provider unavailable")
		return
	}

	now := h.nowFn().UTC()
	errUpdate := h.users.Update(ctx, userID, func(u *models.User) error {
		u.Subscription = &models.Subscription{
			Plan:              plan,
			Status:            "pending_payment",
			CheckoutSessionID: sessionID,
			UpdatedAt:         now,
		}
		return nil
	})
	if errUpdate != nil {
		failure(c, http.StatusInternalServerError, "payment failed")
		return
	}

	success(c, gin.H{"url": url, "sessionId": sessionID})
}

// deleteAccount removes the user record and ends the session.
func (h *Handler) deleteAccount(c *gin.Context, _ []byte, userID string) {
	if errDelete := h.users.Delete(c.Request.Context(), userID); errDelete != nil {
		failure(c, http.StatusInternalServerError, "delete failed")
		return
	}
	h.clearSession(c)
	success(c, nil)
}
