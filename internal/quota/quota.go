// Package quota derives plan limits and maintains per-user usage counters.
// Resets are lazy: they are evaluated on first access within a new calendar
// period, never by a background sweep, so every quota-sensitive operation
// must route through ResetIfNeeded before reading a counter.
package quota

import (
	"math"
	"time"

	"github.com/chatforge-app/chatforge/internal/models"
)

// Unlimited marks a quota with no cap.
const Unlimited = math.MaxInt

// nearQuotaBuffer is the remaining-message threshold for the near-quota
// warning on non-premium plans.
const nearQuotaBuffer = 10

// Limits holds the static quota set derived from a plan. Not persisted.
type Limits struct {
	Messages int // Messages per calendar month.
	Images   int // Images per calendar day.
	History  int // Conversation turns retained per bot.
}

// PlanLimits returns the quota set for a plan. Unknown plans fall back to
// the free tier.
func PlanLimits(plan models.Plan) Limits {
	switch plan {
	case models.PlanPremium:
		return Limits{Messages: Unlimited, Images: Unlimited, History: 100}
	case models.PlanBasic:
		return Limits{Messages: 5000, Images: 10, History: 50}
	default:
		return Limits{Messages: 100, Images: 3, History: 20}
	}
}

// HistoryLimit returns the conversation cap for a plan.
func HistoryLimit(plan models.Plan) int {
	return PlanLimits(plan).History
}

// ResetIfNeeded zeroes the image counter when the calendar day has changed
// and the message counter when the calendar month has changed, restamping
// the reset markers. It reports whether the user was mutated; the caller is
// responsible for persisting the change.
//
// The month marker stores a full date but only its YYYY-MM prefix is
// compared, matching the original system.
func ResetIfNeeded(user *models.User, now time.Time) bool {
	today := now.Format("2006-01-02")
	month := now.Format("2006-01")

	changed := false
	if user.Usage.LastReset != today {
		user.Usage.Images = 0
		user.Usage.LastReset = today
		changed = true
	}
	if len(user.Usage.LastMessageReset) < 7 || user.Usage.LastMessageReset[:7] != month {
		user.Usage.Messages = 0
		user.Usage.LastMessageReset = today
		changed = true
	}
	return changed
}

// CanSendMessage reports whether the user has message quota left.
func CanSendMessage(user *models.User) bool {
	if user.Plan == models.PlanPremium {
		return true
	}
	return user.Usage.Messages < PlanLimits(user.Plan).Messages
}

// CanGenerateImage applies the lazy reset and reports whether the user has
// image quota left. The caller must persist the user when ResetIfNeeded
// mutated it.
func CanGenerateImage(user *models.User, now time.Time) bool {
	ResetIfNeeded(user, now)
	if user.Plan == models.PlanPremium {
		return true
	}
	return user.Usage.Images < PlanLimits(user.Plan).Images
}

// NearQuota reports whether the remaining message allowance is within the
// warning buffer. Premium plans never report near-quota.
func NearQuota(user *models.User) bool {
	if user.Plan == models.PlanPremium {
		return false
	}
	remaining := PlanLimits(user.Plan).Messages - user.Usage.Messages
	return remaining <= nearQuotaBuffer
}

// planModels lists the chat models each non-premium plan may use.
var planModels = map[models.Plan][]string{
	models.PlanFree:  {"gpt-4o-mini", "gpt-3.5-turbo"},
	models.PlanBasic: {"gpt-4o-mini", "gpt-3.5-turbo", "gpt-4o"},
}

// AllowedModels returns the chat models available to a plan. Premium returns
// nil, meaning no restriction.
func AllowedModels(plan models.Plan) []string {
	if plan == models.PlanPremium {
		return nil
	}
	if allowed, ok := planModels[plan]; ok {
		return allowed
	}
	return planModels[models.PlanFree]
}

// IsModelAllowed reports whether a plan may create or use a bot with the
// given model.
func IsModelAllowed(plan models.Plan, model string) bool {
	if model == "" {
		return false
	}
	if plan == models.PlanPremium {
		return true
	}
	for _, allowed := range AllowedModels(plan) {
		if allowed == model {
			return true
		}
	}
	return false
}
