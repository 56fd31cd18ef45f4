package models

import "time"

// Plan identifies a subscription tier.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanBasic   Plan = "basic"
	PlanPremium Plan = "premium"
)

// Valid reports whether the plan is a known tier.
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanBasic, PlanPremium:
		return true
	}
	return false
}

// Status identifies the account lifecycle state.
type Status string

const (
	StatusPending Status = "pending" // Registered, email not yet verified.
	StatusActive  Status = "active"  // Email verified, may sign in.
)

// Usage holds per-user counters with lazy calendar resets.
type Usage struct {
	Messages         int    `json:"messages"`         // Messages sent this billing month.
	Images           int    `json:"images"`           // Images generated today.
	LastReset        string `json:"lastReset"`        // YYYY-MM-DD, drives the daily image reset.
	LastMessageReset string `json:"lastMessageReset"` // Date whose YYYY-MM prefix drives the monthly message reset.
}

// Subscription records the latest plan change and its payment linkage.
type Subscription struct {
	Plan              Plan      `json:"plan"`
	Status            string    `json:"status"`
	CheckoutSessionID string    `json:"checkoutSessionId,omitempty"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// User is the aggregate persisted in the user-list document. It is owned by
// the repository; every mutation must reload, modify, and persist it inside
// one exclusive section.
type User struct {
	ID       string         `json:"id"`                 // Opaque, immutable, generated at creation.
	Name     string         `json:"name"`               // Display name.
	Email    string         `json:"email"`              // Unique, compared case-sensitively as stored.
	Password string         `json:"password"`           // bcrypt hash.
	Plan     Plan           `json:"plan"`               // Active tier.
	Status   Status         `json:"status"`             // pending until OTP verification.
	Usage    Usage          `json:"usage"`              // Quota counters.
	Settings map[string]any `json:"settings,omitempty"` // Opaque client settings blob.
	Bots     []Bot          `json:"bots"`               // Ordered, embedded.

	Subscription *Subscription `json:"subscription,omitempty"`

	OTP       string     `json:"otp,omitempty"`       // Pending one-time code.
	OTPExpiry *time.Time `json:"otpExpiry,omitempty"` // Code expiry.

	CreatedAt time.Time `json:"created_at"`
}

// Sanitized returns a copy safe to send to the client: no credential hash,
// no pending OTP, no settings blob.
func (u User) Sanitized() User {
	out := u
	out.Password = ""
	out.Settings = nil
	out.OTP = ""
	out.OTPExpiry = nil
	return out
}
