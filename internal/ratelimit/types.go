package ratelimit

import (
	"fmt"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// Action identifies a rate-limited operation.
type Action string

const (
	ActionMessage  Action = "message"
	ActionImage    Action = "image"
	ActionRegister Action = "register"
	ActionLogin    Action = "login"
	ActionOTP      Action = "otp"
)

// windowKind selects the counting scheme for an action.
type windowKind int

const (
	windowHourly windowKind = iota // Sliding trailing hour.
	windowDaily                    // Calendar-day bucket.
)

// policy binds an action to its limit and window scheme.
type policy struct {
	limit int
	kind  windowKind
}

// policies lists the per-action limits. Subjects are user ids for
// authenticated actions and client IPs for pre-auth actions.
var policies = map[Action]policy{
	ActionMessage:  {limit: 50, kind: windowHourly},
	ActionImage:    {limit: 10, kind: windowDaily},
	ActionRegister: {limit: 5, kind: windowHourly},
	ActionLogin:    {limit: 10, kind: windowHourly},
	ActionOTP:      {limit: 5, kind: windowHourly},
}

// key builds the per-(subject, action) counter key.
func key(subject string, action Action) string {
	return fmt.Sprintf("%s:%s", subject, action)
}
