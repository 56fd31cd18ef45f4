package ratelimit

import (
	"context"
	"time"

	"github.com/chatforge-app/chatforge/internal/store"
)

const (
	loginMaxFailures = 3
	loginWindow      = 15 * time.Minute
)

// LoginLocked reports whether further login attempts for the email are
// currently locked out, and when the lock expires. Three or more failures
// within the trailing window lock attempts until the oldest counted failure
// ages out.
func (l *Limiter) LoginLocked(ctx context.Context, email string) (bool, time.Time, error) {
	now := l.nowFn()
	cutoff := now.Add(-loginWindow).Unix()

	var locked bool
	var until time.Time
	errView := store.ViewJSON(ctx, l.store, document, func(doc state) error {
		var counted []int64
		for _, ts := range doc.LoginAttempts[email] {
			if ts > cutoff {
				counted = append(counted, ts)
			}
		}
		if len(counted) >= loginMaxFailures {
			locked = true
			oldest := counted[0]
			for _, ts := range counted[1:] {
				if ts < oldest {
					oldest = ts
				}
			}
			until = time.Unix(oldest, 0).Add(loginWindow)
		}
		return nil
	})
	if errView != nil {
		return false, time.Time{}, errView
	}
	return locked, until, nil
}

// RecordLoginFailure appends a failed attempt for the email.
func (l *Limiter) RecordLoginFailure(ctx context.Context, email string) error {
	now := l.nowFn()
	return store.UpdateJSON(ctx, l.store, document, func(doc *state) error {
		if doc.LoginAttempts == nil {
			doc.LoginAttempts = make(map[string][]int64)
		}
		doc.LoginAttempts[email] = append(doc.LoginAttempts[email], now.Unix())
		cleanupIfDue(doc, now)
		return nil
	})
}

// ClearLoginFailures drops the email's attempt history after a successful
// login.
func (l *Limiter) ClearLoginFailures(ctx context.Context, email string) error {
	return store.UpdateJSON(ctx, l.store, document, func(doc *state) error {
		delete(doc.LoginAttempts, email)
		return nil
	})
}
