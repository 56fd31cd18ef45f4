// Package ratelimit enforces per-(subject, action) request limits over
// sliding-hour and calendar-day windows, plus login brute-force lockout.
// All state lives in a single document behind the locked store, so limits
// hold across processes. The check and the record run in separate locked
// sections; a concurrent burst can marginally exceed a limit, which is
// accepted — the limiter promises approximate fairness, not exactness.
package ratelimit

import (
	"context"
	"time"

	"github.com/chatforge-app/chatforge/internal/store"
)

const (
	document        = "ratelimits.json"
	hourWindow      = time.Hour
	cleanupInterval = time.Hour
	retention       = 24 * time.Hour
)

// state is the persisted rate-limit document: hourly timestamp lists,
// day-bucketed timestamp lists, login failures per email, and the last
// cleanup stamp.
type state struct {
	Hourly        map[string][]int64            `json:"hourly"`
	Daily         map[string]map[string][]int64 `json:"daily"`
	LoginAttempts map[string][]int64            `json:"login_attempts"`
	LastCleanup   int64                         `json:"last_cleanup"`
}

// Limiter persists rate-limit windows through the document store.
type Limiter struct {
	store *store.Store
	nowFn func() time.Time
}

// New constructs a Limiter. nowFn defaults to time.Now.
func New(st *store.Store, nowFn func() time.Time) *Limiter {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Limiter{store: st, nowFn: nowFn}
}

// Check reports whether subject may perform action, without mutating state.
func (l *Limiter) Check(ctx context.Context, subject string, action Action) (Result, error) {
	pol, ok := policies[action]
	if !ok {
		return Result{Allowed: true}, nil
	}
	now := l.nowFn()

	var result Result
	errView := store.ViewJSON(ctx, l.store, document, func(doc state) error {
		switch pol.kind {
		case windowDaily:
			result = checkDaily(doc, subject, action, pol.limit, now)
		default:
			result = checkHourly(doc, subject, action, pol.limit, now)
		}
		return nil
	})
	if errView != nil {
		return Result{}, errView
	}
	return result, nil
}

// Record appends the current timestamp to the subject's window. Called only
// after the guarded operation has succeeded. Stale entries across all
// windows are reclaimed here when more than an hour has passed since the
// last cleanup.
func (l *Limiter) Record(ctx context.Context, subject string, action Action) error {
	pol, ok := policies[action]
	if !ok {
		return nil
	}
	now := l.nowFn()

	return store.UpdateJSON(ctx, l.store, document, func(doc *state) error {
		k := key(subject, action)
		switch pol.kind {
		case windowDaily:
			if doc.Daily == nil {
				doc.Daily = make(map[string]map[string][]int64)
			}
			day := now.Format("2006-01-02")
			if doc.Daily[k] == nil {
				doc.Daily[k] = make(map[string][]int64)
			}
			doc.Daily[k][day] = append(doc.Daily[k][day], now.Unix())
		default:
			if doc.Hourly == nil {
				doc.Hourly = make(map[string][]int64)
			}
			doc.Hourly[k] = append(doc.Hourly[k], now.Unix())
		}
		cleanupIfDue(doc, now)
		return nil
	})
}

// checkHourly counts timestamps within the trailing hour.
func checkHourly(doc state, subject string, action Action, limit int, now time.Time) Result {
	cutoff := now.Add(-hourWindow).Unix()
	var counted []int64
	for _, ts := range doc.Hourly[key(subject, action)] {
		if ts > cutoff {
			counted = append(counted, ts)
		}
	}
	if len(counted) >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: resetAfterOldest(counted, now)}
	}
	return Result{Allowed: true, Remaining: limit - len(counted), Reset: now.Add(hourWindow)}
}

// checkDaily counts timestamps in the current calendar-day bucket.
func checkDaily(doc state, subject string, action Action, limit int, now time.Time) Result {
	day := now.Format("2006-01-02")
	count := len(doc.Daily[key(subject, action)][day])
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(24 * time.Hour)
	if count >= limit {
		return Result{Allowed: false, Remaining: 0, Reset: midnight}
	}
	return Result{Allowed: true, Remaining: limit - count, Reset: midnight}
}

// resetAfterOldest returns the instant the oldest counted timestamp ages out
// of the sliding window.
func resetAfterOldest(counted []int64, now time.Time) time.Time {
	if len(counted) == 0 {
		return now
	}
	oldest := counted[0]
	for _, ts := range counted[1:] {
		if ts < oldest {
			oldest = ts
		}
	}
	return time.Unix(oldest, 0).Add(hourWindow)
}

// cleanupIfDue purges timestamps older than the retention horizon from all
// windows. Runs at most once per cleanupInterval to bound document growth
// without paying the sweep on every request.
func cleanupIfDue(doc *state, now time.Time) {
	if doc.LastCleanup != 0 && now.Sub(time.Unix(doc.LastCleanup, 0)) <= cleanupInterval {
		return
	}
	horizon := now.Add(-retention).Unix()

	for k, stamps := range doc.Hourly {
		kept := stamps[:0]
		for _, ts := range stamps {
			if ts > horizon {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(doc.Hourly, k)
			continue
		}
		doc.Hourly[k] = kept
	}

	for k, days := range doc.Daily {
		for day, stamps := range days {
			kept := stamps[:0]
			for _, ts := range stamps {
				if ts > horizon {
					kept = append(kept, ts)
				}
			}
			if len(kept) == 0 {
				delete(days, day)
				continue
			}
			days[day] = kept
		}
		if len(days) == 0 {
			delete(doc.Daily, k)
		}
	}

	for email, stamps := range doc.LoginAttempts {
		kept := stamps[:0]
		for _, ts := range stamps {
			if ts > horizon {
				kept = append(kept, ts)
			}
		}
		if len(kept) == 0 {
			delete(doc.LoginAttempts, email)
			continue
		}
		doc.LoginAttempts[email] = kept
	}

	doc.LastCleanup = now.Unix()
}
