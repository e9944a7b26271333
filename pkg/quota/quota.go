// Package quota enforces per-user token budgets over fixed time windows.
// It is consulted before any execution is attempted and never touches the
// worker pool or the caches.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/quarrylabs/quarry/pkg/models"
	"github.com/quarrylabs/quarry/pkg/tracker"
)

// Period defines the quota window.
type Period string

// Supported quota windows.
const (
	Hourly  Period = "hourly"
	Daily   Period = "daily"
	Monthly Period = "monthly"
)

// ExceededError signals that a user is at or above the token limit. It
// carries the full status so callers can report when the window resets.
type ExceededError struct {
	UserID string
	Status models.QuotaStatus
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d/%d tokens used, resets in %ds",
		e.UserID, e.Status.UsageTokens, e.Status.LimitTokens, e.Status.ResetsInSeconds)
}

// Limiter computes quota status from the usage ledger.
type Limiter struct {
	tracker tracker.Tracker
	limit   int64
	period  Period
	now     func() time.Time
}

// New creates a Limiter with the given token limit and window period.
func New(t tracker.Tracker, limit int64, period Period) *Limiter {
	if period == "" {
		period = Daily
	}
	return &Limiter{tracker: t, limit: limit, period: period, now: time.Now}
}

// Status sums the user's token consumption for the active window. Window
// boundaries are computed from wall-clock time at call time, never cached.
func (l *Limiter) Status(ctx context.Context, userID string) (models.QuotaStatus, error) {
	now := l.now().UTC()
	start, end := window(l.period, now)

	used, err := l.tracker.TotalByUser(ctx, userID, start)
	if err != nil {
		return models.QuotaStatus{}, fmt.Errorf("quota status: %w", err)
	}

	remaining := l.limit - used
	if remaining < 0 {
		remaining = 0
	}
	percent := 0.0
	if l.limit > 0 {
		percent = float64(used) / float64(l.limit) * 100
	}

	return models.QuotaStatus{
		UsageTokens:     used,
		LimitTokens:     l.limit,
		RemainingTokens: remaining,
		ResetsInSeconds: int64(end.Sub(now).Seconds()),
		UsagePercent:    percent,
	}, nil
}

// Check returns an ExceededError when the user's usage has reached the limit.
func (l *Limiter) Check(ctx context.Context, userID string) (models.QuotaStatus, error) {
	status, err := l.Status(ctx, userID)
	if err != nil {
		return status, err
	}
	if status.UsageTokens >= status.LimitTokens {
		return status, &ExceededError{UserID: userID, Status: status}
	}
	return status, nil
}

// window returns the [start, end) bounds of the active quota window.
func window(p Period, now time.Time) (time.Time, time.Time) {
	switch p {
	case Hourly:
		start := now.Truncate(time.Hour)
		return start, start.Add(time.Hour)
	case Monthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default: // daily
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	}
}
